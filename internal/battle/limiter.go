package battle

import (
	"context"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/storage"
)

// BattleCounter counts battles involving a contestant in [start, end)
type BattleCounter interface {
	CountBattles(ctx context.Context, id domain.ContestantID, start, end time.Time) (int, error)
}

// Limiter enforces the per-user daily battle cap. Days are local calendar
// days of the server, not rolling 24h windows.
type Limiter struct {
	counter BattleCounter
	limit   int
	now     func() time.Time
}

// NewLimiter creates a limiter allowing limit battles per day
func NewLimiter(counter BattleCounter, limit int) *Limiter {
	return &Limiter{counter: counter, limit: limit, now: time.Now}
}

// Limit returns the configured daily cap
func (l *Limiter) Limit() int {
	return l.limit
}

// DayBounds returns local midnight of t's day and the following midnight
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1)
	return start, end
}

// CanBattle reports whether the contestant is still under today's cap.
// The bot is never capped.
func (l *Limiter) CanBattle(ctx context.Context, id domain.ContestantID) (bool, error) {
	if id.IsBot() {
		return true, nil
	}
	start, end := DayBounds(l.now())
	count, err := l.counter.CountBattles(ctx, id, start, end)
	if err != nil {
		return false, err
	}
	return count < l.limit, nil
}

// AppendLimit is the bound the store re-checks atomically on append
func (l *Limiter) AppendLimit() storage.BattleLimit {
	return l.AppendLimitAt(l.now())
}

// AppendLimitAt bounds the count to the calendar day containing t, which
// should be the timestamp of the record being appended.
func (l *Limiter) AppendLimitAt(t time.Time) storage.BattleLimit {
	start, end := DayBounds(t)
	return storage.BattleLimit{Max: l.limit, DayStart: start, DayEnd: end}
}
