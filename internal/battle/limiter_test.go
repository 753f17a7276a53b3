package battle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/storage"
)

type stubCounter struct {
	count      int
	err        error
	start, end time.Time
	calls      int
}

func (s *stubCounter) CountBattles(ctx context.Context, id domain.ContestantID, start, end time.Time) (int, error) {
	s.calls++
	s.start, s.end = start, end
	return s.count, s.err
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)
	start, end := DayBounds(time.Date(2024, 3, 10, 23, 59, 59, 0, loc))
	if want := time.Date(2024, 3, 10, 0, 0, 0, 0, loc); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2024, 3, 11, 0, 0, 0, 0, loc); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}

func TestCanBattle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)

	tests := []struct {
		name  string
		count int
		want  bool
	}{
		{"none today", 0, true},
		{"one left", 4, true},
		{"at cap", 5, false},
		{"over cap", 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &stubCounter{count: tt.count}
			l := NewLimiter(counter, 5)
			l.now = func() time.Time { return now }

			got, err := l.CanBattle(ctx, domain.UserContestant(1))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("CanBattle = %v, want %v", got, tt.want)
			}
			if wantStart, _ := DayBounds(now); !counter.start.Equal(wantStart) {
				t.Errorf("counted from %v, want %v", counter.start, wantStart)
			}
		})
	}
}

func TestCanBattleBotNeverCapped(t *testing.T) {
	counter := &stubCounter{count: 100}
	l := NewLimiter(counter, 5)
	ok, err := l.CanBattle(context.Background(), domain.BotID)
	if err != nil || !ok {
		t.Errorf("CanBattle(bot) = %v, %v", ok, err)
	}
	if counter.calls != 0 {
		t.Errorf("counter consulted %d times for the bot", counter.calls)
	}
}

func TestCanBattleCounterError(t *testing.T) {
	boom := errors.New("db down")
	l := NewLimiter(&stubCounter{err: boom}, 5)
	if _, err := l.CanBattle(context.Background(), domain.UserContestant(1)); !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

// Five battles late yesterday must not count against today.
func TestLimiterCalendarDayBoundary(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 30, 0, 0, time.Local)
	ar := newArena(t, today)
	ctx := context.Background()

	yesterday := time.Date(2024, 3, 9, 23, 50, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		rec := &domain.BattleRecord{
			Player1ID: ar.a,
			Player2ID: domain.BotID,
			Timestamp: yesterday.Add(time.Duration(i) * time.Minute),
		}
		if err := ar.store.AppendBattle(ctx, rec, ar.limiter.AppendLimit()); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	ok, err := ar.limiter.CanBattle(ctx, ar.a)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("yesterday's battles counted against today")
	}

	for i := 0; i < 5; i++ {
		if _, err := ar.resolver.Resolve(ctx, ar.a, domain.BotID); err != nil {
			t.Fatalf("battle %d today: %v", i+1, err)
		}
	}
	if ok, _ := ar.limiter.CanBattle(ctx, ar.a); ok {
		t.Error("CanBattle should be false after five battles today")
	}
	if _, err := ar.resolver.Resolve(ctx, ar.a, domain.BotID); !errors.Is(err, ErrRateLimited) {
		t.Errorf("sixth battle: got %v, want ErrRateLimited", err)
	}
}

// A battle stamped just before midnight counts against that day, even when
// the limiter's clock has already moved on.
func TestResolveCapsOnRecordDay(t *testing.T) {
	stamp := time.Date(2024, 3, 9, 23, 59, 59, 0, time.Local)
	ar := newArena(t, stamp)
	ar.limiter.now = func() time.Time { return stamp.Add(2 * time.Second) }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &domain.BattleRecord{
			Player1ID: ar.a,
			Player2ID: domain.BotID,
			Timestamp: stamp.Add(-time.Duration(i+1) * time.Hour),
		}
		if err := ar.store.AppendBattle(ctx, rec, storage.BattleLimit{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if _, err := ar.resolver.Resolve(ctx, ar.a, domain.BotID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("sixth battle on the same day: got %v, want ErrRateLimited", err)
	}
	start, end := DayBounds(stamp)
	if n, _ := ar.store.CountBattles(ctx, ar.a, start, end); n != 5 {
		t.Errorf("battles on %s = %d, want 5", start.Format("2006-01-02"), n)
	}
}

func TestAppendLimitAt(t *testing.T) {
	l := NewLimiter(&stubCounter{}, 5)
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)
	got := l.AppendLimitAt(at)
	start, end := DayBounds(at)
	if got.Max != 5 || !got.DayStart.Equal(start) || !got.DayEnd.Equal(end) {
		t.Errorf("AppendLimitAt = %+v", got)
	}
}
