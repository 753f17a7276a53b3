// Package battle resolves arena battles and enforces the daily cap.
package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/storage"
)

// Score weights
const (
	weightHP      = 0.3
	weightAttack  = 0.4
	weightDefense = 0.2
	weightSpeed   = 0.1
)

// FavoriteSource loads a user's favorites
type FavoriteSource interface {
	Favorites(ctx context.Context, userID int64) ([]domain.Favorite, error)
}

// PokemonSource fetches full Pokémon data
type PokemonSource interface {
	Pokemon(ctx context.Context, id int) (*domain.Pokemon, error)
}

// History is the append-only battle log
type History interface {
	AppendBattle(ctx context.Context, rec *domain.BattleRecord, limit storage.BattleLimit) error
}

// Observer is told about every recorded battle
type Observer interface {
	BattleRecorded(ctx context.Context, rec domain.BattleRecord)
}

// Random is the randomness the resolver consumes
type Random interface {
	IntN(n int) int
	Float64() float64
}

// lockedRand makes a *rand.Rand safe for concurrent resolvers
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewRandom returns a concurrency-safe Random seeded from the given values
func NewRandom(seed1, seed2 uint64) Random {
	return &lockedRand{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// Config holds resolver settings
type Config struct {
	BotMaxPokemonID int
	Random          Random
	Limiter         *Limiter
	Observers       []Observer
	Logger          *slog.Logger
}

// Resolver picks Pokémon, scores them, and records the outcome
type Resolver struct {
	favorites FavoriteSource
	pokemon   PokemonSource
	history   History
	botMaxID  int
	rng       Random
	limiter   *Limiter
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolver creates a resolver
func NewResolver(favorites FavoriteSource, pokemon PokemonSource, history History, cfg Config) *Resolver {
	if cfg.BotMaxPokemonID <= 0 {
		cfg.BotMaxPokemonID = 898
	}
	if cfg.Random == nil {
		cfg.Random = NewRandom(rand.Uint64(), rand.Uint64())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		favorites: favorites,
		pokemon:   pokemon,
		history:   history,
		botMaxID:  cfg.BotMaxPokemonID,
		rng:       cfg.Random,
		limiter:   cfg.Limiter,
		observers: cfg.Observers,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Result is a resolved, recorded battle
type Result struct {
	Record   domain.BattleRecord
	Pokemon1 *domain.Pokemon
	Pokemon2 *domain.Pokemon
	Score1   float64
	Score2   float64
}

// Score computes 0.3×HP + 0.4×Attack + 0.2×Defense + 0.1×Speed + u
func Score(p *domain.Pokemon, u float64) (float64, error) {
	hp, ok1 := p.BaseStat(domain.StatHP)
	atk, ok2 := p.BaseStat(domain.StatAttack)
	def, ok3 := p.BaseStat(domain.StatDefense)
	spd, ok4 := p.BaseStat(domain.StatSpeed)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, fmt.Errorf("%w: %s is missing a base stat", ErrBattleUnavailable, p.Name)
	}
	return weightHP*float64(hp) + weightAttack*float64(atk) + weightDefense*float64(def) + weightSpeed*float64(spd) + u, nil
}

// Resolve fights player1 against player2 and appends the outcome to the
// history. Equal scores are a tie and leave the winner nil.
func (r *Resolver) Resolve(ctx context.Context, player1, player2 domain.ContestantID) (*Result, error) {
	// Both favorites lists are checked before any random draw.
	favs1, err := r.loadFavorites(ctx, player1)
	if err != nil {
		return nil, err
	}
	favs2, err := r.loadFavorites(ctx, player2)
	if err != nil {
		return nil, err
	}

	id1 := r.pick(favs1)
	id2 := r.pick(favs2)

	p1, p2, err := r.fetchPair(ctx, id1, id2)
	if err != nil {
		return nil, err
	}

	score1, err := Score(p1, r.rng.Float64())
	if err != nil {
		return nil, err
	}
	score2, err := Score(p2, r.rng.Float64())
	if err != nil {
		return nil, err
	}

	rec := domain.BattleRecord{
		Player1ID: player1,
		Player2ID: player2,
		Timestamp: r.now(),
	}
	switch {
	case score1 > score2:
		rec.WinnerID = &player1
	case score2 > score1:
		rec.WinnerID = &player2
	}

	var limit storage.BattleLimit
	if r.limiter != nil {
		limit = r.limiter.AppendLimitAt(rec.Timestamp)
	}
	if err := r.history.AppendBattle(ctx, &rec, limit); err != nil {
		if errors.Is(err, storage.ErrDailyLimit) {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("recording battle: %w", err)
	}

	r.logger.Info("battle recorded",
		"battle_id", rec.ID,
		"player1", player1.String(), "pokemon1", p1.Name, "score1", score1,
		"player2", player2.String(), "pokemon2", p2.Name, "score2", score2,
		"tie", rec.IsTie())

	for _, o := range r.observers {
		o.BattleRecorded(ctx, rec)
	}

	return &Result{Record: rec, Pokemon1: p1, Pokemon2: p2, Score1: score1, Score2: score2}, nil
}

// loadFavorites returns nil for the bot, which draws from the whole dex
func (r *Resolver) loadFavorites(ctx context.Context, id domain.ContestantID) ([]domain.Favorite, error) {
	if id.IsBot() {
		return nil, nil
	}
	favs, err := r.favorites.Favorites(ctx, id.UserID())
	if err != nil {
		return nil, fmt.Errorf("loading favorites for %s: %w", id, err)
	}
	if len(favs) == 0 {
		return nil, &NoFavoritesError{Player: id}
	}
	return favs, nil
}

// pick draws uniformly from favs, or from 1..botMaxID when favs is nil
func (r *Resolver) pick(favs []domain.Favorite) int {
	if favs == nil {
		return r.rng.IntN(r.botMaxID) + 1
	}
	return favs[r.rng.IntN(len(favs))].PokemonID
}

// fetchPair loads both Pokémon concurrently
func (r *Resolver) fetchPair(ctx context.Context, id1, id2 int) (*domain.Pokemon, *domain.Pokemon, error) {
	var (
		wg         sync.WaitGroup
		p1, p2     *domain.Pokemon
		err1, err2 error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		p1, err1 = r.pokemon.Pokemon(ctx, id1)
	}()
	go func() {
		defer wg.Done()
		p2, err2 = r.pokemon.Pokemon(ctx, id2)
	}()
	wg.Wait()

	if err := errors.Join(err1, err2); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBattleUnavailable, err)
	}
	return p1, p2, nil
}
