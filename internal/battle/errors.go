package battle

import (
	"errors"
	"fmt"

	"github.com/ernie/pokearena/internal/domain"
)

var (
	ErrNoFavorites       = errors.New("no favorite pokemon")
	ErrRateLimited       = errors.New("daily battle limit reached")
	ErrSelfChallenge     = errors.New("cannot challenge yourself")
	ErrBattleUnavailable = errors.New("battle unavailable")
)

// NoFavoritesError names the contestant whose favorites list was empty
type NoFavoritesError struct {
	Player domain.ContestantID
}

func (e *NoFavoritesError) Error() string {
	return fmt.Sprintf("player %s has no favorite pokemon", e.Player)
}

func (e *NoFavoritesError) Unwrap() error {
	return ErrNoFavorites
}
