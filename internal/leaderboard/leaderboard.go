// Package leaderboard ranks users by their battle history.
package leaderboard

import (
	"context"
	"fmt"
	"slices"

	"github.com/ernie/pokearena/internal/domain"
)

// Points per result
const (
	winPoints = 3
	tiePoints = 1
)

// Compute aggregates wins, losses and ties for every registered user, drops
// users with fewer than minBattles battles and sorts by score, highest
// first. Users with equal scores keep their order in users.
func Compute(users []domain.User, battles []domain.BattleRecord, minBattles int) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, len(users))
	index := make(map[domain.ContestantID]int, len(users))
	for i, u := range users {
		rows[i] = domain.LeaderboardRow{ID: u.ID, Username: u.DisplayName}
		index[domain.UserContestant(u.ID)] = i
	}

	row := func(id domain.ContestantID) *domain.LeaderboardRow {
		if id.IsBot() {
			return nil
		}
		if i, ok := index[id]; ok {
			return &rows[i]
		}
		return nil
	}

	for _, b := range battles {
		p1, p2 := row(b.Player1ID), row(b.Player2ID)
		for _, r := range []*domain.LeaderboardRow{p1, p2} {
			if r != nil {
				r.TotalBattles++
			}
		}

		if b.WinnerID == nil {
			for _, r := range []*domain.LeaderboardRow{p1, p2} {
				if r != nil {
					r.Ties++
					r.Score += tiePoints
				}
			}
			continue
		}

		winner, loser := p1, p2
		if *b.WinnerID == b.Player2ID {
			winner, loser = p2, p1
		}
		if winner != nil {
			winner.Wins++
			winner.Score += winPoints
		}
		if loser != nil {
			loser.Losses++
		}
	}

	ranked := make([]domain.LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		if r.TotalBattles < minBattles || r.TotalBattles == 0 {
			continue
		}
		r.SuccessRate = float64(r.Wins) / float64(r.TotalBattles) * 100
		ranked = append(ranked, r)
	}

	slices.SortStableFunc(ranked, func(a, b domain.LeaderboardRow) int {
		return b.Score - a.Score
	})
	return ranked
}

// Source provides the inputs to Compute
type Source interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListBattles(ctx context.Context) ([]domain.BattleRecord, error)
}

// Service computes the leaderboard from a store on demand
type Service struct {
	source     Source
	minBattles int
}

// NewService creates a leaderboard service
func NewService(source Source, minBattles int) *Service {
	return &Service{source: source, minBattles: minBattles}
}

// Leaderboard loads users and history and ranks them
func (s *Service) Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error) {
	users, err := s.source.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	battles, err := s.source.ListBattles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing battles: %w", err)
	}
	return Compute(users, battles, s.minBattles), nil
}
