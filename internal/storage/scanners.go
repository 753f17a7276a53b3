package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ernie/pokearena/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullContestant(ni sql.NullInt64) *domain.ContestantID {
	if ni.Valid {
		id := domain.ContestantID(ni.Int64)
		return &id
	}
	return nil
}

func nullContestant(id *domain.ContestantID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanUser scans a user row from the database
func scanUser(s scanner) (*domain.User, error) {
	var user domain.User
	var createdAt string
	err := s.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &createdAt)
	if err != nil {
		return nil, err
	}
	if user.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// scanBattle scans a battle history row
func scanBattle(s scanner) (*domain.BattleRecord, error) {
	var b domain.BattleRecord
	var p1, p2 int64
	var winner sql.NullInt64
	var foughtAt string
	if err := s.Scan(&b.ID, &p1, &p2, &winner, &foughtAt); err != nil {
		return nil, err
	}
	ts, err := parseTimestamp(foughtAt)
	if err != nil {
		return nil, err
	}
	b.Player1ID = domain.ContestantID(p1)
	b.Player2ID = domain.ContestantID(p2)
	b.WinnerID = scanNullContestant(winner)
	b.Timestamp = ts
	return &b, nil
}
