package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	_ "modernc.org/sqlite"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrFavoritesFull    = errors.New("favorites list is full")
	ErrFavoriteExists   = errors.New("pokemon already in favorites")
	ErrFavoriteNotFound = errors.New("pokemon not found in favorites")
	ErrDailyLimit       = errors.New("daily battle limit reached")
)

// formatTimestamp converts time.Time to a sortable UTC ISO8601 string
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// This also makes every battle append a single serialized writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// --- User methods ---

// CreateUser creates a new user account. The id is one past the current maximum.
func (s *Store) CreateUser(ctx context.Context, displayName, email, passwordHash string) (*domain.User, error) {
	createdAt := s.now().UTC().Truncate(time.Second)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (display_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, displayName, email, passwordHash, formatTimestamp(createdAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}
	return &domain.User{
		ID:           id,
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE email = ?
	`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE id = ?
	`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns all users in registration order
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// DeleteUser removes a user and their favorites. Battle history is kept.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// --- Favorite methods ---

// Favorites returns a user's favorites in the order they were added
func (s *Store) Favorites(ctx context.Context, userID int64) ([]domain.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pokemon_id, name FROM favorites WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favorites := []domain.Favorite{}
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.PokemonID, &f.Name); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// AddFavorite appends a favorite, enforcing the per-user cap and uniqueness
func (s *Store) AddFavorite(ctx context.Context, userID int64, fav domain.Favorite, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM favorites WHERE user_id = ?
	`, userID).Scan(&count); err != nil {
		return err
	}
	if limit > 0 && count >= limit {
		return ErrFavoritesFull
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO favorites (user_id, pokemon_id, name) VALUES (?, ?, ?)
	`, userID, fav.PokemonID, fav.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFavoriteExists
		}
		return fmt.Errorf("adding favorite: %w", err)
	}
	return tx.Commit()
}

// RemoveFavorite deletes one favorite by pokemon id
func (s *Store) RemoveFavorite(ctx context.Context, userID int64, pokemonID int) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE user_id = ? AND pokemon_id = ?
	`, userID, pokemonID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

// --- Battle methods ---

// CountBattles counts battles involving the contestant in [start, end)
func (s *Store) CountBattles(ctx context.Context, id domain.ContestantID, start, end time.Time) (int, error) {
	return countBattles(ctx, s.db, id, start, end)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countBattles(ctx context.Context, q queryRower, id domain.ContestantID, start, end time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM battles
		WHERE (player1_id = ? OR player2_id = ?) AND fought_at >= ? AND fought_at < ?
	`, int64(id), int64(id), formatTimestamp(start), formatTimestamp(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting battles: %w", err)
	}
	return count, nil
}

// BattleLimit bounds an append: every human participant must have fewer
// than Max battles in [DayStart, DayEnd). A zero Max disables the check.
type BattleLimit struct {
	Max      int
	DayStart time.Time
	DayEnd   time.Time
}

// AppendBattle records a resolved battle. The cap check and the insert run
// in one transaction on the single connection, so concurrent battles can
// neither overwrite each other nor overshoot the cap.
func (s *Store) AppendBattle(ctx context.Context, rec *domain.BattleRecord, limit BattleLimit) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if limit.Max > 0 {
		for _, id := range []domain.ContestantID{rec.Player1ID, rec.Player2ID} {
			if id.IsBot() {
				continue
			}
			count, err := countBattles(ctx, tx, id, limit.DayStart, limit.DayEnd)
			if err != nil {
				return err
			}
			if count >= limit.Max {
				return fmt.Errorf("%w: player %s", ErrDailyLimit, id)
			}
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO battles (player1_id, player2_id, winner_id, fought_at)
		VALUES (?, ?, ?, ?)
	`, int64(rec.Player1ID), int64(rec.Player2ID), nullContestant(rec.WinnerID), formatTimestamp(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("appending battle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing battle: %w", err)
	}

	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListBattles returns the whole history, oldest first
func (s *Store) ListBattles(ctx context.Context) ([]domain.BattleRecord, error) {
	return s.queryBattles(ctx, `
		SELECT id, player1_id, player2_id, winner_id, fought_at FROM battles ORDER BY id
	`)
}

// RecentBattles returns the newest battles first
func (s *Store) RecentBattles(ctx context.Context, limit int) ([]domain.BattleRecord, error) {
	return s.queryBattles(ctx, `
		SELECT id, player1_id, player2_id, winner_id, fought_at FROM battles ORDER BY id DESC LIMIT ?
	`, limit)
}

func (s *Store) queryBattles(ctx context.Context, query string, args ...any) ([]domain.BattleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var battles []domain.BattleRecord
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}
