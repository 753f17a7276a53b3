package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ernie/pokearena/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateUser(t *testing.T, store *Store, name, email string) *domain.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return user
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ash := mustCreateUser(t, store, "Ash", "ash@example.com")
	misty := mustCreateUser(t, store, "Misty", "misty@example.com")

	if ash.ID != 1 || misty.ID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", ash.ID, misty.ID)
	}

	if _, err := store.CreateUser(ctx, "Other Ash", "ash@example.com", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: got %v, want ErrEmailTaken", err)
	}

	got, err := store.GetUserByEmail(ctx, "misty@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != misty.ID || got.DisplayName != "Misty" || got.PasswordHash != "hash" {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := store.GetUserByID(ctx, 99); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user: got %v, want ErrUserNotFound", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].ID != ash.ID || users[1].ID != misty.ID {
		t.Errorf("ListUsers order wrong: %+v", users)
	}

	if err := store.DeleteUser(ctx, ash.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if err := store.DeleteUser(ctx, ash.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second delete: got %v, want ErrUserNotFound", err)
	}
}

func TestFavorites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := mustCreateUser(t, store, "Ash", "ash@example.com")

	favs, err := store.Favorites(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if favs == nil || len(favs) != 0 {
		t.Errorf("empty favorites should be a non-nil empty slice, got %#v", favs)
	}

	for _, f := range []domain.Favorite{{PokemonID: 25, Name: "pikachu"}, {PokemonID: 6, Name: "charizard"}, {PokemonID: 1, Name: "bulbasaur"}} {
		if err := store.AddFavorite(ctx, user.ID, f, 3); err != nil {
			t.Fatalf("AddFavorite(%d) failed: %v", f.PokemonID, err)
		}
	}

	if err := store.AddFavorite(ctx, user.ID, domain.Favorite{PokemonID: 4, Name: "charmander"}, 3); !errors.Is(err, ErrFavoritesFull) {
		t.Errorf("over cap: got %v, want ErrFavoritesFull", err)
	}

	if err := store.RemoveFavorite(ctx, user.ID, 6); err != nil {
		t.Fatalf("RemoveFavorite failed: %v", err)
	}
	if err := store.RemoveFavorite(ctx, user.ID, 6); !errors.Is(err, ErrFavoriteNotFound) {
		t.Errorf("remove missing: got %v, want ErrFavoriteNotFound", err)
	}

	if err := store.AddFavorite(ctx, user.ID, domain.Favorite{PokemonID: 25, Name: "pikachu"}, 3); !errors.Is(err, ErrFavoriteExists) {
		t.Errorf("duplicate: got %v, want ErrFavoriteExists", err)
	}
	if err := store.AddFavorite(ctx, user.ID, domain.Favorite{PokemonID: 7, Name: "squirtle"}, 3); err != nil {
		t.Fatalf("AddFavorite after removal failed: %v", err)
	}

	favs, err = store.Favorites(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{25, 1, 7}
	if len(favs) != len(want) {
		t.Fatalf("got %d favorites, want %d", len(favs), len(want))
	}
	for i, id := range want {
		if favs[i].PokemonID != id {
			t.Errorf("favorite[%d] = %d, want %d (insertion order)", i, favs[i].PokemonID, id)
		}
	}
}

func TestAppendBattleAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	limit := BattleLimit{Max: 2, DayStart: day, DayEnd: day.AddDate(0, 0, 1)}

	winner := domain.ContestantID(2)
	first := &domain.BattleRecord{Player1ID: 1, Player2ID: 2, WinnerID: &winner, Timestamp: day.Add(9 * time.Hour)}
	if err := store.AppendBattle(ctx, first, limit); err != nil {
		t.Fatalf("AppendBattle failed: %v", err)
	}
	if first.ID == 0 {
		t.Error("AppendBattle did not set the record id")
	}

	tie := &domain.BattleRecord{Player1ID: 1, Player2ID: domain.BotID, Timestamp: day.Add(10 * time.Hour)}
	if err := store.AppendBattle(ctx, tie, limit); err != nil {
		t.Fatalf("AppendBattle(tie) failed: %v", err)
	}

	// Player 1 is now at the cap; the bot never is.
	third := &domain.BattleRecord{Player1ID: 3, Player2ID: 1, Timestamp: day.Add(11 * time.Hour)}
	if err := store.AppendBattle(ctx, third, limit); !errors.Is(err, ErrDailyLimit) {
		t.Errorf("over cap: got %v, want ErrDailyLimit", err)
	}

	// Yesterday's battles don't count toward today.
	yesterday := &domain.BattleRecord{Player1ID: 3, Player2ID: domain.BotID, Timestamp: day.Add(-time.Hour)}
	if err := store.AppendBattle(ctx, yesterday, BattleLimit{}); err != nil {
		t.Fatal(err)
	}

	count, err := store.CountBattles(ctx, 1, limit.DayStart, limit.DayEnd)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("CountBattles(1) = %d, want 2", count)
	}
	count, err = store.CountBattles(ctx, 3, limit.DayStart, limit.DayEnd)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("CountBattles(3) = %d, want 0", count)
	}

	battles, err := store.ListBattles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(battles) != 3 {
		t.Fatalf("ListBattles returned %d records, want 3", len(battles))
	}
	if battles[0].WinnerID == nil || *battles[0].WinnerID != 2 {
		t.Errorf("first battle winner = %v, want 2", battles[0].WinnerID)
	}
	if !battles[1].IsTie() || battles[1].Player2ID != domain.BotID {
		t.Errorf("second battle should be a bot tie: %+v", battles[1])
	}
	if !battles[0].Timestamp.Equal(first.Timestamp.Truncate(time.Second)) {
		t.Errorf("timestamp = %v, want %v", battles[0].Timestamp, first.Timestamp)
	}

	recent, err := store.RecentBattles(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != yesterday.ID {
		t.Errorf("RecentBattles = %+v, want newest record", recent)
	}
}

func TestAppendBattleConcurrentKeepsEveryRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &domain.BattleRecord{Player1ID: domain.ContestantID(i + 1), Player2ID: domain.BotID}
			errs <- store.AppendBattle(ctx, rec, BattleLimit{})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendBattle failed: %v", err)
		}
	}

	battles, err := store.ListBattles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(battles) != n {
		t.Errorf("got %d records, want %d (lost update)", len(battles), n)
	}
}

// A removed user's id is never handed out again, so their kept battle
// history cannot attach to a later account.
func TestDeletedUserIDNotReused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, store, "Ash", "ash@example.com")
	gary := mustCreateUser(t, store, "Gary", "gary@example.com")

	now := time.Now()
	for i := 0; i < 5; i++ {
		rec := &domain.BattleRecord{
			Player1ID: domain.UserContestant(gary.ID),
			Player2ID: domain.BotID,
			Timestamp: now,
		}
		if err := store.AppendBattle(ctx, rec, BattleLimit{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.DeleteUser(ctx, gary.ID); err != nil {
		t.Fatal(err)
	}

	brock := mustCreateUser(t, store, "Brock", "brock@example.com")
	if brock.ID == gary.ID {
		t.Fatalf("new user reuses deleted id %d", gary.ID)
	}
	start := now.Add(-time.Hour)
	n, err := store.CountBattles(ctx, domain.UserContestant(brock.ID), start, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("new user inherited %d battles", n)
	}
	if _, err := store.GetUserByID(ctx, gary.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUserByID(deleted) = %v, want ErrUserNotFound", err)
	}
}
