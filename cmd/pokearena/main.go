// pokearena - Pokémon favorites and battle arena server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ernie/pokearena/internal/auth"
	"github.com/ernie/pokearena/internal/config"
	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/events"
	"github.com/ernie/pokearena/internal/leaderboard"
	"github.com/ernie/pokearena/internal/storage"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

var version = "dev"

const defaultConfigPath = "/etc/pokearena/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "leaderboard":
		cmdLeaderboard(os.Args[2:])
	case "battles":
		cmdBattles(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "version":
		fmt.Printf("pokearena %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: pokearena <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the web and arena server")
	fmt.Println("  user add --name <name> <email>      Add a user (prompts for password)")
	fmt.Println("  user remove <email>                 Remove a user and their favorites")
	fmt.Println("  user list                           List all users")
	fmt.Println("  leaderboard [--top N]               Show the arena leaderboard (default: 20)")
	fmt.Println("  battles [--recent N]                Show recent battles (default: 20)")
	fmt.Println("  watch                               Stream battles as they are recorded")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/pokearena/config.yml)")
	fmt.Println()
	fmt.Println("Environment (also read from .env):")
	fmt.Println("  PORT, POKEARENA_JWT_SECRET, POKEARENA_DB_PATH, POKEARENA_REDIS_ADDR,")
	fmt.Println("  POKEARENA_NATS_URL, YOUTUBE_API_KEY")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pokearena serve --config ./config.yml")
	fmt.Println("  pokearena user add --name Ash ash@example.com")
	fmt.Println("  pokearena battles --recent 50")
}

// loadConfig reads .env, then the config file. A missing default config
// file means built-in defaults.
func loadConfig(path string) *config.Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	}))
}

func openStore(cfg *config.Config) *storage.Store {
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

// cmdUser handles user subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list\n")
		os.Exit(1)
	}

	subCmd := args[0]
	fs := flag.NewFlagSet("user "+subCmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	name := fs.String("name", "", "display name for the new user")
	fs.Parse(args[1:])

	store := openStore(loadConfig(*configPath))
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, *name, fs.Args())
	case "remove":
		err = cmdUserRemove(ctx, store, fs.Args())
	case "list":
		err = cmdUserList(ctx, store)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdUserAdd(ctx context.Context, store *storage.Store, name string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pokearena user add --name <name> <email>")
	}
	email := args[0]

	if msg := auth.ValidateDisplayName(name); msg != "" {
		return errors.New(msg)
	}
	if _, err := store.GetUserByEmail(ctx, email); err == nil {
		return fmt.Errorf("user '%s' already exists", email)
	}

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if msg := auth.ValidatePassword(string(password)); msg != "" {
		return errors.New(msg)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := store.CreateUser(ctx, name, email, hash)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("User '%s' created with id %d\n", user.Email, user.ID)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pokearena user remove <email>")
	}
	email := args[0]

	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %s", email)
	}
	if err := store.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", email)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tREGISTERED")
	fmt.Fprintln(w, "--\t----\t-----\t----------")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.DisplayName, u.Email, u.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cmdLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("top", 20, "number of top players to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store := openStore(cfg)
	defer store.Close()

	rows, err := leaderboard.NewService(store, cfg.Battle.LeaderboardMinBattles).Leaderboard(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tWINS\tLOSSES\tTIES\tBATTLES\tSCORE\tWIN %")
	fmt.Fprintln(w, "----\t------\t----\t------\t----\t-------\t-----\t-----")
	for i, row := range rows {
		if i >= *limit {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%.1f\n",
			i+1, row.Username, row.Wins, row.Losses, row.Ties, row.TotalBattles, row.Score, row.SuccessRate)
	}
	w.Flush()
}

func cmdBattles(args []string) {
	fs := flag.NewFlagSet("battles", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("recent", 20, "number of recent battles to show")
	fs.Parse(args)

	store := openStore(loadConfig(*configPath))
	defer store.Close()

	ctx := context.Background()
	battles, err := store.RecentBattles(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	names, err := userNames(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAYER 1\tPLAYER 2\tWINNER\tFOUGHT")
	fmt.Fprintln(w, "--\t--------\t--------\t------\t------")
	for _, b := range battles {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.ID,
			contestantName(names, b.Player1ID), contestantName(names, b.Player2ID),
			winnerName(names, b), b.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

// cmdWatch prints battles from the NATS feed until interrupted
func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	url := fs.String("nats", "", "NATS URL (default: from config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	natsURL := *url
	if natsURL == "" {
		natsURL = cfg.NATS.URL
	}
	if natsURL == "" && cfg.NATS.Embedded {
		natsURL = fmt.Sprintf("nats://%s:%d", cfg.NATS.Host, cfg.NATS.Port)
	}
	if natsURL == "" {
		fmt.Fprintln(os.Stderr, "Error: no NATS server configured (set nats.url or nats.embedded)")
		os.Exit(1)
	}

	nc, err := events.Connect(natsURL, "pokearena-watch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	// Names are best effort; the feed works without the database.
	names := map[int64]string{}
	if store, err := storage.New(cfg.Database.Path); err == nil {
		names, _ = userNames(context.Background(), store)
		store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s on %s\n", cfg.NATS.Subject, natsURL)
	err = events.Subscribe(ctx, nc, cfg.NATS.Subject, func(b domain.BattleRecord) {
		fmt.Printf("%s  #%d  %s vs %s  winner: %s\n",
			b.Timestamp.Local().Format("15:04:05"), b.ID,
			contestantName(names, b.Player1ID), contestantName(names, b.Player2ID),
			winnerName(names, b))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func userNames(ctx context.Context, store *storage.Store) (map[int64]string, error) {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName
	}
	return names, nil
}

func contestantName(names map[int64]string, id domain.ContestantID) string {
	if id.IsBot() {
		return "Bot"
	}
	if name, ok := names[id.UserID()]; ok {
		return name
	}
	return "#" + id.String()
}

func winnerName(names map[int64]string, b domain.BattleRecord) string {
	if b.IsTie() {
		return "tie"
	}
	return contestantName(names, *b.WinnerID)
}
