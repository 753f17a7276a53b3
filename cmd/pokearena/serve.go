package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ernie/pokearena/internal/api"
	"github.com/ernie/pokearena/internal/auth"
	"github.com/ernie/pokearena/internal/battle"
	"github.com/ernie/pokearena/internal/events"
	"github.com/ernie/pokearena/internal/leaderboard"
	"github.com/ernie/pokearena/internal/matchmaking"
	"github.com/ernie/pokearena/internal/metrics"
	"github.com/ernie/pokearena/internal/pokeapi"
	"github.com/ernie/pokearena/internal/presence"
	"github.com/ernie/pokearena/internal/videos"
	flag "github.com/spf13/pflag"
)

// cmdServe starts the web and arena server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	logger.Info("pokearena starting", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store := openStore(cfg)
	defer store.Close()
	logger.Info("database initialized", "path", cfg.Database.Path)

	// Upstream Pokémon data, cached in Redis when configured
	dex := pokeapi.NewClient(cfg.PokeAPI.BaseURL, cfg.PokeAPI.Timeout, logger)
	if cfg.Cache.RedisAddr != "" {
		cache, err := pokeapi.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, serving PokeAPI uncached", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			defer cache.Close()
			dex = dex.WithCache(cache, cfg.Cache.TTL)
			logger.Info("pokeapi cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		}
	}

	m := metrics.New()
	observers := []battle.Observer{m}

	// Battle feed
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		ns, err := events.StartEmbedded(cfg.NATS.Host, cfg.NATS.Port)
		if err != nil {
			logger.Error("failed to start embedded nats", "error", err)
			os.Exit(1)
		}
		defer ns.Shutdown()
		natsURL = ns.ClientURL()
		logger.Info("embedded nats started", "url", natsURL)
	}
	if natsURL != "" {
		nc, err := events.Connect(natsURL, "pokearena")
		if err != nil {
			logger.Warn("battle feed disabled", "url", natsURL, "error", err)
		} else {
			defer nc.Close()
			observers = append(observers, events.NewPublisher(nc, cfg.NATS.Subject, logger))
			logger.Info("publishing battles", "subject", cfg.NATS.Subject)
		}
	}

	registry := presence.NewRegistry(logger)
	registry.OnChange(m.SetOnline)

	limiter := battle.NewLimiter(store, cfg.Battle.DailyLimit)
	resolver := battle.NewResolver(store, dex, store, battle.Config{
		BotMaxPokemonID: cfg.Battle.BotMaxPokemonID,
		Limiter:         limiter,
		Observers:       observers,
		Logger:          logger,
	})
	arena := matchmaking.NewHandler(resolver, limiter, registry, matchmaking.Options{
		MessageRate:  cfg.Battle.MessageRate,
		MessageBurst: cfg.Battle.MessageBurst,
		Observer:     m,
	}, logger)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured, session tokens use an empty secret")
	}

	yt := videos.NewClient(cfg.YouTube.BaseURL, cfg.YouTube.APIKey, cfg.PokeAPI.Timeout)
	if !yt.Configured() {
		logger.Warn("YOUTUBE_API_KEY not set, video highlights disabled")
	}

	router := api.NewRouter(ctx, api.Config{
		Store:          store,
		Auth:           authService,
		Presence:       registry,
		Matchmaking:    arena,
		Leaderboard:    leaderboard.NewService(store, cfg.Battle.LeaderboardMinBattles),
		Pokemon:        dex,
		Videos:         yt,
		Metrics:        m,
		Logger:         logger,
		StaticDir:      cfg.Server.StaticDir,
		AuthorsFile:    cfg.Server.AuthorsFile,
		CookieName:     cfg.Auth.CookieName,
		SecureCookie:   cfg.Auth.SecureCookie,
		FavoritesLimit: cfg.Battle.FavoritesLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if cfg.Server.StaticDir != "" {
		logger.Info("serving static files", "dir", cfg.Server.StaticDir)
	}

	// Start HTTP server
	addr := cfg.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	// Sequential shutdown
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	// Hijacked arena sockets are not covered by Shutdown.
	registry.Close()
	cancel()
	logger.Info("shutdown complete")
}
