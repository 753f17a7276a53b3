package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernie/pokearena/internal/auth"
	"github.com/ernie/pokearena/internal/leaderboard"
	"github.com/ernie/pokearena/internal/matchmaking"
	"github.com/ernie/pokearena/internal/metrics"
	"github.com/ernie/pokearena/internal/presence"
	"github.com/ernie/pokearena/internal/storage"
	"github.com/ernie/pokearena/internal/videos"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
)

// protectedPages need a session; anonymous browsers are sent to the login page
var protectedPages = map[string]bool{
	"/details.html":           true,
	"/favorites.html":         true,
	"/arena.html":             true,
	"/arena-vs-bot.html":      true,
	"/arena-vs-player.html":   true,
	"/arena-leaderboard.html": true,
}

// Config holds the router's dependencies
type Config struct {
	Store          *storage.Store
	Auth           *auth.Service
	Presence       *presence.Registry
	Matchmaking    *matchmaking.Handler
	Leaderboard    *leaderboard.Service
	Pokemon        PokemonSource
	Videos         *videos.Client
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	StaticDir      string
	AuthorsFile    string
	CookieName     string
	SecureCookie   bool
	FavoritesLimit int
	AllowedOrigins []string
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux         *http.ServeMux
	handler     http.Handler
	ctx         context.Context
	store       *storage.Store
	auth        *auth.Service
	presence    *presence.Registry
	matchmaking *matchmaking.Handler
	leaderboard *leaderboard.Service
	pokemon     PokemonSource
	videos      *videos.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger

	staticDir      string
	authorsFile    string
	cookieName     string
	secureCookie   bool
	favoritesLimit int
}

// NewRouter creates a new HTTP router
func NewRouter(ctx context.Context, cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r := &Router{
		mux:            http.NewServeMux(),
		ctx:            ctx,
		store:          cfg.Store,
		auth:           cfg.Auth,
		presence:       cfg.Presence,
		matchmaking:    cfg.Matchmaking,
		leaderboard:    cfg.Leaderboard,
		pokemon:        cfg.Pokemon,
		videos:         cfg.Videos,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		staticDir:      cfg.StaticDir,
		authorsFile:    cfg.AuthorsFile,
		cookieName:     cfg.CookieName,
		secureCookie:   cfg.SecureCookie,
		favoritesLimit: cfg.FavoritesLimit,
	}

	// Auth routes
	r.handle("POST /api/auth/register", "auth_register", r.handleRegister)
	r.handle("POST /api/auth/login", "auth_login", r.handleLogin)
	r.handle("POST /api/auth/logout", "auth_logout", r.handleLogout)
	r.handle("GET /api/auth/status", "auth_status", r.handleAuthStatus)

	// Favorites and details
	r.handle("GET /api/pokemon/favorites", "favorites_list", r.requireAuth(r.handleGetFavorites))
	r.handle("POST /api/pokemon/favorites", "favorites_add", r.requireAuth(r.handleAddFavorite))
	r.handle("DELETE /api/pokemon/favorites/{id}", "favorites_remove", r.requireAuth(r.handleRemoveFavorite))
	r.handle("GET /api/pokemon/videos/{name}", "videos", r.requireAuth(r.handleGetVideos))

	r.handle("GET /api/leaderboard", "leaderboard", r.requireAuth(r.handleGetLeaderboard))
	r.handle("GET /api/battles/recent", "battles_recent", r.requireAuth(r.handleGetRecentBattles))
	r.handle("GET /api/authors", "authors", r.handleGetAuthors)

	// Arena WebSocket
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	r.mux.HandleFunc("GET /health", r.handleHealth)
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics.Handler())
	}

	// Static files - only serve if staticDir is configured
	if r.staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	compressed := gzhttp.GzipHandler(r.mux)
	r.handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// The upgrade needs the raw connection.
		if req.URL.Path == "/ws" {
			r.mux.ServeHTTP(w, req)
			return
		}
		compressed.ServeHTTP(w, req)
	}))

	return r
}

// handle registers an API route, instrumented when metrics are enabled
func (r *Router) handle(pattern, endpoint string, h http.HandlerFunc) {
	if r.metrics == nil {
		r.mux.HandleFunc(pattern, h)
		return
	}
	r.mux.Handle(pattern, r.metrics.Middleware(endpoint, h))
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// handleHealth reports liveness and the number of connected players
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	online := 0
	if r.presence != nil {
		online = r.presence.Count()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "online": online})
}

// handleStatic serves static files from the configured directory. Protected
// pages require a session.
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	// Clean the path
	path := filepath.Clean("/" + req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	if protectedPages[path] && r.getAuthClaims(req) == nil {
		http.Redirect(w, req, "/login.html", http.StatusFound)
		return
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		http.NotFound(w, req)
		return
	}

	if contentType := getContentType(fullPath); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeFile(w, req, fullPath)
}

// getContentType returns the content type for a file based on extension
func getContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".ico":
		return "image/x-icon"
	default:
		return ""
	}
}
