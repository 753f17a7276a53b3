package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	PokeAPI  PokeAPIConfig  `yaml:"pokeapi"`
	Battle   BattleConfig   `yaml:"battle"`
	Cache    CacheConfig    `yaml:"cache"`
	NATS     NATSConfig     `yaml:"nats"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	HTTPPort       int      `yaml:"http_port"`
	StaticDir      string   `yaml:"static_dir"`
	AuthorsFile    string   `yaml:"authors_file"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds session settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
	CookieName    string        `yaml:"cookie_name"`
	SecureCookie  bool          `yaml:"secure_cookie"`
}

// PokeAPIConfig holds settings for the upstream Pokémon data API
type PokeAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// BattleConfig holds arena rules
type BattleConfig struct {
	DailyLimit            int     `yaml:"daily_limit"`
	LeaderboardMinBattles int     `yaml:"leaderboard_min_battles"`
	FavoritesLimit        int     `yaml:"favorites_limit"`
	BotMaxPokemonID       int     `yaml:"bot_max_pokemon_id"`
	MessageRate           float64 `yaml:"message_rate"`
	MessageBurst          int64   `yaml:"message_burst"`
}

// CacheConfig holds the optional Redis cache for PokeAPI responses
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	TTL       time.Duration `yaml:"ttl"`
}

// NATSConfig holds battle feed settings
type NATSConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Subject  string `yaml:"subject"`
}

// YouTubeConfig holds the video search key
type YouTubeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file. An empty path yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 3003
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files
	if cfg.Server.AuthorsFile == "" && cfg.Server.StaticDir != "" {
		cfg.Server.AuthorsFile = filepath.Join(cfg.Server.StaticDir, "data", "authors.json")
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/pokearena/pokearena.db"
	}

	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "pokearena_session"
	}

	if cfg.PokeAPI.BaseURL == "" {
		cfg.PokeAPI.BaseURL = "https://pokeapi.co/api/v2"
	}
	if cfg.PokeAPI.Timeout == 0 {
		cfg.PokeAPI.Timeout = 10 * time.Second
	}
	if cfg.YouTube.BaseURL == "" {
		cfg.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}

	if cfg.Battle.DailyLimit == 0 {
		cfg.Battle.DailyLimit = 5
	}
	if cfg.Battle.LeaderboardMinBattles == 0 {
		cfg.Battle.LeaderboardMinBattles = 5
	}
	if cfg.Battle.FavoritesLimit == 0 {
		cfg.Battle.FavoritesLimit = 10
	}
	if cfg.Battle.BotMaxPokemonID == 0 {
		cfg.Battle.BotMaxPokemonID = 898
	}
	if cfg.Battle.MessageRate == 0 {
		cfg.Battle.MessageRate = 2
	}
	if cfg.Battle.MessageBurst == 0 {
		cfg.Battle.MessageBurst = 10
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}

	if cfg.NATS.Host == "" {
		cfg.NATS.Host = "127.0.0.1"
	}
	if cfg.NATS.Port == 0 {
		cfg.NATS.Port = 4222
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "pokearena.battles.recorded"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnv overrides secrets and deployment knobs from the environment
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		cfg.Server.HTTPPort = port
	}
	if v := os.Getenv("POKEARENA_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("POKEARENA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("POKEARENA_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("POKEARENA_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.HTTPPort)
}
