package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Feed backends.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

const devJWTSecret = "smartmark-dev-secret-change-in-production"

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`      // ex: ":8080"
	BaseURL         string        `yaml:"base_url"`         // public URL, used for OIDC redirects
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // ex: 5s

	DBPath string `yaml:"db_path"` // sqlite file, ":memory:" allowed

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	Feed  FeedConfig  `yaml:"feed"`
	Redis RedisConfig `yaml:"redis"`
	OIDC  OIDCConfig  `yaml:"oidc"`
}

type FeedConfig struct {
	Backend   string        `yaml:"backend"`   // "memory" | "redis"
	Buffer    int           `yaml:"buffer"`    // per-subscriber event buffer
	Heartbeat time.Duration `yaml:"heartbeat"` // SSE keep-alive interval
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PoolSize       int           `yaml:"pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // total time to retry connecting
	RetryInterval  time.Duration `yaml:"retry_interval"`  // initial wait, doubles up to MaxWait
	MaxWait        time.Duration `yaml:"max_wait"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	WarnThreshold  int           `yaml:"warn_threshold"`
}

// OIDCConfig seeds one sign-in provider at startup. Empty ClientID disables it.
type OIDCConfig struct {
	Name         string `yaml:"name"`
	Slug         string `yaml:"slug"`
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scopes       string `yaml:"scopes"`
}

// Enabled reports whether a provider should be seeded.
func (o OIDCConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		BaseURL:         "http://localhost:8080",
		ShutdownTimeout: 5 * time.Second,
		DBPath:          "smartmark.db",
		LogLevel:        "info",
		PrettyLog:       true,
		JWTSecret:       devJWTSecret,
		TokenTTL:        24 * time.Hour,
		Feed: FeedConfig{
			Backend:   FeedMemory,
			Buffer:    64,
			Heartbeat: 25 * time.Second,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			DialTimeout:    5 * time.Second,
			ReadTimeout:    3 * time.Second,
			WriteTimeout:   3 * time.Second,
			PoolSize:       10,
			ConnectTimeout: 30 * time.Second,
			RetryInterval:  2 * time.Second,
			MaxWait:        10 * time.Second,
			PingTimeout:    5 * time.Second,
			WarnThreshold:  3,
		},
		OIDC: OIDCConfig{
			Name:   "Google",
			Slug:   "google",
			Issuer: "https://accounts.google.com",
			Scopes: "openid profile email",
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults, a
// YAML file named by SMARTMARK_CONFIG, and SMARTMARK_* environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("SMARTMARK_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenv("SMARTMARK_LISTEN_ADDR", cfg.ListenAddr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SMARTMARK_LISTEN_ADDR") == "" {
		cfg.ListenAddr = ":" + port
	}
	cfg.BaseURL = strings.TrimRight(getenv("SMARTMARK_BASE_URL", cfg.BaseURL), "/")
	cfg.ShutdownTimeout = mustDuration("SMARTMARK_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.DBPath = getenv("SMARTMARK_DB_PATH", cfg.DBPath)

	cfg.LogLevel = getenv("SMARTMARK_LOG_LEVEL", cfg.LogLevel)
	cfg.PrettyLog = mustBool("SMARTMARK_PRETTY_LOG", cfg.PrettyLog)

	cfg.JWTSecret = getenv("SMARTMARK_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = mustDuration("SMARTMARK_TOKEN_TTL", cfg.TokenTTL)

	cfg.Feed.Backend = strings.ToLower(getenv("SMARTMARK_FEED_BACKEND", cfg.Feed.Backend))
	cfg.Feed.Buffer = getenvInt("SMARTMARK_FEED_BUFFER", cfg.Feed.Buffer)
	cfg.Feed.Heartbeat = mustDuration("SMARTMARK_FEED_HEARTBEAT", cfg.Feed.Heartbeat)

	cfg.Redis.Addr = getenv("SMARTMARK_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.User = getenv("SMARTMARK_REDIS_USERNAME", cfg.Redis.User)
	cfg.Redis.Password = getenv("SMARTMARK_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvInt("SMARTMARK_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.DialTimeout = mustDuration("REDIS_DIAL_TIMEOUT", cfg.Redis.DialTimeout)
	cfg.Redis.ReadTimeout = mustDuration("REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout)
	cfg.Redis.WriteTimeout = mustDuration("REDIS_WRITE_TIMEOUT", cfg.Redis.WriteTimeout)
	cfg.Redis.PoolSize = getenvInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.ConnectTimeout = mustDuration("REDIS_CONNECT_TIMEOUT", cfg.Redis.ConnectTimeout)
	cfg.Redis.RetryInterval = mustDuration("REDIS_RETRY_INTERVAL", cfg.Redis.RetryInterval)
	cfg.Redis.MaxWait = mustDuration("REDIS_MAX_WAIT", cfg.Redis.MaxWait)
	cfg.Redis.PingTimeout = mustDuration("REDIS_PING_TIMEOUT", cfg.Redis.PingTimeout)
	cfg.Redis.WarnThreshold = getenvInt("REDIS_WARN_THRESHOLD", cfg.Redis.WarnThreshold)

	cfg.OIDC.Name = getenv("SMARTMARK_OIDC_NAME", cfg.OIDC.Name)
	cfg.OIDC.Slug = getenv("SMARTMARK_OIDC_SLUG", cfg.OIDC.Slug)
	cfg.OIDC.Issuer = getenv("SMARTMARK_OIDC_ISSUER", cfg.OIDC.Issuer)
	cfg.OIDC.ClientID = getenv("SMARTMARK_OIDC_CLIENT_ID", cfg.OIDC.ClientID)
	cfg.OIDC.ClientSecret = getenv("SMARTMARK_OIDC_CLIENT_SECRET", cfg.OIDC.ClientSecret)
	cfg.OIDC.Scopes = getenv("SMARTMARK_OIDC_SCOPES", cfg.OIDC.Scopes)
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Feed.Backend {
	case FeedMemory, FeedRedis:
	default:
		return fmt.Errorf("invalid feed backend %q: must be %q or %q", c.Feed.Backend, FeedMemory, FeedRedis)
	}
	if c.Feed.Buffer <= 0 {
		return fmt.Errorf("feed buffer must be > 0, got %d", c.Feed.Buffer)
	}
	if c.Feed.Heartbeat <= 0 {
		return fmt.Errorf("feed heartbeat must be > 0, got %v", c.Feed.Heartbeat)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be > 0, got %v", c.TokenTTL)
	}
	if c.DBPath == "" {
		return errors.New("db path must not be empty")
	}
	return nil
}

// UsesDevSecret reports whether the built-in development JWT secret is active.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	cp.JWTSecret = "***REDACTED***"
	if cp.Redis.Password != "" {
		cp.Redis.Password = "***REDACTED***"
	}
	if cp.OIDC.ClientSecret != "" {
		cp.OIDC.ClientSecret = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
