// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. A .env file in the working directory is loaded
// before anything else and never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Storage backend names.
const (
	StorageSQLite     = "sqlite"
	StoragePostgreSQL = "postgresql"
	StorageMongoDB    = "mongodb"

	// StorageMemory keeps the catalog in process memory; it is lost on restart.
	StorageMemory = "memory"
)

// Identity cache backend names.
const (
	CacheLocal = "local"
	CacheRedis = "redis"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Steam   SteamConfig   `yaml:"steam"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// RequestTimeout bounds the whole handling of one request, upstream fan-out included.
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	BodySizeLimit   string        `yaml:"body_size_limit"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	MetricsEndpoint string        `yaml:"metrics_endpoint"`
}

// SteamConfig holds upstream Steam settings
type SteamConfig struct {
	APIKey   string `yaml:"api_key"`
	APIURL   string `yaml:"api_url"`
	StoreURL string `yaml:"store_url"`
	// StrictResolution turns an unresolvable vanity name into a request failure
	// instead of forwarding the raw identifier.
	StrictResolution       bool    `yaml:"strict_resolution"`
	BackfillConcurrency    int     `yaml:"backfill_concurrency"`
	StoreRequestsPerSecond float64 `yaml:"store_requests_per_second"`
	// Locale drives the collation used when sorting apps and friends by name.
	Locale string `yaml:"locale"`
}

// StorageConfig selects and configures the catalog database
type StorageConfig struct {
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`

	// CommonRetention is how long a cached common library is kept before the
	// sweeper deletes it. Zero disables the sweeper.
	CommonRetention time.Duration `yaml:"common_retention"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// CacheConfig configures the vanity name -> steam id cache
type CacheConfig struct {
	Type  string           `yaml:"type"`
	TTL   time.Duration    `yaml:"ttl"`
	Local LocalCacheConfig `yaml:"local"`
	Redis RedisCacheConfig `yaml:"redis"`
}

// LocalCacheConfig holds in-process cache settings
type LocalCacheConfig struct {
	// Path optionally persists the cache to a JSON file. Empty keeps it in memory only.
	Path string `yaml:"path"`
}

// RedisCacheConfig holds Redis cache settings
type RedisCacheConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// HTTPConfig holds outbound HTTP client settings
type HTTPConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  60 * time.Second,
			BodySizeLimit:   "1M",
			CORSOrigins:     []string{"*"},
			MetricsEndpoint: "/metrics",
		},
		Steam: SteamConfig{
			APIURL:              "https://api.steampowered.com",
			StoreURL:            "https://store.steampowered.com/api",
			BackfillConcurrency: 10,
			Locale:              "en",
		},
		Storage: StorageConfig{
			Type:       StorageSQLite,
			SQLite:     SQLiteConfig{Path: "data/steamgate.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "steamgate"},

			CommonRetention: 7 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			Type:  CacheLocal,
			TTL:   24 * time.Hour,
			Redis: RedisCacheConfig{KeyPrefix: "steamgate:vanity:"},
		},
		HTTP: HTTPConfig{
			Timeout:               30 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Format: LogFormatAuto,
			Level:  "info",
		},
	}
}

// Load reads configuration from defaults, the optional YAML file and the environment.
func Load() (*Config, error) {
	// Optional; a missing .env is not an error and set variables win.
	_ = godotenv.Load()

	cfg := Defaults()

	if path := findConfigFile(); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case StorageSQLite, StoragePostgreSQL, StorageMongoDB, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q (valid: sqlite, postgresql, mongodb, memory)", c.Storage.Type))
	}

	switch c.Cache.Type {
	case CacheLocal:
	case CacheRedis:
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("cache.redis.url is required when cache.type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache type %q (valid: local, redis)", c.Cache.Type))
	}

	switch c.Log.Format {
	case LogFormatAuto, LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (valid: auto, json, text)", c.Log.Format))
	}

	if c.Steam.BackfillConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("steam.backfill_concurrency must be positive, got %d", c.Steam.BackfillConcurrency))
	}
	if c.Steam.StoreRequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("steam.store_requests_per_second must not be negative, got %v", c.Steam.StoreRequestsPerSecond))
	}
	if _, err := language.Parse(c.Steam.Locale); err != nil {
		errs = append(errs, fmt.Errorf("invalid steam.locale %q: %w", c.Steam.Locale, err))
	}
	if c.Storage.CommonRetention < 0 {
		errs = append(errs, errors.New("storage.common_retention must not be negative"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// findConfigFile returns the first existing config file, or "" when there is none.
func findConfigFile() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	for _, path := range []string{"config/config.yaml", "config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := expandString(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// A placeholder whose variable is unset or empty and has no default is left as-is.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT")
	setBool(&cfg.Server.MetricsEnabled, "METRICS_ENABLED")

	setString(&cfg.Steam.APIKey, "STEAM_API_KEY")
	setString(&cfg.Steam.APIURL, "STEAM_API_URL")
	setString(&cfg.Steam.StoreURL, "STEAM_STORE_URL")
	setBool(&cfg.Steam.StrictResolution, "STEAM_STRICT_RESOLUTION")
	setString(&cfg.Steam.Locale, "STEAM_LOCALE")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.PostgreSQL.URL, "POSTGRES_URL")
	setString(&cfg.Storage.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.Storage.MongoDB.Database, "MONGODB_DATABASE")
	setDuration(&cfg.Storage.CommonRetention, "COMMON_RETENTION")

	// Discrete PG_* variables from older deployments.
	if os.Getenv("POSTGRES_URL") == "" && os.Getenv("PG_HOST") != "" {
		cfg.Storage.PostgreSQL.URL = postgresURLFromParts()
		if os.Getenv("STORAGE_TYPE") == "" {
			cfg.Storage.Type = StoragePostgreSQL
		}
	}

	setString(&cfg.Cache.Type, "CACHE_TYPE")
	setString(&cfg.Cache.Redis.URL, "REDIS_URL")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")

	setDuration(&cfg.HTTP.Timeout, "HTTP_TIMEOUT")
	setDuration(&cfg.HTTP.ResponseHeaderTimeout, "HTTP_RESPONSE_HEADER_TIMEOUT")

	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
}

func postgresURLFromParts() string {
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(os.Getenv("PG_HOST"), port),
		Path:   "/" + os.Getenv("PG_DB"),
	}
	if user := os.Getenv("PG_USERNAME"); user != "" {
		if pass := os.Getenv("PG_PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts either plain integers (seconds) or Go duration strings (e.g. "10m").
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
