// Package config provides centralized configuration management for the loader.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Loader   LoaderConfig
	Logging  LoggingConfig
}

// ServerConfig holds status server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// APIKeys is a comma-separated list of keys accepted by POST /api/run.
	// Empty leaves the trigger open.
	APIKeys []string `env:"SERVER_API_KEYS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP and X-Forwarded-For headers are honored.
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES" default:"127.0.0.1/32,::1/128"`

	// RunRatePerMinute limits POST /api/run across all clients. 0 disables.
	RunRatePerMinute int `env:"SERVER_RUN_RATE_PER_MINUTE" default:"6"`

	// RunRateBurst is the number of triggers admitted back to back.
	RunRateBurst int `env:"SERVER_RUN_RATE_BURST" default:"2"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MigrationsTable is the golang-migrate bookkeeping table (default: schema_migrations)
	MigrationsTable string `env:"DB_MIGRATIONS_TABLE" default:"schema_migrations"`
}

// LoaderConfig holds list acquisition and conversion settings.
type LoaderConfig struct {
	// WorkDir holds downloaded lists and the state file (default: ./data)
	WorkDir string `env:"LOADER_WORK_DIR" default:"./data"`

	// ListFile is the name of the full list archive (default: Filmliste-akt.xz)
	ListFile string `env:"LOADER_LIST_FILE" default:"Filmliste-akt.xz"`

	// DiffFile is the name of the diff list archive (default: Filmliste-diff.xz)
	DiffFile string `env:"LOADER_DIFF_FILE" default:"Filmliste-diff.xz"`

	// Mirrors is a comma-separated list of download base URLs
	Mirrors []string `env:"LOADER_MIRRORS" default:"https://liste.mediathekview.de"`

	// MirrorFailLimit skips a mirror after this many consecutive failures (default: 3)
	MirrorFailLimit int `env:"LOADER_MIRROR_FAIL_LIMIT" default:"3"`

	// MaxAgeDays drops entries older than this many days, 0 keeps all (default: 0)
	MaxAgeDays int `env:"LOADER_MAX_AGE_DAYS" default:"0"`

	// MaxBatchBytes bounds a single statement (default: 1 MiB - 4096)
	MaxBatchBytes int `env:"LOADER_MAX_BATCH_BYTES" default:"1044480"`

	// MinEntries is the smallest full list that is committed (default: 1000)
	MinEntries int `env:"LOADER_MIN_ENTRIES" default:"1000"`

	// Schema is the registered list layout (default: filmliste-v3)
	Schema string `env:"LOADER_SCHEMA" default:"filmliste-v3"`

	// Timezone interprets list dates without zone (default: Europe/Berlin)
	Timezone string `env:"LOADER_TIMEZONE" default:"Europe/Berlin"`

	// RunTimeout bounds one complete run (default: 30m)
	RunTimeout time.Duration `env:"LOADER_RUN_TIMEOUT" default:"30m"`

	// StateFile is the YAML run state, relative to WorkDir (default: state.yaml)
	StateFile string `env:"LOADER_STATE_FILE" default:"state.yaml"`

	// VersionCheckBytes is the archive prefix fetched to read the remote header (default: 8192)
	VersionCheckBytes int64 `env:"LOADER_VERSION_CHECK_BYTES" default:"8192"`

	// UserAgent is sent with every download request
	UserAgent string `env:"LOADER_USER_AGENT" default:"mvload"`

	// HTTPTimeout bounds a single download (default: 10m)
	HTTPTimeout time.Duration `env:"LOADER_HTTP_TIMEOUT" default:"10m"`

	// CronInterval is the minimum time between runs in serve mode (default: 60m)
	CronInterval time.Duration `env:"LOADER_CRON_INTERVAL" default:"60m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Location resolves Timezone, falling back to time.Local when it is empty.
func (c *LoaderConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
