// Package config provides centralized configuration management for the normalizer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Paths     PathsConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	Normalize NormalizeConfig
	Trigger   TriggerConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 10m,
	// a triggered run answers only once the batch is done)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// PathsConfig holds the local directories used by the filesystem store.
type PathsConfig struct {
	// InputDir is the watched input location (default: data/inbox)
	InputDir string `env:"INPUT_DIR" default:"data/inbox"`

	// OutputDir receives normalized_<stem>.csv files (default: data/normalized)
	OutputDir string `env:"OUTPUT_DIR" default:"data/normalized"`

	// ArchiveDir receives processed, quarantined and duplicate inputs (default: data/archive)
	ArchiveDir string `env:"ARCHIVE_DIR" default:"data/archive"`
}

// StorageConfig selects where inputs are discovered and outputs are written.
type StorageConfig struct {
	// Backend is local or gcs (default: local)
	Backend string `env:"STORAGE_BACKEND" default:"local"`

	// GCSBucket is the bucket used when Backend is gcs
	GCSBucket string `env:"GCS_BUCKET"`

	GCSInputPrefix   string `env:"GCS_INPUT_PREFIX" default:"inbox/"`
	GCSOutputPrefix  string `env:"GCS_OUTPUT_PREFIX" default:"normalized/"`
	GCSArchivePrefix string `env:"GCS_ARCHIVE_PREFIX" default:"archive/"`
}

// LedgerConfig holds idempotency ledger settings.
type LedgerConfig struct {
	// Backend is file, postgres or memory (default: file)
	Backend string `env:"LEDGER_BACKEND" default:"file"`

	// Dir holds one entry file per fingerprint when Backend is file (default: data/ledger)
	Dir string `env:"LEDGER_DIR" default:"data/ledger"`

	// DatabaseURL is the PostgreSQL connection string used when Backend is postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// PingTimeout bounds the startup connectivity check (default: 5s)
	PingTimeout time.Duration `env:"DB_PING_TIMEOUT" default:"5s"`
}

// NormalizeConfig holds normalization engine settings.
type NormalizeConfig struct {
	// BaseCurrency is used when a row carries no recognizable currency (default: USD)
	BaseCurrency string `env:"NORMALIZE_BASE_CURRENCY" default:"USD"`

	// SheetName selects a spreadsheet sheet; empty means the first non-empty sheet
	SheetName string `env:"NORMALIZE_SHEET_NAME"`

	// LayoutsFile is an optional YAML file with additional layout rules
	LayoutsFile string `env:"NORMALIZE_LAYOUTS_FILE"`

	// MaxFileSize is the largest input accepted in bytes (default: 50MB)
	MaxFileSize int64 `env:"NORMALIZE_MAX_FILE_SIZE" default:"52428800"`

	// Workers is the number of files normalized in parallel (default: 4)
	Workers int `env:"NORMALIZE_WORKERS" default:"4"`

	// FuzzyThreshold is the minimum header similarity for fuzzy patterns (default: 0.8)
	FuzzyThreshold float64 `env:"NORMALIZE_FUZZY_THRESHOLD" default:"0.8"`

	// LegacyEncoding is assumed when statistical detection finds no letters (default: windows-1251)
	LegacyEncoding string `env:"NORMALIZE_LEGACY_ENCODING" default:"windows-1251"`

	// TwoDigitYearPivot maps YY below the pivot to 20YY, otherwise 19YY (default: 70)
	TwoDigitYearPivot int `env:"NORMALIZE_TWO_DIGIT_YEAR_PIVOT" default:"70"`

	// HeaderSearchRows is how many leading rows may precede the header (default: 20)
	HeaderSearchRows int `env:"NORMALIZE_HEADER_SEARCH_ROWS" default:"20"`

	// SniffLines is how many lines feed delimiter detection (default: 50)
	SniffLines int `env:"NORMALIZE_SNIFF_LINES" default:"50"`
}

// TriggerConfig controls how pipeline runs are started.
type TriggerConfig struct {
	// Interval runs a batch periodically; 0 disables the ticker (default: 0s)
	Interval time.Duration `env:"TRIGGER_INTERVAL" default:"0s"`

	// MaxConcurrentRuns bounds overlapping batch runs (default: 1)
	MaxConcurrentRuns int `env:"TRIGGER_MAX_CONCURRENT_RUNS" default:"1"`

	// MaxWait is how long a trigger waits for a run slot (default: 5s)
	MaxWait time.Duration `env:"TRIGGER_MAX_WAIT" default:"5s"`

	// RunTimeout is the maximum duration of a single batch run (default: 10m)
	RunTimeout time.Duration `env:"TRIGGER_RUN_TIMEOUT" default:"10m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey protects the /api routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
