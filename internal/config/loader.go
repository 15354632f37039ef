package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Storage validation
	switch strings.ToLower(c.Storage.Backend) {
	case "local":
		if c.Paths.InputDir == "" || c.Paths.OutputDir == "" || c.Paths.ArchiveDir == "" {
			errs = append(errs, "INPUT_DIR, OUTPUT_DIR and ARCHIVE_DIR must be set for local storage")
		}
		if c.Paths.InputDir != "" && c.Paths.InputDir == c.Paths.ArchiveDir {
			errs = append(errs, "ARCHIVE_DIR must differ from INPUT_DIR")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, "GCS_BUCKET is required when STORAGE_BACKEND is gcs")
		}
		if c.Storage.GCSInputPrefix == c.Storage.GCSArchivePrefix {
			errs = append(errs, "GCS_ARCHIVE_PREFIX must differ from GCS_INPUT_PREFIX")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND (%q) must be one of: local, gcs", c.Storage.Backend))
	}

	// Ledger validation
	switch strings.ToLower(c.Ledger.Backend) {
	case "file":
		if c.Ledger.Dir == "" {
			errs = append(errs, "LEDGER_DIR is required when LEDGER_BACKEND is file")
		}
	case "postgres":
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when LEDGER_BACKEND is postgres")
		}
		if c.Ledger.MaxConns < c.Ledger.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Ledger.MaxConns, c.Ledger.MinConns))
		}
		if c.Ledger.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Ledger.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_BACKEND (%q) must be one of: file, postgres, memory", c.Ledger.Backend))
	}

	// Normalize validation
	if len(c.Normalize.BaseCurrency) != 3 {
		errs = append(errs, fmt.Sprintf("NORMALIZE_BASE_CURRENCY (%q) must be a 3-letter ISO code", c.Normalize.BaseCurrency))
	}
	if c.Normalize.MaxFileSize <= 0 {
		errs = append(errs, "NORMALIZE_MAX_FILE_SIZE must be positive")
	}
	if c.Normalize.Workers <= 0 {
		errs = append(errs, "NORMALIZE_WORKERS must be positive")
	}
	if c.Normalize.FuzzyThreshold <= 0 || c.Normalize.FuzzyThreshold > 1 {
		errs = append(errs, "NORMALIZE_FUZZY_THRESHOLD must be in (0, 1]")
	}
	if c.Normalize.TwoDigitYearPivot < 1 || c.Normalize.TwoDigitYearPivot > 99 {
		errs = append(errs, "NORMALIZE_TWO_DIGIT_YEAR_PIVOT must be 1-99")
	}
	if c.Normalize.HeaderSearchRows <= 0 {
		errs = append(errs, "NORMALIZE_HEADER_SEARCH_ROWS must be positive")
	}
	if c.Normalize.SniffLines < 2 {
		errs = append(errs, "NORMALIZE_SNIFF_LINES must be at least 2")
	}

	// Trigger validation
	if c.Trigger.Interval < 0 {
		errs = append(errs, "TRIGGER_INTERVAL must be non-negative")
	}
	if c.Trigger.MaxConcurrentRuns <= 0 {
		errs = append(errs, "TRIGGER_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Trigger.MaxWait <= 0 {
		errs = append(errs, "TRIGGER_MAX_WAIT must be positive")
	}
	if c.Trigger.RunTimeout <= 0 {
		errs = append(errs, "TRIGGER_RUN_TIMEOUT must be positive")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Storage: {Backend: %q, Input: %q, Output: %q, Archive: %q}, ",
		c.Storage.Backend, c.Paths.InputDir, c.Paths.OutputDir, c.Paths.ArchiveDir))
	b.WriteString(fmt.Sprintf("Ledger: {Backend: %q, Dir: %q, URL: %s}, ",
		c.Ledger.Backend, c.Ledger.Dir, maskURL(c.Ledger.DatabaseURL)))
	b.WriteString(fmt.Sprintf("Normalize: {BaseCurrency: %q, Workers: %d, MaxFileSize: %d}, ",
		c.Normalize.BaseCurrency, c.Normalize.Workers, c.Normalize.MaxFileSize))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

// maskURL hides the password of a connection URL.
func maskURL(raw string) string {
	if raw == "" {
		return `""`
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "[MASKED]"
	}
	return u.Redacted()
}
