// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds the configuration for the HTTP server, the query runner and retention.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	MetaDBPath string // path to the SQLite metastore (default "duck_explore_meta.sqlite")
	DuckDBPath string // DuckDB database file; empty means in-memory
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"
	Locale     string // default UI locale (default "en")
	ProjectID  string // project the job links point into (optional)

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Query runner
	QueryMaxConcurrency int64 // concurrently executing jobs (default 4)
	QueryMaxAttempts    int   // attempts per job including retries (default 3)
	RunRowLimit         int   // rows kept for run queries (default 100000)
	PreviewRowLimit     int   // rows kept for preview queries (default 1000)
	SampleRows          int   // rows kept as dataset sample after a preview (default 100)

	// Retention
	RetentionSchedule string        // cron spec (default "@hourly")
	JobTTL            time.Duration // finished jobs are kept this long (default 168h)
	SampleTTL         time.Duration // dataset samples are kept this long (default 720h)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadDotEnv loads a .env file into the environment. Variables that are
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		MetaDBPath:        os.Getenv("META_DB_PATH"),
		DuckDBPath:        os.Getenv("DUCKDB_PATH"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		Locale:            os.Getenv("LOCALE"),
		ProjectID:         os.Getenv("PROJECT_ID"),
		RetentionSchedule: os.Getenv("RETENTION_SCHEDULE"),
	}

	var errs []string
	parse := func(key string, fn func(string) error) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}

	parse("RATE_LIMIT_RPS", func(v string) (err error) {
		cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", intInto(&cfg.RateLimitBurst))
	parse("QUERY_MAX_CONCURRENCY", func(v string) (err error) {
		cfg.QueryMaxConcurrency, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse("QUERY_MAX_ATTEMPTS", intInto(&cfg.QueryMaxAttempts))
	parse("RUN_ROW_LIMIT", intInto(&cfg.RunRowLimit))
	parse("PREVIEW_ROW_LIMIT", intInto(&cfg.PreviewRowLimit))
	parse("SAMPLE_ROWS", intInto(&cfg.SampleRows))
	parse("JOB_TTL", durationInto(&cfg.JobTTL))
	parse("SAMPLE_TTL", durationInto(&cfg.SampleTTL))

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "duck_explore_meta.sqlite"
	}
	if cfg.DuckDBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "DUCKDB_PATH not set, using an in-memory DuckDB database")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.QueryMaxConcurrency <= 0 {
		cfg.QueryMaxConcurrency = 4
	}
	if cfg.QueryMaxAttempts <= 0 {
		cfg.QueryMaxAttempts = 3
	}
	if cfg.RunRowLimit <= 0 {
		cfg.RunRowLimit = 100000
	}
	if cfg.PreviewRowLimit <= 0 {
		cfg.PreviewRowLimit = 1000
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 100
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = "@hourly"
	}
	if cfg.JobTTL == 0 {
		cfg.JobTTL = 7 * 24 * time.Hour
	}
	if cfg.SampleTTL == 0 {
		cfg.SampleTTL = 30 * 24 * time.Hour
	}
	if cfg.SampleRows > cfg.PreviewRowLimit {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("SAMPLE_ROWS (%d) exceeds PREVIEW_ROW_LIMIT (%d); samples keep at most %d rows",
			cfg.SampleRows, cfg.PreviewRowLimit, cfg.PreviewRowLimit))
	}

	if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
		return nil, fmt.Errorf("invalid RETENTION_SCHEDULE %q: %w", cfg.RetentionSchedule, err)
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func intInto(dst *int) func(string) error {
	return func(v string) (err error) {
		*dst, err = strconv.Atoi(v)
		return err
	}
}

func durationInto(dst *time.Duration) func(string) error {
	return func(v string) (err error) {
		*dst, err = time.ParseDuration(v)
		return err
	}
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
