// Package config loads the agent configuration: infrastructure settings from the
// environment and per-source settings from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/offer-ingest/internal/types"
)

// Config is the full agent configuration.
type Config struct {
	DatabaseURL     string        `validate:"required"`
	NATSURL         string        `validate:"required"`
	NATSConnTimeout time.Duration `validate:"gt=0"`
	RedisURL        string

	// AdminAddr empty disables the admin HTTP API.
	AdminAddr string

	Workers        int           `validate:"min=1,max=256"`
	MessageTimeout time.Duration `validate:"gt=0"`
	FetchTimeout   time.Duration `validate:"gt=0"`
	BrowserTimeout time.Duration `validate:"gt=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
	LogJSON  bool

	SourcesFile     string
	DebugDir        string
	BrowserHeadless bool
	BrowserPath     string

	// RetryDelays empty means immediate redelivery on transient failures.
	RetryDelays []time.Duration `validate:"dive,gt=0"`
	// MaxDeliver 0 means unbounded redelivery.
	MaxDeliver int `validate:"min=0"`

	Retention            time.Duration `validate:"gt=0"`
	StaleSweepSchedule   string        `validate:"required"`
	ArchiveSweepSchedule string        `validate:"required"`
	SweepBatchSize       int           `validate:"min=1"`
	LockTTL              time.Duration `validate:"gt=0"`

	Sources map[types.Source]SourceConfig `validate:"dive"`
}

// Load reads the environment and the sources file named by SOURCES_FILE.
func Load() (*Config, error) {
	retryDelays, err := parseDurations(getEnvString("RETRY_DELAYS", ""))
	if err != nil {
		return nil, fmt.Errorf("config error: RETRY_DELAYS: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     getEnvString("DATABASE_URL", ""),
		NATSURL:         getEnvString("NATS_URL", "nats://localhost:4222"),
		NATSConnTimeout: getEnvDuration("NATS_CONN_TIMEOUT", 10*time.Second),
		RedisURL:        getEnvString("REDIS_URL", ""),
		AdminAddr:       getEnvString("ADMIN_ADDR", ""),

		Workers:        getEnvInt("INGEST_WORKERS", 4),
		MessageTimeout: getEnvDuration("MESSAGE_TIMEOUT", 2*time.Minute),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		BrowserTimeout: getEnvDuration("BROWSER_TIMEOUT", 45*time.Second),

		LogLevel: strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		LogJSON:  getEnvBool("LOG_JSON", true),

		SourcesFile:     getEnvString("SOURCES_FILE", ""),
		DebugDir:        getEnvString("DEBUG_DIR", ""),
		BrowserHeadless: getEnvBool("BROWSER_HEADLESS", true),
		BrowserPath:     getEnvString("BROWSER_PATH", ""),

		RetryDelays: retryDelays,
		MaxDeliver:  getEnvInt("MAX_DELIVER", 0),

		Retention:            getEnvDuration("RETENTION", 90*24*time.Hour),
		StaleSweepSchedule:   getEnvString("STALE_SWEEP_SCHEDULE", "@every 1h"),
		ArchiveSweepSchedule: getEnvString("ARCHIVE_SWEEP_SCHEDULE", "@every 24h"),
		SweepBatchSize:       getEnvInt("SWEEP_BATCH_SIZE", 500),
		LockTTL:              getEnvDuration("LOCK_TTL", 30*time.Minute),
	}

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources
	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.MaxDeliver > 0 && len(c.RetryDelays) >= c.MaxDeliver {
		return fmt.Errorf("config error: MAX_DELIVER (%d) must exceed the number of retry delays (%d)", c.MaxDeliver, len(c.RetryDelays))
	}
	for source := range c.Sources {
		if !source.Valid() {
			return fmt.Errorf("config error: %w: %q", types.ErrUnknownSource, source)
		}
	}
	return nil
}

// Source returns the settings for source, falling back to built-in defaults.
func (c *Config) Source(source types.Source) SourceConfig {
	if sc, ok := c.Sources[source]; ok {
		return sc
	}
	return DefaultSources()[source]
}

// EnabledSources lists enabled sources in stable order.
func (c *Config) EnabledSources() []types.Source {
	var out []types.Source
	for _, source := range types.AllSources() {
		if c.Source(source).Enabled {
			out = append(out, source)
		}
	}
	return out
}

// StaleWindows maps each source to its staleness window.
func (c *Config) StaleWindows() map[types.Source]time.Duration {
	out := make(map[types.Source]time.Duration)
	for _, source := range types.AllSources() {
		out[source] = c.Source(source).StaleAfter
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseDurations(value string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
