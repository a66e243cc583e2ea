// Package config loads SPIRAL's runtime configuration from environment
// variables (and an optional .env file), the same shape the teacher's
// internal/config package uses: one Config struct, one sub-struct per
// concern, typed getEnv* helpers with defaults, and a Validate method
// that Load calls before handing the result back.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable for the evaluator core, the scheduler, and
// the optional cmd/spiral-server front door.
type Config struct {
	Eval      EvalConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Cron      CronConfig
	Tracing   TracingConfig
}

// EvalConfig controls a single document run: how many evaluation steps
// it may charge against the shared step budget before it is aborted as
// non-terminating, whether evaluator trace events are emitted, and which
// concurrency discipline `par`/`race` use.
type EvalConfig struct {
	MaxSteps    int64
	Trace       bool
	Concurrency string // "sequential", "parallel", or "speculative"
}

// SchedulerConfig sizes the task pool's bounded fan-out.
type SchedulerConfig struct {
	MaxParallelism int
}

// ServerConfig holds cmd/spiral-server's HTTP listener and auth settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	JWTSecret       string
	JWTExpiration   time.Duration
}

// RedisConfig configures the canonical-digest result cache.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// LoggingConfig selects slog's level and output format.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// CronConfig bounds how many scheduled re-evaluation jobs a server
// instance will hold at once.
type CronConfig struct {
	MaxJobs int
}

// TracingConfig controls whether cmd/spiral-server exports OTLP spans.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRate  float64
}

// Load reads configuration from the process environment, applying a
// .env file first if one is present in the working directory.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Eval: EvalConfig{
			MaxSteps:    getEnvAsInt64("SPIRAL_MAX_STEPS", 1_000_000),
			Trace:       getEnvAsBool("SPIRAL_TRACE", false),
			Concurrency: getEnv("SPIRAL_CONCURRENCY", "parallel"),
		},
		Scheduler: SchedulerConfig{
			MaxParallelism: getEnvAsInt("SPIRAL_MAX_PARALLELISM", 0),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SPIRAL_PORT", 8686),
			Host:            getEnv("SPIRAL_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SPIRAL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SPIRAL_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SPIRAL_SHUTDOWN_TIMEOUT", 30*time.Second),
			JWTSecret:       getEnv("SPIRAL_JWT_SECRET", ""),
			JWTExpiration:   getEnvAsDuration("SPIRAL_JWT_EXPIRATION", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:      getEnv("SPIRAL_REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("SPIRAL_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("SPIRAL_REDIS_DB", 0),
			PoolSize: getEnvAsInt("SPIRAL_REDIS_POOL_SIZE", 10),
			TTL:      getEnvAsDuration("SPIRAL_REDIS_TTL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("SPIRAL_LOG_LEVEL", "info"),
			Format: getEnv("SPIRAL_LOG_FORMAT", "json"),
		},
		Cron: CronConfig{
			MaxJobs: getEnvAsInt("SPIRAL_CRON_MAX_JOBS", 100),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("SPIRAL_OTEL_ENABLED", false),
			ServiceName: getEnv("SPIRAL_OTEL_SERVICE_NAME", "spiral"),
			Endpoint:    getEnv("SPIRAL_OTEL_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvAsBool("SPIRAL_OTEL_INSECURE", true),
			SampleRate:  getEnvAsFloat("SPIRAL_OTEL_SAMPLE_RATE", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports the first structural problem found in c.
func (c *Config) Validate() error {
	if c.Eval.MaxSteps < 0 {
		return fmt.Errorf("SPIRAL_MAX_STEPS must be non-negative")
	}

	validConcurrency := map[string]bool{"sequential": true, "parallel": true, "speculative": true}
	if !validConcurrency[c.Eval.Concurrency] {
		return fmt.Errorf("invalid SPIRAL_CONCURRENCY: %s (must be sequential, parallel, or speculative)", c.Eval.Concurrency)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SPIRAL_PORT: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid SPIRAL_LOG_LEVEL: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid SPIRAL_LOG_FORMAT: %s (must be json or text)", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("SPIRAL_OTEL_SAMPLE_RATE must be between 0 and 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
