// Package config handles application configuration from environment variables
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Benchmark collaborator
	BenchmarkURL string // Benchmark service base URL (optional, uses stub if not set)

	// Risk pipeline
	RiskWeights        map[string]float64 // contributor name → weight
	RiskPolicyVersion  string             // opaque weight-policy identifier
	WaterfallMaxItems  int                // max contributors kept in the persisted waterfall
	CheckFailValue     float64            // raw score for FAIL/ERROR compliance checks
	CheckWarnValue     float64            // raw score for WARN/NEEDS_API/unknown checks
	RiskWorkers        int                // concurrent pipeline workers
	RiskQueueSize      int                // pending trigger queue capacity
	RiskRunTimeout     time.Duration      // bound on one pipeline run
	RateLimitPerMinute int                // trigger endpoint rate limit per client

	// HTTP surface
	AllowedOrigins []string // CORS allowlist; empty permits any origin

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)
}

// Defaults
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultPolicyVersion     = "seed"
	DefaultWaterfallMaxItems = 8
	DefaultCheckFailValue    = 1.0
	DefaultCheckWarnValue    = 0.5
	DefaultRiskWorkers       = 4
	DefaultRiskQueueSize     = 64
	DefaultRateLimit         = 10
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),  // Optional, uses in-memory if not set
		BenchmarkURL:       os.Getenv("BENCHMARK_URL"), // Optional, uses stub if not set
		RiskPolicyVersion:  getEnv("RISK_POLICY_VERSION", DefaultPolicyVersion),
		WaterfallMaxItems:  int(getEnvInt64("RISK_WATERFALL_MAX_CONTRIBS", DefaultWaterfallMaxItems)),
		CheckFailValue:     getEnvFloat("RISK_CHECK_FAIL_VALUE", DefaultCheckFailValue),
		CheckWarnValue:     getEnvFloat("RISK_CHECK_WARN_VALUE", DefaultCheckWarnValue),
		RiskWorkers:        int(getEnvInt64("RISK_WORKERS", DefaultRiskWorkers)),
		RiskQueueSize:      int(getEnvInt64("RISK_QUEUE_SIZE", DefaultRiskQueueSize)),
		RiskRunTimeout:     time.Duration(getEnvInt64("RISK_RUN_TIMEOUT_SECONDS", 120)) * time.Second,
		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AllowedOrigins:     splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	weights, err := parseWeights(os.Getenv("RISK_WEIGHTS"))
	if err != nil {
		return nil, err
	}
	cfg.RiskWeights = weights

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.WaterfallMaxItems <= 0 {
		return fmt.Errorf("RISK_WATERFALL_MAX_CONTRIBS must be positive, got %d", c.WaterfallMaxItems)
	}
	if c.RiskWorkers <= 0 {
		return fmt.Errorf("RISK_WORKERS must be positive, got %d", c.RiskWorkers)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseWeights decodes a JSON object of contributor weights.
// An empty value means "use the built-in seed policy" and returns nil.
func parseWeights(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	weights := make(map[string]float64)
	if err := json.Unmarshal([]byte(raw), &weights); err != nil {
		return nil, fmt.Errorf("RISK_WEIGHTS must be a JSON object of name→weight: %w", err)
	}
	return weights, nil
}

// splitList splits a comma-separated env value into trimmed entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns the environment variable value or a default
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt64 returns the environment variable as int64 or a default
func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvFloat returns the environment variable as float64 or a default
func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
