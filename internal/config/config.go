// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// External solver service
	SolverServiceURL string
	SolverTimeLimit  time.Duration // 0 = solver default
	SolverMIPGap     float64       // relative MIP gap passed to the solver (0 = solver default)

	// Maximum accepted constraint violation before a solution is rejected.
	// Violations below this are logged as warnings and the solution kept.
	ViolationTolerance float64

	// Quote feed (optional live price ingestion)
	QuoteFeedURL string // empty disables the feed

	// Statistics refresh job
	StatisticsSchedule string // cron spec, e.g. "@daily"
	LookbackDays       int    // price history window for statistics

	// Report export (optional)
	S3Bucket string // empty disables S3 export
	S3Prefix string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists.
	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("GO_PORT", 8001),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		SolverServiceURL:   getEnv("SOLVER_SERVICE_URL", "http://localhost:9100"),
		SolverTimeLimit:    time.Duration(getEnvAsInt("SOLVER_TIME_LIMIT_SECONDS", 0)) * time.Second,
		SolverMIPGap:       getEnvAsFloat("SOLVER_MIP_GAP", 0),
		ViolationTolerance: getEnvAsFloat("VIOLATION_TOLERANCE", 1e-4),
		QuoteFeedURL:       getEnv("QUOTE_FEED_URL", ""),
		StatisticsSchedule: getEnv("STATISTICS_SCHEDULE", "@daily"),
		LookbackDays:       getEnvAsInt("LOOKBACK_DAYS", 252),
		S3Bucket:           getEnv("REPORTS_S3_BUCKET", ""),
		S3Prefix:           getEnv("REPORTS_S3_PREFIX", "allocations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.SolverServiceURL == "" {
		return fmt.Errorf("SOLVER_SERVICE_URL must not be empty")
	}
	if c.ViolationTolerance < 0 {
		return fmt.Errorf("VIOLATION_TOLERANCE must be >= 0, got %g", c.ViolationTolerance)
	}
	if c.LookbackDays <= 1 {
		return fmt.Errorf("LOOKBACK_DAYS must be > 1, got %d", c.LookbackDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
