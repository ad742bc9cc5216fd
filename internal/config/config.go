// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	CacheDir    string // directory holding the SQLite cache (always absolute)
	LogLevel    string
	LogPretty   bool
	Port        int // HTTP port for serve mode
	DevMode     bool
	QuoteAPIKey string
	QuoteAPIURL string

	// Data fetch behaviour
	FetchConcurrency int     // bounded in-flight symbol fetches
	FetchTimeoutSecs int     // per-request timeout
	RateLimitPerSec  float64 // provider requests per second

	// Risk model defaults
	LookbackYears    int
	EWMADecay        float64
	ShrinkageKappa   float64
	RegimeScaling    bool
	WinsorizePercent float64
}

// Load reads configuration from the environment, falling back to a .env
// file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cacheDir := getEnv("PERTH_CACHE_DIR", "")
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine user cache directory: %w", err)
		}
		cacheDir = filepath.Join(base, "perth")
	}
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	if err := os.MkdirAll(absCacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cfg := &Config{
		CacheDir:    absCacheDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		Port:        getEnvAsInt("PERTH_PORT", 8090),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		QuoteAPIKey: getEnv("QUOTE_API_KEY", ""),
		QuoteAPIURL: getEnv("QUOTE_API_URL", "https://query1.finance.yahoo.com"),

		FetchConcurrency: getEnvAsInt("FETCH_CONCURRENCY", 10),
		FetchTimeoutSecs: getEnvAsInt("FETCH_TIMEOUT_SECS", 30),
		RateLimitPerSec:  getEnvAsFloat("RATE_LIMIT_PER_SEC", 5),

		LookbackYears:    getEnvAsInt("LOOKBACK_YEARS", 2),
		EWMADecay:        getEnvAsFloat("EWMA_DECAY", 0.95),
		ShrinkageKappa:   getEnvAsFloat("SHRINKAGE_KAPPA", 60),
		RegimeScaling:    getEnvAsBool("REGIME_SCALING", true),
		WinsorizePercent: getEnvAsFloat("WINSORIZE_PERCENT", 0.01),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath returns the cache database file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.CacheDir, "perth.db")
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", c.FetchConcurrency)
	}
	if c.FetchTimeoutSecs < 1 {
		return fmt.Errorf("FETCH_TIMEOUT_SECS must be at least 1, got %d", c.FetchTimeoutSecs)
	}
	if c.EWMADecay <= 0 || c.EWMADecay >= 1 {
		return fmt.Errorf("EWMA_DECAY must be in (0,1), got %v", c.EWMADecay)
	}
	if c.WinsorizePercent < 0 || c.WinsorizePercent >= 0.5 {
		return fmt.Errorf("WINSORIZE_PERCENT must be in [0,0.5), got %v", c.WinsorizePercent)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
