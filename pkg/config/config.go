package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime parameters, loaded from environment variables.
type Config struct {
	Port string
	Env  string

	// Upstream endpoints.
	SearchBaseURL     string
	StaffPriceBaseURL string

	// Fixed search parameters.
	Region   string
	Lang     string
	PageSize int

	// Fast-path runs that would load this many pages or more are cancelled.
	PageGuard int

	// Per-request timeout for upstream fetches. A timed-out page counts as a
	// failed page.
	RequestTimeout time.Duration

	CacheDBPath string
	CacheTTL    time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; missing files are fine so
// deployments relying on real environment variables keep working.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "9090"),
		Env:  getEnv("ENV", "development"),

		SearchBaseURL:     getEnv("SEARCH_BASE_URL", "https://www.bestbuy.ca/api/v2/json/search"),
		StaffPriceBaseURL: getEnv("STAFFPRICE_BASE_URL", "https://staffprice-app-hr-staffprice-prod.apps.prod-ocp-corp.ca.bestbuy.com/bizdm/api/staffprice/skus/"),

		Region:   getEnv("SEARCH_REGION", "BC"),
		Lang:     getEnv("SEARCH_LANG", "en-CA"),
		PageSize: getEnvInt("SEARCH_PAGE_SIZE", 100),

		PageGuard: getEnvInt("PAGE_GUARD", 300),

		// Cache defaults to in-memory so nothing outlives the process.
		CacheDBPath: getEnv("CACHE_DB_PATH", ":memory:"),
	}

	var err error
	if cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	if cfg.CacheTTL, err = parseDurationEnv("CACHE_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("SEARCH_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if cfg.PageGuard <= 0 {
		return nil, fmt.Errorf("PAGE_GUARD must be positive, got %d", cfg.PageGuard)
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a
// default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// parseDurationEnv reads an environment variable and parses it as a duration,
// falling back to the provided default when unset.
func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
