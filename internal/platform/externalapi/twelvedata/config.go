// Package twelvedata provides a client for the Twelve Data stock market API.
package twelvedata

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultBaseURL           = "https://api.twelvedata.com"
	DefaultTimeout           = 10 * time.Second
	DefaultRequestsPerMinute = 8
)

// Config holds configuration for the Twelve Data API client.
type Config struct {
	APIKey            string        // API key for authentication
	BaseURL           string        // Base URL for the API
	Timeout           time.Duration // HTTP request timeout
	RequestsPerMinute int           // client-side rate limit; 0 disables it
}

// LoadConfig loads Twelve Data configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		APIKey:            os.Getenv("TWELVE_DATA_API_KEY"),
		BaseURL:           os.Getenv("TWELVE_DATA_BASE_URL"),
		Timeout:           DefaultTimeout,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if v, err := time.ParseDuration(os.Getenv("TWELVE_DATA_TIMEOUT")); err == nil && v > 0 {
		cfg.Timeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("TWELVE_DATA_RATE_LIMIT")); err == nil && v >= 0 {
		cfg.RequestsPerMinute = v
	}
	return cfg
}
