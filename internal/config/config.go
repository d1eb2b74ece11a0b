// Package config loads service configuration from the environment, with
// optional .env file support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/models"
)

// Config holds all service configuration
type Config struct {
	// Server
	HTTPPort          string
	BroadcastInterval time.Duration

	// Ledger
	DatabaseURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Views
	SentinelAddress  models.Address
	TokenDecimals    int32
	ChartLocation    *time.Location
	AccountCacheSize int

	// Logging
	LogLevel logrus.Level
}

// Load reads configuration from environment variables, falling back to a
// .env file in the working directory and then to defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		SentinelAddress: models.Address(getEnv("SENTINEL_ADDRESS", string(models.ZeroAddress))),
	}

	interval, err := getEnvAsInt("BROADCAST_INTERVAL_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	cfg.BroadcastInterval = time.Duration(interval) * time.Second

	ttl, err := getEnvAsInt("TOKEN_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.TokenTTL = time.Duration(ttl) * time.Hour

	if cfg.AccountCacheSize, err = getEnvAsInt("ACCOUNT_CACHE_SIZE", 256); err != nil {
		return nil, err
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT %q: %w", cfg.HTTPPort, err)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.BroadcastInterval <= 0 {
		return nil, fmt.Errorf("BROADCAST_INTERVAL_SECONDS must be positive")
	}

	decimals, err := getEnvAsInt("TOKEN_DECIMALS", 18)
	if err != nil {
		return nil, err
	}
	if decimals < 0 || decimals > 36 {
		return nil, fmt.Errorf("TOKEN_DECIMALS out of range: %d", decimals)
	}
	cfg.TokenDecimals = int32(decimals)

	loc, err := time.LoadLocation(getEnv("CHART_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHART_TIMEZONE: %w", err)
	}
	cfg.ChartLocation = loc

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultVal
}

// getEnvAsInt returns defaultVal when key is unset or empty and an error
// when it is set to something other than an integer
func getEnvAsInt(key string, defaultVal int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	return value, nil
}
