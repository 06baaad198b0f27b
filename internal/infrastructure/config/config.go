package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverOracle   = "oracle"
	DBDriverSQLite   = "sqlite"
	DBDriverMemory   = "memory"

	MarketDataProviderNone    = "none"
	MarketDataProviderFinnhub = "finnhub"
)

type Config struct {
	DBDriver             string
	DBDSN                string
	ServerPort           string
	ServerHost           string
	LogLevel             string
	TxMaxRetries         uint64
	TxRetryBaseDelay     time.Duration
	MarketDataProvider   string
	FinnhubAPIKey        string
	FinnhubRateLimit     float64
	PriceRefreshInterval time.Duration
}

func Load() (*Config, error) {
	driver := getEnvOrDefault("DB_DRIVER", DBDriverPostgres)
	switch driver {
	case DBDriverPostgres, DBDriverOracle, DBDriverSQLite, DBDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", driver)
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" && driver != DBDriverMemory {
		return nil, fmt.Errorf("DB_DSN environment variable is required for %s driver", driver)
	}

	maxRetries, err := strconv.ParseUint(getEnvOrDefault("TX_MAX_RETRIES", "3"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TX_MAX_RETRIES: %w", err)
	}

	retryDelay, err := time.ParseDuration(getEnvOrDefault("TX_RETRY_BASE_DELAY", "10ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid TX_RETRY_BASE_DELAY: %w", err)
	}

	refreshInterval, err := time.ParseDuration(getEnvOrDefault("PRICE_REFRESH_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_REFRESH_INTERVAL: %w", err)
	}
	if refreshInterval <= 0 {
		return nil, fmt.Errorf("invalid PRICE_REFRESH_INTERVAL: must be positive, got %s", refreshInterval)
	}

	provider := getEnvOrDefault("MARKET_DATA_PROVIDER", MarketDataProviderNone)
	finnhubKey := os.Getenv("FINNHUB_API_KEY")
	switch provider {
	case MarketDataProviderNone:
	case MarketDataProviderFinnhub:
		if finnhubKey == "" {
			return nil, fmt.Errorf("FINNHUB_API_KEY environment variable is required for finnhub provider")
		}
	default:
		return nil, fmt.Errorf("unsupported MARKET_DATA_PROVIDER: %s", provider)
	}

	rateLimit, err := strconv.ParseFloat(getEnvOrDefault("FINNHUB_RATE_LIMIT", "1"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, fmt.Errorf("invalid FINNHUB_RATE_LIMIT: %q", os.Getenv("FINNHUB_RATE_LIMIT"))
	}

	return &Config{
		DBDriver:             driver,
		DBDSN:                dsn,
		ServerPort:           getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:           getEnvOrDefault("SERVER_HOST", "localhost"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		TxMaxRetries:         maxRetries,
		TxRetryBaseDelay:     retryDelay,
		MarketDataProvider:   provider,
		FinnhubAPIKey:        finnhubKey,
		FinnhubRateLimit:     rateLimit,
		PriceRefreshInterval: refreshInterval,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
