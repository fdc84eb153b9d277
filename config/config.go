package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portfolioTracker/internal/adapters/logger" // Import the logger package for LogLevel
	"portfolioTracker/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Price sources
	FinnhubToken     string
	FinnhubBaseURL   string // Optional override, mainly for tests
	BinanceAPIKey    string
	BinanceSecretKey string

	// Live price cache
	CacheTTL time.Duration // Freshness window before a refresh is attempted

	// Database
	DBPath string

	// Asset universe
	AssetsFile string // JSON file mapping symbol -> classification metadata

	// HTTP API
	ServerAddr string
	APIToken   string // Static bearer token for the HTTP layer

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Price sources
	cfg.FinnhubToken = getEnv("FINNHUB_API_TOKEN", "")
	if cfg.FinnhubToken == "" {
		errs = append(errs, "FINNHUB_API_TOKEN must be set")
	}
	cfg.FinnhubBaseURL = getEnv("FINNHUB_BASE_URL", "")
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")

	// Live price cache
	cacheTTLSeconds := getEnvAsInt("CACHE_TTL_SECONDS", 300)
	if cacheTTLSeconds <= 0 {
		errs = append(errs, "CACHE_TTL_SECONDS must be positive")
	}
	cfg.CacheTTL = time.Duration(cacheTTLSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/portfolio.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Asset universe
	cfg.AssetsFile = getEnv("ASSETS_FILE", "./data/assets.json")
	if cfg.AssetsFile == "" {
		errs = append(errs, "ASSETS_FILE must be set")
	}

	// HTTP API
	cfg.ServerAddr = getEnv("SERVER_ADDR", ":8080")
	cfg.APIToken = getEnv("API_TOKEN", "")
	if cfg.APIToken == "" {
		errs = append(errs, "API_TOKEN must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// LoadUniverse reads the tracked asset universe from the configured JSON
// file. The file maps internal symbols to classification metadata:
//
//	{"BTC": {"class": "crypto", "exchange_symbol": "BTCUSDT", ...}, ...}
func LoadUniverse(path string) (domain.Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file '%s': %w", path, err)
	}

	var universe domain.Universe
	if err := json.Unmarshal(data, &universe); err != nil {
		return nil, fmt.Errorf("failed to parse assets file '%s': %w", path, err)
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("assets file '%s' defines no assets", path)
	}

	for symbol, info := range universe {
		info.Symbol = symbol
		if info.ExchangeSymbol == "" {
			info.ExchangeSymbol = symbol
		}
		switch info.Class {
		case domain.ClassStock, domain.ClassCrypto:
		default:
			return nil, fmt.Errorf("asset %s has invalid class %q", symbol, info.Class)
		}
		universe[symbol] = info
	}
	return universe, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
