// Package config provides configuration management for the prediction scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default endpoints for the BNB chain deployment of the prediction contract
const (
	DefaultRPCURL          = "https://bsc-dataseed.binance.org"
	DefaultWSURL           = "wss://bsc-rpc.publicnode.com"
	DefaultContractAddress = "0x18B2A687610328590Bc8F2e5fEdDe3b582A49cdA"
)

// Config holds all application configuration
type Config struct {
	Chain    ChainConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Fanout   FanoutConfig
	Detector DetectorConfig
	Logging  LoggingConfig
	Timezone string
}

// ChainConfig holds chain RPC configuration
type ChainConfig struct {
	RPCURL          string
	WSURL           string
	ContractAddress string
	RateLimitRPS    int
}

// DatabaseConfig holds Postgres configuration. DatabaseURL wins when set;
// otherwise the individual POSTGRES_* parts are assembled.
type DatabaseConfig struct {
	DatabaseURL    string
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ConnString returns the pgx connection string
func (c *DatabaseConfig) ConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.MaxConnections,
	)
}

// URL returns the database URL form used by the migration runner
func (c *DatabaseConfig) URL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// Configured reports whether any database target has been provided
func (c *DatabaseConfig) Configured() bool {
	return c.DatabaseURL != "" || c.Password != "" || os.Getenv("POSTGRES_HOST") != ""
}

// RedisConfig holds the optional Redis cache configuration.
// The wallet-note cache is disabled when Host is empty.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the Redis client
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Enabled reports whether the Redis cache should be used
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// FanoutConfig holds the fan-out server configuration
type FanoutConfig struct {
	Port int
}

// DetectorConfig holds suspicious-wallet detector thresholds
type DetectorConfig struct {
	MultiClaimThreshold int
	LargeAmount         string        // single-bet amount threshold, asset units
	HighTotalCount      int           // cumulative bet count threshold
	HighFrequencyCount  int           // bets inside the sliding window
	WindowSize          time.Duration // sliding window length
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		Chain: ChainConfig{
			RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
			WSURL:           getEnv("RPC_WS_URL", DefaultWSURL),
			ContractAddress: getEnv("CONTRACT_ADDRESS", DefaultContractAddress),
			RateLimitRPS:    getEnvAsInt("RATE_LIMIT_RPS", 100),
		},
		Database: DatabaseConfig{
			DatabaseURL:    getEnv("DATABASE_URL", ""),
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnv("POSTGRES_PORT", "5432"),
			Database:       getEnv("POSTGRES_DB", "prediction_scanner"),
			User:           getEnv("POSTGRES_USER", "scanner"),
			Password:       getEnv("POSTGRES_PASSWORD", ""),
			MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Fanout: FanoutConfig{
			Port: getEnvAsInt("FANOUT_PORT", 3010),
		},
		Detector: DetectorConfig{
			MultiClaimThreshold: getEnvAsInt("MULTI_CLAIM_THRESHOLD", 3),
			LargeAmount:         getEnv("DETECTOR_LARGE_AMOUNT", "10"),
			HighTotalCount:      getEnvAsInt("DETECTOR_HIGH_TOTAL", 100),
			HighFrequencyCount:  getEnvAsInt("DETECTOR_HIGH_FREQUENCY", 10),
			WindowSize:          getEnvAsDuration("DETECTOR_WINDOW", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Timezone: getEnv("TIMEZONE", "Asia/Taipei"),
	}

	return cfg, nil
}

// RequireDatabase validates that a database target is configured.
// DATABASE_URL (or the POSTGRES_* parts) is the one mandatory setting.
func (c *Config) RequireDatabase() error {
	if !c.Database.Configured() {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
