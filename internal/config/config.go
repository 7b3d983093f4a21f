// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Port int `validate:"gt=0,lte=65535"`

	// Draft storage
	StoreBackend  string `validate:"oneof=memory sqlite redis"`
	DBPath        string `validate:"required_if=StoreBackend sqlite"`
	RedisAddress  string `validate:"required_if=StoreBackend redis"`
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	DraftTTL      time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`

	// RatesFile optionally replaces the embedded rate tables.
	RatesFile string

	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=json text"`

	OTLPEndpoint    string
	AnthropicAPIKey string
	ChromePath      string
}

// Load reads the environment, after loading a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8090),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DBPath:          getEnv("DB_PATH", ""),
		RedisAddress:    getEnv("REDIS_ADDRESS", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		DraftTTL:        getEnvAsDuration("DRAFT_TTL", 4*time.Hour),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),
		RatesFile:       getEnv("RATES_FILE", ""),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ChromePath:      getEnv("CHROME_PATH", ""),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

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

// getEnvAsDuration accepts Go durations ("90m") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
