// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases, always absolute
	OracleServiceURL string // Scoring oracle microservice
	JudgeServiceURL  string // LLM judge service
	JudgeAPIKey      string
	JudgeModel       string // Primary deliberation model
	JudgeFallback    string // Fallback model after overload retries exhaust
	JudgeMaxTokens   int
	Workers          int // Deliberation worker pool size
	LogLevel         string
	DevMode          bool
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("CONVICTION_DATA_DIR", "")
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
		DataDir:          absDataDir,
		OracleServiceURL: getEnv("ORACLE_SERVICE_URL", "http://localhost:9000"),
		JudgeServiceURL:  getEnv("JUDGE_SERVICE_URL", "https://api.anthropic.com"),
		JudgeAPIKey:      getEnv("JUDGE_API_KEY", ""),
		JudgeModel:       getEnv("JUDGE_MODEL", "claude-sonnet-4-20250514"),
		JudgeFallback:    getEnv("JUDGE_FALLBACK_MODEL", "claude-3-5-haiku-20241022"),
		JudgeMaxTokens:   getEnvAsInt("JUDGE_MAX_TOKENS", 1024),
		Workers:          getEnvAsInt("DELIBERATION_WORKERS", 5),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
	}

	return cfg, nil
}

// DatabasePath returns the absolute path for a named database file.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

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
