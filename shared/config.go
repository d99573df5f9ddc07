package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultServiceName  = "http-provider"
	DefaultUserAgent    = "reclaim-attestor"
	DefaultLogDataBytes = 1024
)

// Config holds the runtime knobs of the transcript engine
type Config struct {
	ServiceName  string `json:"service_name"`
	Development  bool   `json:"development"`
	Quiet        bool   `json:"quiet"`
	UserAgent    string `json:"user_agent"`
	LogDataBytes int    `json:"log_data_bytes"` // max payload bytes echoed into a single log field
}

// LoadConfig reads the given .env files (or ./.env when none are given and it
// exists) and then builds a Config from the environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, err
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		ServiceName:  GetEnvOrDefault("HTTP_PROVIDER_SERVICE_NAME", DefaultServiceName),
		Development:  GetEnvOrDefault("DEVELOPMENT", "false") == "true",
		Quiet:        GetEnvOrDefault("QUIET_LOGS", "false") == "true",
		UserAgent:    GetEnvOrDefault("HTTP_PROVIDER_USER_AGENT", DefaultUserAgent),
		LogDataBytes: GetEnvIntOrDefault("HTTP_PROVIDER_LOG_MAX_BYTES", DefaultLogDataBytes),
	}
	if cfg.LogDataBytes <= 0 {
		cfg.LogDataBytes = DefaultLogDataBytes
	}
	return cfg, nil
}

// Helper functions for environment variable handling
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
