// SPDX-License-Identifier: Apache-2.0

// Package config reads process configuration from the environment, with an
// optional .env file filling in anything not already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	Environment string
	LogLevel    string
	// LogFilePath enables a rotated JSON log file next to console output.
	LogFilePath string

	// RulesFile overrides the embedded engine rules when set.
	RulesFile  string
	WatchRules bool

	// RedisURL selects the Redis cache; empty means in-memory.
	RedisURL string
	CacheTTL time.Duration

	// NATSURL enables extraction events when set.
	NATSURL     string
	NATSToken   string
	NATSSubject string
}

// IsProduction reports whether logs should be machine-readable.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the environment. The given .env files (default ".env") are
// loaded first when they exist; variables already set win over them.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cacheTTL, err := getEnvAsDuration("CACHE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	watch, err := getEnvAsBool("SHEETGPT_WATCH_RULES", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPAddr:    getEnv("SHEETGPT_HTTP_ADDR", ":8090"),
		Environment: getEnv("SHEETGPT_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFilePath: getEnv("LOG_FILE_PATH", ""),
		RulesFile:   getEnv("SHEETGPT_RULES_FILE", ""),
		WatchRules:  watch,
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    cacheTTL,
		NATSURL:     getEnv("NATS_URL", ""),
		NATSToken:   getEnv("NATS_TOKEN", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "sheetgpt.extraction.completed"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
