// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port   string
	DBPath string

	Pioneer    PioneerConfig
	Completion CompletionConfig

	// Retrieval parameters for per-turn context lookup.
	ChunkCount          int
	SimilarityThreshold float64
	SummaryMaxChars     int

	SessionMaxAge   time.Duration
	CleanupInterval time.Duration

	IngestQueueSize int
}

// PioneerConfig holds settings for the personalization service client.
type PioneerConfig struct {
	APIKey           string
	BaseURL          string
	RegisterTimeout  time.Duration
	RetrievalTimeout time.Duration
	IngestTimeout    time.Duration
	QueryTimeout     time.Duration
}

// CompletionConfig holds settings for the completion service client.
type CompletionConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "./data/chat.db"),
		Pioneer: PioneerConfig{
			APIKey:           getEnv("PIONEER_API_KEY", ""),
			BaseURL:          getEnv("PIONEER_BASE_URL", "https://api.fastino.ai"),
			RegisterTimeout:  getEnvDuration("PIONEER_REGISTER_TIMEOUT", 30*time.Second),
			RetrievalTimeout: getEnvDuration("PIONEER_RETRIEVAL_TIMEOUT", 10*time.Second),
			IngestTimeout:    getEnvDuration("PIONEER_INGEST_TIMEOUT", 30*time.Second),
			QueryTimeout:     getEnvDuration("PIONEER_QUERY_TIMEOUT", 180*time.Second),
		},
		Completion: CompletionConfig{
			APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			Model:       getEnv("MODEL_NAME", "claude-sonnet-4-20250514"),
			Temperature: getEnvFloat("TEMPERATURE", 0.7),
			MaxTokens:   int64(getEnvInt("MAX_OUTPUT_TOKENS", 1000)),
		},
		ChunkCount:          getEnvInt("CHUNK_COUNT", 5),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.25),
		SummaryMaxChars:     getEnvInt("SUMMARY_MAX_CHARS", 1000),
		SessionMaxAge:       getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		CleanupInterval:     getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
		IngestQueueSize:     getEnvInt("INGEST_QUEUE_SIZE", 100),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Pioneer.APIKey == "" {
		return fmt.Errorf("PIONEER_API_KEY is required")
	}
	if c.Pioneer.BaseURL == "" {
		return fmt.Errorf("PIONEER_BASE_URL cannot be empty")
	}
	if c.Completion.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("MAX_OUTPUT_TOKENS must be > 0")
	}
	if c.ChunkCount <= 0 {
		return fmt.Errorf("CHUNK_COUNT must be > 0")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 1")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be > 0")
	}
	if c.IngestQueueSize <= 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
