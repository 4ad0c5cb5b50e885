// Package openai is the concrete OpenAI-compatible Query Backend adapter
// (§6, §9 Design Notes). It is the only package below internal/backend that
// imports github.com/sashabaranov/go-openai — the abstract backend.Backend
// interface and backend.Message sum type never leak this SDK's types.
// Adapted from internal/llm/openai/{client,config}.go.
package openai

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config holds OpenAI-compatible backend configuration, loaded from
// RuntimeConfig env vars (see internal/config).
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
	MaxRetries  int
	HTTPTimeout int // seconds
}

// NewConfigFromEnv reads AGENTRUN_BACKEND_* environment variables, matching
// the env-driven config idiom of internal/llm/openai/config.go.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:      os.Getenv("AGENTRUN_BACKEND_API_KEY"),
		BaseURL:     getEnvOrDefault("AGENTRUN_BACKEND_BASE_URL", "https://api.openai.com/v1"),
		Model:       getEnvOrDefault("AGENTRUN_BACKEND_MODEL", "gpt-4o"),
		Temperature: getEnvFloat32Ptr("AGENTRUN_BACKEND_TEMPERATURE"),
		MaxTokens:   getEnvIntOrDefault("AGENTRUN_BACKEND_MAX_TOKENS", 0),
		MaxRetries:  getEnvIntOrDefault("AGENTRUN_BACKEND_MAX_RETRIES", 1),
		HTTPTimeout: getEnvIntOrDefault("AGENTRUN_BACKEND_TIMEOUT_SECONDS", 300),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("AGENTRUN_BACKEND_API_KEY is required")
	}
	if c.Model == "" {
		return fmt.Errorf("AGENTRUN_BACKEND_MODEL cannot be empty")
	}
	if c.Temperature != nil && (*c.Temperature < 0.0 || *c.Temperature > 2.0) {
		return fmt.Errorf("AGENTRUN_BACKEND_TEMPERATURE must be between 0.0 and 2.0, got %f", *c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("AGENTRUN_BACKEND_MAX_RETRIES cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvFloat32Ptr(key string) *float32 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			f := float32(parsed)
			return &f
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, ignoring", key, v)
	}
	return nil
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %d", key, v, defaultValue)
	}
	return defaultValue
}
