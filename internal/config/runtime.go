package config

import (
	"fmt"
	"os"
	"strconv"
)

// RuntimeConfig is the ambient process configuration (§3A / §6A): where
// agent definitions and log files live, and the hard iteration cap applied
// regardless of an agent's own completion handler. Populated from
// AGENTRUN_* environment variables after LoadEnv has run.
type RuntimeConfig struct {
	AgentsDir     string
	LogDir        string
	MaxIterations int
}

// LoadRuntimeConfig reads RuntimeConfig fields from the environment,
// applying sane fallback defaults rather than a hard failure at this layer.
func LoadRuntimeConfig() (RuntimeConfig, error) {
	cfg := RuntimeConfig{
		AgentsDir:     getEnvOrDefault("AGENTRUN_AGENTS_DIR", ".agent"),
		LogDir:        getEnvOrDefault("AGENTRUN_LOG_DIR", ".agent/logs"),
		MaxIterations: 50,
	}
	if raw := os.Getenv("AGENTRUN_MAX_ITERATIONS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: AGENTRUN_MAX_ITERATIONS: %w", err)
		}
		if n < 1 {
			n = 1
		} else if n > 500 {
			n = 500
		}
		cfg.MaxIterations = n
	}
	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
