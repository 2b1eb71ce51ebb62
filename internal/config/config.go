// Package config loads service configuration from environment variables, with
// a .env file bootstrap for local workflows. Existing process env always wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseDSN is the Postgres connection string. Empty selects the
	// in-memory store (offline workstation mode).
	DatabaseDSN string `env:"DATABASE_DSN"`

	// RedisAddr is the queue backend address. Empty disables the queue and
	// forces inline execution regardless of JobExecution.
	RedisAddr string `env:"REDIS_ADDR"`

	// VaultDir is the root under which case directories live. Artifacts for a
	// case are stored at <VaultDir>/<case_id>/artifacts.
	VaultDir string `env:"VAULT_DIR" envDefault:"./.vault"`

	// JobExecution selects queue, inline or auto dispatch.
	JobExecution string `env:"JOB_EXECUTION" envDefault:"auto"`

	// JobTimeout is the wall-clock budget for a single module run. Applied to
	// both queue-consumed and inline-executed jobs.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"1h"`

	Workers       int    `env:"WORKERS" envDefault:"4"`
	InlineWorkers int    `env:"INLINE_WORKERS" envDefault:"4"`
	BindAddr      string `env:"BIND_ADDR" envDefault:":8080"`

	QueueKey      string `env:"REDIS_QUEUE_KEY" envDefault:"jobs:queue"`
	ProcessingKey string `env:"REDIS_PROCESSING_KEY" envDefault:"jobs:processing"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.sanitize()
	return cfg, nil
}

// sanitize applies guardrails to loaded values.
func (c *Config) sanitize() {
	c.JobExecution = strings.ToLower(strings.TrimSpace(c.JobExecution))
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.InlineWorkers <= 0 {
		c.InlineWorkers = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Hour
	}
}
