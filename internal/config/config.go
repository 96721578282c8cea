// Package config loads the daemon configuration from ~/.searchbot/config.toml.
// Secrets (the LLM API key, the bot token) never live in the file; they
// come from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LLM configures the natural-language query delegate.
type LLM struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config represents config.toml.
type Config struct {
	DBPath          string `toml:"db_path"`
	RedisAddr       string `toml:"redis_addr"` // empty disables the Redis session cache
	PageSize        int    `toml:"page_size"`
	DisplayTimezone string `toml:"display_timezone"`
	LLM             LLM    `toml:"llm"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		PageSize:        25,
		DisplayTimezone: "Asia/Shanghai",
		LLM: LLM{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
	}
}

// Load reads config from the given path, filling unset fields with
// defaults. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.DisplayTimezone == "" {
		cfg.DisplayTimezone = "Asia/Shanghai"
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Location resolves the configured display timezone, falling back to UTC
// on a bad name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LLMTimeout returns the normalization timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
