// Package config loads server configuration from a2alite.jsonc.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `json:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Dir  string `json:"dir"`
	JSON bool   `json:"json"`
}

// AuthConfig holds the optional static bearer token set. Empty disables
// authentication.
type AuthConfig struct {
	Tokens []string `json:"tokens"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// StoreConfig selects and tunes the task store backend.
type StoreConfig struct {
	Backend        string `json:"backend"` // memory, sqlite
	DataDir        string `json:"data_dir"`
	TaskTTLSeconds int    `json:"task_ttl_seconds"` // retention of finished tasks; 0 keeps forever
}

// CleanupConfig holds the eviction sweep schedule.
type CleanupConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // 5-field cron expression
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig        `json:"server"`
	Log       LogConfig           `json:"log"`
	Auth      AuthConfig          `json:"auth"`
	RateLimit RateLimitConfig     `json:"rate_limit"`
	Store     StoreConfig         `json:"store"`
	Cleanup   CleanupConfig       `json:"cleanup"`
	Card      *protocol.AgentCard `json:"card"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Log:    LogConfig{Dir: "logs"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Store: StoreConfig{
			Backend:        "memory",
			DataDir:        "data",
			TaskTTLSeconds: 3600,
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
	}
}

// Load reads configPath (JSONC) over the defaults. A missing file yields
// the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	if err := json.Unmarshal(StripJSONComments(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}

	return cfg, cfg.Validate()
}

// FindConfigPath locates a2alite.jsonc in dir, falling back to the working
// directory.
func FindConfigPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "a2alite.jsonc")
}

// TaskTTL returns the configured task retention as a duration.
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.Store.TaskTTLSeconds) * time.Second
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q (expected memory or sqlite)", c.Store.Backend)
	}
	if c.Store.TaskTTLSeconds < 0 {
		return fmt.Errorf("task_ttl_seconds cannot be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}
	return nil
}
