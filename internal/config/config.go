// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for devchat.
//
// Settings come from ~/.devchat/config.toml with built-in defaults and
// environment variable overrides. The file is read once at startup.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete devchat configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Gateway GatewayConfig `toml:"gateway"`
	Storage StorageConfig `toml:"storage"`
	Client  ClientConfig  `toml:"client"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `toml:"addr"`
	// RateLimitPerMin caps chat requests per client per minute. 0 disables.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// GatewayConfig selects the upstream completion provider.
type GatewayConfig struct {
	// Provider is "gemini" or "openai".
	Provider string `toml:"provider"`
	// APIKey is the upstream credential. Usually set via environment.
	APIKey string `toml:"api_key"`
	// Model is the upstream model identifier.
	Model string `toml:"model"`
	// BaseURL overrides the endpoint for OpenAI-compatible providers.
	BaseURL string `toml:"base_url"`
	// SystemPromptPath points at the system prompt file. Empty uses the
	// built-in prompt.
	SystemPromptPath string `toml:"system_prompt_path"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// SnapshotPath is the conversation snapshot file. Empty uses
	// ~/.devchat/conversations.json.
	SnapshotPath string `toml:"snapshot_path"`
}

// ClientConfig configures the TUI client.
type ClientConfig struct {
	// ServerURL is the devchat server the TUI talks to.
	ServerURL string `toml:"server_url"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimitPerMin: 60,
		},
		Gateway: GatewayConfig{
			Provider: "gemini",
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:8080",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the devchat configuration directory (~/.devchat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".devchat"), nil
}

// ConfigPath returns the TOML config file location.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultSnapshotPath returns the conversation snapshot location.
func DefaultSnapshotPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file if present, applies environment overrides,
// and validates. A missing file is not an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variables on top of file values.
//
// Recognized variables:
//   - DEVCHAT_ADDR: overrides server.addr
//   - DEVCHAT_PROVIDER: overrides gateway.provider
//   - DEVCHAT_MODEL: overrides gateway.model
//   - DEVCHAT_BASE_URL: overrides gateway.base_url
//   - DEVCHAT_SERVER_URL: overrides client.server_url
//   - DEVCHAT_SNAPSHOT: overrides storage.snapshot_path
//   - GEMINI_API_KEY / OPENAI_API_KEY: overrides gateway.api_key,
//     matched to the active provider
func (c *Config) ApplyEnvOverrides() {
	if addr := os.Getenv("DEVCHAT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if provider := os.Getenv("DEVCHAT_PROVIDER"); provider != "" {
		c.Gateway.Provider = provider
	}
	if model := os.Getenv("DEVCHAT_MODEL"); model != "" {
		c.Gateway.Model = model
	}
	if base := os.Getenv("DEVCHAT_BASE_URL"); base != "" {
		c.Gateway.BaseURL = base
	}
	if serverURL := os.Getenv("DEVCHAT_SERVER_URL"); serverURL != "" {
		c.Client.ServerURL = serverURL
	}
	if snapshot := os.Getenv("DEVCHAT_SNAPSHOT"); snapshot != "" {
		c.Storage.SnapshotPath = snapshot
	}

	switch c.Gateway.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Gateway.APIKey = key
		}
	default:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Gateway.APIKey = key
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks structural config problems. A missing API key is not
// checked here: the TUI client never needs one, and the server reports it
// when constructing the gateway.
func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("config: unknown gateway provider %q", c.Gateway.Provider)
	}

	if c.Server.RateLimitPerMin < 0 {
		return fmt.Errorf("config: rate_limit_per_min must not be negative")
	}

	if c.Client.ServerURL != "" {
		u, err := url.Parse(c.Client.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid client server_url %q", c.Client.ServerURL)
		}
	}

	if c.Gateway.BaseURL != "" && !strings.HasPrefix(c.Gateway.BaseURL, "http") {
		return fmt.Errorf("config: invalid gateway base_url %q", c.Gateway.BaseURL)
	}
	return nil
}
