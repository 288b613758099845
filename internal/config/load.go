package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	configDir  = ".config/warden"
	configFile = "config.yml"
	stateDir   = ".local/state/warden"
	cacheDir   = "cache"
)

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

// GetStateDir honours XDG_STATE_HOME like the rest of the state files.
func GetStateDir() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "warden"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, stateDir), nil
}

// CachePath resolves where the badger cache lives. It defaults to cache
// under the state directory; CacheMemoryPath is returned as is.
func CachePath(c CacheConfig) (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	dir, err := GetStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheDir), nil
}

// Load builds the effective configuration: defaults, then the YAML file, then
// WARDEN_* environment variables. An explicit path must exist; the default
// path is optional.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, configFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults + environment only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv overlays WARDEN_* environment variables onto target.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendBadger, BackendNone:
	default:
		return fmt.Errorf("unknown cache backend %q (want %q or %q)", c.Cache.Backend, BackendBadger, BackendNone)
	}
	if c.Resolver.OverrideMinBytes > c.Resolver.OverrideMaxBytes {
		return fmt.Errorf("resolver.override_min_bytes (%d) exceeds override_max_bytes (%d)",
			c.Resolver.OverrideMinBytes, c.Resolver.OverrideMaxBytes)
	}
	for _, u := range c.Resolver.Candidates {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("resolver candidate %q is not an http(s) URL", u)
		}
	}
	return nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
