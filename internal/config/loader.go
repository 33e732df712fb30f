package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads a config file, expands environment variables and applies
// ENGINE_* overrides. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(expanded, &cfg); err != nil {
				return nil, fmt.Errorf("parse config toml: %w", err)
			}
		default:
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
