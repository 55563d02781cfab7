// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the envitrace configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "2m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Remote configures the upstream pathway server.
type Remote struct {
	BaseURL   string   `yaml:"base_url" validate:"required,url"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Timeout   Duration `yaml:"timeout" validate:"min=0"`
	RateLimit float64  `yaml:"rate_limit" validate:"min=0"`
}

// Poll configures the prediction poll loop backoff.
type Poll struct {
	InitialDelay Duration `yaml:"initial_delay" validate:"gt=0"`
	MaxDelay     Duration `yaml:"max_delay" validate:"gtefield=InitialDelay"`
	Multiplier   float64  `yaml:"multiplier" validate:"gte=1"`
	// MaxAttempts bounds consecutive transient failures before the
	// loop gives up. Zero means unlimited.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0"`
}

// Cache configures the resolver's response cache.
type Cache struct {
	Dir      string   `yaml:"dir"`
	TTL      Duration `yaml:"ttl" validate:"min=0"`
	InMemory bool     `yaml:"in_memory"`
}

// Log configures structured logging.
type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// HTTP configures the local API server.
type HTTP struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Config is the root configuration.
type Config struct {
	Remote Remote `yaml:"remote"`
	Poll   Poll   `yaml:"poll"`
	Cache  Cache  `yaml:"cache"`
	Log    Log    `yaml:"log"`
	HTTP   HTTP   `yaml:"http"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Remote: Remote{
			BaseURL:   "https://envipath.org",
			Timeout:   Duration(30 * time.Second),
			RateLimit: 4,
		},
		Poll: Poll{
			InitialDelay: Duration(2 * time.Second),
			MaxDelay:     Duration(time.Minute),
			Multiplier:   1.5,
			MaxAttempts:  10,
		},
		Cache: Cache{
			Dir: "~/.envitrace/cache",
			TTL: Duration(time.Hour),
		},
		Log: Log{
			Level: "info",
			Dir:   "~/.envitrace/logs",
		},
		HTTP: HTTP{
			Addr: "127.0.0.1:8642",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Cache.Dir = ExpandPath(cfg.Cache.Dir)
	cfg.Log.Dir = ExpandPath(cfg.Log.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
