// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package config loads the host's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Zero values defer to Default.
type Config struct {
	// Workers is the background pool size.
	Workers int `yaml:"workers"`
	// FrameIntervalMs caps the inter-tick sleep while animation callbacks
	// are pending, in milliseconds.
	FrameIntervalMs int `yaml:"frame_interval_ms"`
	// Bundle overrides bundle discovery with an explicit container path.
	Bundle string `yaml:"bundle"`
	// LogLevel is one of trace, debug, info, notice, warn, error, crit.
	LogLevel string `yaml:"log_level"`
	// HotReload watches the entry script and reloads it on change.
	HotReload bool `yaml:"hot_reload"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Workers:         4,
		FrameIntervalMs: 16,
		LogLevel:        "info",
	}
}

// Load reads the configuration at path, layered over Default. A missing file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Workers < 1 {
		cfg.Workers = Default().Workers
	}
	if cfg.FrameIntervalMs < 1 {
		cfg.FrameIntervalMs = Default().FrameIntervalMs
	}
	return cfg, nil
}
