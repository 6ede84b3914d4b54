// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads busctl's runtime configuration from a YAML file,
// with environment variables overriding individual fields the way
// internal/log's FromEnv does for logging.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Transport selects which bus.Transport implementation busctl wires up.
type Transport struct {
	Kind string `yaml:"kind"` // "memory" or "nats"

	NATS struct {
		URL      string `yaml:"url"`
		Stream   string `yaml:"stream"`
		Subject  string `yaml:"subject"`
		Consumer string `yaml:"consumer"`
	} `yaml:"nats"`
}

// Persistence selects which saga.Persistence implementation busctl wires
// up.
type Persistence struct {
	Kind string `yaml:"kind"` // "memory" or "sql"

	SQL struct {
		Path string `yaml:"path"`
		WAL  bool   `yaml:"wal"`
	} `yaml:"sql"`
}

// Config is busctl's top-level configuration.
type Config struct {
	Concurrency int         `yaml:"concurrency"`
	Transport   Transport   `yaml:"transport"`
	Persistence Persistence `yaml:"persistence"`
}

// Default returns the configuration busctl uses when no file is supplied:
// a single-process in-memory transport and persistence backend.
func Default() *Config {
	cfg := &Config{Concurrency: 1}
	cfg.Transport.Kind = "memory"
	cfg.Persistence.Kind = "memory"
	return cfg
}

// Load reads a YAML config file from path, falling back to Default if
// path is empty, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment-specific values (connection strings,
// concurrency) be set without editing the checked-in YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("BUS_TRANSPORT"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv("BUS_NATS_URL"); v != "" {
		cfg.Transport.NATS.URL = v
	}
	if v := os.Getenv("BUS_PERSISTENCE"); v != "" {
		cfg.Persistence.Kind = v
	}
	if v := os.Getenv("BUS_SQL_PATH"); v != "" {
		cfg.Persistence.SQL.Path = v
	}
}
