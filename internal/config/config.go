// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional YAML configuration file for the
// mailbox service.
//
// Configuration is loaded from a single file named by the
// AI_MAIL_CONFIG environment variable. Unlike its teacher, absence of
// the variable is not an error: the mailbox service is usable with no
// config file at all, with every field falling back to its documented
// default. There is no search path and no silent discovery — either
// AI_MAIL_CONFIG names a file, or defaults apply.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the mailbox service's tunable parameters. All fields are
// optional in the YAML file; zero values are replaced by Default()'s
// values before the file is unmarshaled over them.
type Config struct {
	// DataDir is the directory holding mailbox.db and the machine-id
	// salt file. Overridden at runtime by AI_MAIL_DATA_DIR or --data-dir,
	// both of which take precedence over this value.
	DataDir string `yaml:"data_dir"`

	// PoolSize is the number of pooled SQLite connections.
	PoolSize int `yaml:"pool_size"`

	// HeartbeatInterval is how often the running server refreshes its
	// own last_seen timestamp.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OnlineWindow is how recently last_seen must fall for an agent to
	// be considered "online" by identity.DeriveStatus.
	OnlineWindow time.Duration `yaml:"online_window"`

	// ActiveWindow is the wider window used by list_agents(active_only)
	// to mean "active recently", distinct from OnlineWindow.
	ActiveWindow time.Duration `yaml:"active_window"`
}

// Default returns the configuration used when no file is loaded, and
// as the base that a loaded file's fields are merged onto.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := home
	if dataDir == "" {
		dataDir = "."
	}
	return Config{
		DataDir:           dataDir + "/.ai-mail",
		PoolSize:          0, // 0 defers to sqlitepool's own default
		HeartbeatInterval: 30 * time.Second,
		OnlineWindow:      60 * time.Second,
		ActiveWindow:      60 * time.Minute,
	}
}

// Load reads AI_MAIL_CONFIG, if set, and returns the merged
// configuration. With the variable unset, it returns Default() and a
// nil error: no config file is required to run the service.
func Load() (Config, error) {
	path := os.Getenv("AI_MAIL_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the YAML file at path and merges its fields onto
// Default(). A field absent from the file (zero value after
// unmarshaling) keeps the default.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if override.DataDir != "" {
		cfg.DataDir = override.DataDir
	}
	if override.PoolSize != 0 {
		cfg.PoolSize = override.PoolSize
	}
	if override.HeartbeatInterval != 0 {
		cfg.HeartbeatInterval = override.HeartbeatInterval
	}
	if override.OnlineWindow != 0 {
		cfg.OnlineWindow = override.OnlineWindow
	}
	if override.ActiveWindow != 0 {
		cfg.ActiveWindow = override.ActiveWindow
	}

	return cfg, nil
}
