// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.OnlineWindow != 60*time.Second {
		t.Errorf("OnlineWindow = %v, want 60s", cfg.OnlineWindow)
	}
	if cfg.ActiveWindow != 60*time.Minute {
		t.Errorf("ActiveWindow = %v, want 60m", cfg.ActiveWindow)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir must not be empty")
	}
}

func TestLoad_NoConfigVarIsNotAnError(t *testing.T) {
	origConfig, had := os.LookupEnv("AI_MAIL_CONFIG")
	os.Unsetenv("AI_MAIL_CONFIG")
	defer func() {
		if had {
			os.Setenv("AI_MAIL_CONFIG", origConfig)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with no AI_MAIL_CONFIG = %v, want nil error", err)
	}
	if cfg != Default() {
		t.Errorf("Load() with no config file = %+v, want Default()", cfg)
	}
}

func TestLoadFile_MergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai-mail.yaml")
	content := "data_dir: /var/lib/ai-mail\nheartbeat_interval: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.DataDir != "/var/lib/ai-mail" {
		t.Errorf("DataDir = %q, want /var/lib/ai-mail", cfg.DataDir)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.HeartbeatInterval)
	}
	// Fields absent from the file keep their defaults.
	if cfg.OnlineWindow != 60*time.Second {
		t.Errorf("OnlineWindow = %v, want default 60s", cfg.OnlineWindow)
	}
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("LoadFile(missing) = nil error, want error")
	}
}
