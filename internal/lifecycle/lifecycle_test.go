// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ai-mail/mailbox/internal/identity"
	"github.com/ai-mail/mailbox/internal/lifecycle"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

func detectAs(name string) identity.DetectOptions {
	return identity.DetectOptions{
		LookupEnv: func(key string) (string, bool) {
			if key == "AI_AGENT_NAME" {
				return name, true
			}
			return "", false
		},
	}
}

func TestStartRegistersAgentAndShutdownMarksOffline(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Unix(1700000000, 0))

	server, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:       filepath.Join(t.TempDir(), "data"),
		Clock:         fake,
		DetectOptions: detectAs("scribe"),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if server.Self != "scribe" {
		t.Errorf("Self = %q, want %q", server.Self, "scribe")
	}

	agent, err := server.Store.FindAgent(ctx, server.Self, server.MachineID)
	if err != nil {
		t.Fatalf("FindAgent: %v", err)
	}
	if agent == nil {
		t.Fatal("FindAgent returned nil, want a registered row")
	}
	if agent.Status != "online" {
		t.Errorf("Status after Start = %q, want %q", agent.Status, "online")
	}
	if !agent.LastSeen.Equal(fake.Now()) {
		t.Errorf("LastSeen = %v, want %v", agent.LastSeen, fake.Now())
	}

	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Shutdown closes the store, so a second Shutdown call must be a
	// no-op rather than erroring or panicking.
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown = %v, want nil", err)
	}
}

func TestShutdownPersistsOfflineStatus(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Unix(1700000000, 0))
	dataDir := t.TempDir()

	server, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:       dataDir,
		Clock:         fake,
		DetectOptions: detectAs("scribe"),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	self, machineID := server.Self, server.MachineID

	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	s, err := store.Open(store.Config{Path: filepath.Join(dataDir, "mailbox.db"), PoolSize: 1})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	agent, err := s.FindAgent(ctx, self, machineID)
	if err != nil {
		t.Fatalf("FindAgent: %v", err)
	}
	if agent.Status != "offline" {
		t.Errorf("Status after Shutdown = %q, want %q", agent.Status, "offline")
	}
}

func TestStartResolvesNameCollisionOnSameMachine(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Unix(1700000000, 0))
	dataDir := t.TempDir()

	first, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:       dataDir,
		Clock:         fake,
		DetectOptions: detectAs("scribe"),
	})
	if err != nil {
		t.Fatalf("Start(first): %v", err)
	}
	defer first.Shutdown(ctx)

	second, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:       dataDir,
		Clock:         fake,
		DetectOptions: detectAs("scribe"),
	})
	if err != nil {
		t.Fatalf("Start(second): %v", err)
	}
	defer second.Shutdown(ctx)

	if second.Self != "scribe-2" {
		t.Errorf("second.Self = %q, want %q", second.Self, "scribe-2")
	}
	if first.MachineID != second.MachineID {
		t.Errorf("MachineID mismatch across processes on the same data dir: %q vs %q", first.MachineID, second.MachineID)
	}
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Unix(1700000000, 0))

	server, err := lifecycle.Start(ctx, lifecycle.Config{
		DataDir:           t.TempDir(),
		Clock:             fake,
		DetectOptions:     detectAs("scribe"),
		HeartbeatInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer server.Shutdown(ctx)

	fake.Advance(time.Second)
	fake.WaitForTimers(1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		agent, err := server.Store.FindAgent(ctx, server.Self, server.MachineID)
		if err != nil {
			t.Fatalf("FindAgent: %v", err)
		}
		if agent.LastSeen.Equal(fake.Now()) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("heartbeat did not refresh LastSeen to %v, got %v", fake.Now(), agent.LastSeen)
		}
	}
}
