// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ai-mail/mailbox/internal/identity"
	"github.com/ai-mail/mailbox/lib/clock"
)

func TestDetectNameEnvOverride(t *testing.T) {
	opts := identity.DetectOptions{
		LookupEnv: func(key string) (string, bool) {
			if key == "AI_AGENT_NAME" {
				return "My Agent!!", true
			}
			return "", false
		},
	}
	if got := identity.DetectName(opts); got != "my-agent" {
		t.Errorf("DetectName = %q, want my-agent", got)
	}
}

func TestDetectNameParentProcessHeuristic(t *testing.T) {
	opts := identity.DetectOptions{
		LookupEnv:         func(string) (string, bool) { return "", false },
		ParentProcessName: func() (string, bool) { return "cursor-helper", true },
	}
	if got := identity.DetectName(opts); got != "cursor-ai" {
		t.Errorf("DetectName = %q, want cursor-ai", got)
	}
}

func TestDetectNameHostnameFallback(t *testing.T) {
	opts := identity.DetectOptions{
		LookupEnv:         func(string) (string, bool) { return "", false },
		ParentProcessName: func() (string, bool) { return "", false },
		Hostname:          func() (string, error) { return "My-Host.local", nil },
	}
	got := identity.DetectName(opts)
	if got != "agent-my-host-local" {
		t.Errorf("DetectName = %q, want agent-my-host-local after normalization", got)
	}
}

func TestNormalizeRejectsTooShort(t *testing.T) {
	if got := identity.Normalize("--a--"); got != "" {
		t.Errorf("Normalize(short) = %q, want empty", got)
	}
}

func TestNormalizeCollapsesDashesAndCase(t *testing.T) {
	if got := identity.Normalize("Foo__Bar  Baz"); got != "foo-bar-baz" {
		t.Errorf("Normalize = %q, want foo-bar-baz", got)
	}
}

func TestResolveUniqueName(t *testing.T) {
	existing := map[string]bool{"claude-desktop": true, "claude-desktop-2": true}
	got := identity.ResolveUniqueName("claude-desktop", existing)
	if got != "claude-desktop-3" {
		t.Errorf("ResolveUniqueName = %q, want claude-desktop-3", got)
	}

	existing = map[string]bool{}
	if got := identity.ResolveUniqueName("claude-desktop", existing); got != "claude-desktop" {
		t.Errorf("ResolveUniqueName(no collision) = %q, want claude-desktop", got)
	}
}

func TestMachineIDStableAcrossCalls(t *testing.T) {
	saltPath := filepath.Join(t.TempDir(), "salt")

	first, err := identity.MachineID("host-a", saltPath)
	if err != nil {
		t.Fatalf("MachineID: %v", err)
	}
	second, err := identity.MachineID("host-a", saltPath)
	if err != nil {
		t.Fatalf("MachineID (again): %v", err)
	}
	if first != second {
		t.Errorf("MachineID not stable: %q != %q", first, second)
	}
}

func TestDeriveStatus(t *testing.T) {
	fake := clock.Fake(time.Unix(1700000000, 0))

	online := identity.DeriveStatus(fake, fake.Now().Add(-30*time.Second), 0)
	if online != identity.StatusOnline {
		t.Errorf("DeriveStatus(30s ago) = %v, want online", online)
	}

	offline := identity.DeriveStatus(fake, fake.Now().Add(-90*time.Second), 0)
	if offline != identity.StatusOffline {
		t.Errorf("DeriveStatus(90s ago) = %v, want offline", offline)
	}
}

func TestDeriveStatusCustomWindow(t *testing.T) {
	fake := clock.Fake(time.Unix(1700000000, 0))

	online := identity.DeriveStatus(fake, fake.Now().Add(-90*time.Second), 2*time.Minute)
	if online != identity.StatusOnline {
		t.Errorf("DeriveStatus(90s ago, 2m window) = %v, want online", online)
	}

	offline := identity.DeriveStatus(fake, fake.Now().Add(-30*time.Second), 10*time.Second)
	if offline != identity.StatusOffline {
		t.Errorf("DeriveStatus(30s ago, 10s window) = %v, want offline", offline)
	}
}
