// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the name of the agent behind the current
// process, derives a stable machine id, and computes presence
// (online/offline) from a last-seen timestamp. It has no knowledge of
// the tool protocol or the store's schema.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ai-mail/mailbox/lib/clock"
)

// DefaultOnlineWindow is the window within which an agent is
// considered online when a caller has no configured override.
const DefaultOnlineWindow = 60 * time.Second

// nameGrammar matches the agent-name grammar: 3-64 chars,
// [a-z0-9][a-z0-9-]*[a-z0-9], no consecutive dashes.
var nameGrammar = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,62}[a-z0-9])?$`)
var consecutiveDashes = regexp.MustCompile(`-{2,}`)
var invalidRun = regexp.MustCompile(`[^a-z0-9-]+`)

// envOverrides lists environment variables consulted, in priority
// order, before falling back to process/hostname heuristics.
// AI_AGENT_NAME is the sole authoritative override named by the tool
// protocol; the rest are best-effort heuristics inherited from the
// wider agent-tooling ecosystem.
var envOverrides = []string{
	"AI_AGENT_NAME",
	"AGENT_NAME",
	"MCP_CLIENT_NAME",
	"VSCODE_AGENT_NAME",
	"CURSOR_AGENT_NAME",
}

// parentProcessAgents maps a substring of the parent process name to
// the agent name it implies. Checked in map order is not guaranteed;
// callers needing determinism should rely on the first structural
// match, which in practice is unambiguous since real parent process
// names contain at most one of these substrings.
var parentProcessAgents = map[string]string{
	"code":    "vscode-copilot",
	"cursor":  "cursor-ai",
	"zed":     "zed-ai",
	"claude":  "claude-desktop",
	"chatgpt": "chatgpt-desktop",
	"python":  "python-agent",
}

// ParentProcessNameFunc returns the lowercase name of the
// current process's parent. Overridable in tests; production wires
// DefaultParentProcessName.
type ParentProcessNameFunc func() (string, bool)

// DefaultParentProcessName reports the name of the parent process by
// reading /proc/<ppid>/comm on Linux. It returns false if the parent
// cannot be determined, which is treated as "no heuristic available"
// rather than an error — detection always has a hostname fallback.
func DefaultParentProcessName() (string, bool) {
	ppid := os.Getppid()
	data, err := os.ReadFile("/proc/" + strconv.Itoa(ppid) + "/comm")
	if err != nil {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(string(data))), true
}

// DetectOptions configures name detection so tests can inject
// deterministic environment and process lookups without touching
// process-global state.
type DetectOptions struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// ParentProcessName defaults to DefaultParentProcessName.
	ParentProcessName ParentProcessNameFunc
	// Hostname defaults to os.Hostname.
	Hostname func() (string, error)
}

func (o DetectOptions) withDefaults() DetectOptions {
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	if o.ParentProcessName == nil {
		o.ParentProcessName = DefaultParentProcessName
	}
	if o.Hostname == nil {
		o.Hostname = os.Hostname
	}
	return o
}

// DetectName resolves a candidate agent name per the documented
// resolution order: explicit env override, then best-effort
// host/process heuristics, then a hostname-derived fallback. The
// returned name is already normalized (Normalize is idempotent on
// it), but is not yet collision-resolved against existing agents —
// that is ResolveUniqueName's job.
func DetectName(opts DetectOptions) string {
	opts = opts.withDefaults()

	for _, key := range envOverrides {
		if value, ok := opts.LookupEnv(key); ok && value != "" {
			if normalized := Normalize(value); normalized != "" {
				return normalized
			}
		}
	}

	if parentName, ok := opts.ParentProcessName(); ok {
		for substr, agentName := range parentProcessAgents {
			if strings.Contains(parentName, substr) {
				return agentName
			}
		}
	}

	hostname, err := opts.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fallbackName(hostname)
}

// fallbackName builds the agent-<hostname> fallback, normalizing the
// hostname portion so the result always satisfies the name grammar.
func fallbackName(hostname string) string {
	normalizedHost := Normalize(hostname)
	if normalizedHost == "" {
		normalizedHost = "host"
	}
	name := "agent-" + normalizedHost
	if len(name) > 64 {
		name = name[:64]
		name = strings.TrimRight(name, "-")
	}
	return name
}

// Normalize lowercases s and strips characters outside the name
// grammar, collapsing runs of dashes into one. If the result is empty
// or shorter than 3 characters, Normalize returns "" so the caller
// can fall back to agent-<hostname> per the detection order.
func Normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	dashed := invalidRun.ReplaceAllString(lower, "-")
	collapsed := consecutiveDashes.ReplaceAllString(dashed, "-")
	trimmed := strings.Trim(collapsed, "-")
	if len(trimmed) < 3 {
		return ""
	}
	if len(trimmed) > 64 {
		trimmed = strings.TrimRight(trimmed[:64], "-")
	}
	if !Valid(trimmed) {
		return ""
	}
	return trimmed
}

// Valid reports whether name satisfies the agent-name grammar exactly
// (no normalization applied).
func Valid(name string) bool {
	if len(name) < 3 || len(name) > 64 {
		return false
	}
	return nameGrammar.MatchString(name) && !strings.Contains(name, "--")
}

// ResolveUniqueName returns a name guaranteed not to collide with any
// existing[i] for the same machine, per the deterministic base,
// base-2, base-3, ... scheme.
func ResolveUniqueName(base string, existing map[string]bool) string {
	if !existing[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !existing[candidate] {
			return candidate
		}
	}
}

// MachineID derives a stable, opaque host identifier from the
// hostname and a persisted random salt. The identifier stays the same
// across restarts as long as the hostname and the salt file are
// unchanged; a hostname change yields a different identifier.
// saltPath is typically <data dir>/machine_salt.
func MachineID(hostname, saltPath string) (string, error) {
	salt, err := loadOrCreateSalt(saltPath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(hostname + ":" + salt))
	return hex.EncodeToString(sum[:])[:32], nil
}

func loadOrCreateSalt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	salt := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(salt), 0o600); err != nil {
		return "", err
	}
	return salt, nil
}

// Status is the derived, never-trusted-from-storage presence of an
// agent.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DeriveStatus computes presence from lastSeen using clk for "now".
// onlineWindow <= 0 defaults to DefaultOnlineWindow. Storage-supplied
// status fields MUST NOT be trusted; every reader recomputes this from
// last_seen.
func DeriveStatus(clk clock.Clock, lastSeen time.Time, onlineWindow time.Duration) Status {
	if onlineWindow <= 0 {
		onlineWindow = DefaultOnlineWindow
	}
	if clk.Now().Sub(lastSeen) <= onlineWindow {
		return StatusOnline
	}
	return StatusOffline
}
