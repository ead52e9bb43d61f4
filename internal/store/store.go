// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the durable, concurrent-safe substrate for
// messages and agents: a single SQLite file accessed through a pooled
// set of connections. It knows nothing about callers, authorization,
// or tool protocols — those live in internal/kernel. The store's only
// job is to satisfy the operation contract without losing or
// corrupting a row.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ai-mail/mailbox/lib/sqlitepool"
)

// ErrNotFound is returned by operations that look up a single row (or
// a viewer-scoped thread) when no matching, visible row exists. The
// kernel maps this to the NotFound error kind without distinguishing
// "absent" from "exists but not visible to viewer" — that collapsing
// happens in the queries themselves, not by inspecting this error.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	sender     TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	subject    TEXT NOT NULL,
	body       TEXT NOT NULL,
	priority   TEXT NOT NULL,
	tags       TEXT NOT NULL,
	reply_to   TEXT,
	thread_id  TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	read       INTEGER NOT NULL DEFAULT 0,
	archived   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_recipient_read ON messages(recipient, read);
CREATE INDEX IF NOT EXISTS idx_messages_priority ON messages(priority);

CREATE TABLE IF NOT EXISTS agents (
	name          TEXT NOT NULL,
	machine_id    TEXT NOT NULL,
	last_seen     TEXT NOT NULL,
	status        TEXT,
	process_info  TEXT,
	PRIMARY KEY (name, machine_id)
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Use ":memory:" only in tests, with
	// PoolSize forced to 1.
	Path string

	// PoolSize is the number of pooled connections. Defaults to
	// max(runtime.NumCPU(), 4) via sqlitepool when zero.
	PoolSize int

	// Logger receives operational messages. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Store is the SQLite-backed implementation of the mailbox substrate.
// It owns a single-writer/multi-reader connection pool; correctness
// under concurrent access comes from SQLite's own locking plus the
// WAL pragmas applied by sqlitepool, not from any lock in this type.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open creates or opens the store at cfg.Path, creating the schema if
// it does not already exist.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Priority is one of the four message priority levels, totally
// ordered urgent > high > normal > low.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the four declared priority
// levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// priorityRankSQL is the CASE expression used to sort priorities in
// their declared total order, lowest rank sorting first.
const priorityRankSQL = `CASE priority ` +
	`WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 WHEN 'low' THEN 3 ELSE 4 END`

// Message is the immutable-envelope-with-mutable-flags record
// persisted per message. Only Read and Archived may change after
// PutMessage.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  Priority  `json:"priority"`
	Tags      []string  `json:"tags"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Archived  bool      `json:"archived"`
}

// Agent is the presence record keyed by (Name, MachineID). Status is
// written opportunistically (e.g. "offline" on graceful shutdown) but
// is never authoritative: every reader derives presence from LastSeen
// via identity.DeriveStatus instead of trusting this field.
type Agent struct {
	Name        string          `json:"name"`
	MachineID   string          `json:"machine_id"`
	LastSeen    time.Time       `json:"last_seen"`
	Status      string          `json:"status,omitempty"`
	ProcessInfo json.RawMessage `json:"process_info,omitempty"`
}

// InboxFilter narrows ListInbox results. Zero values mean "no
// filter" except Limit, which callers must set to a positive bound.
// Since is an absolute cutoff, not a duration: callers compute it
// against their own clock so the window is testable with clock.Fake
// instead of being pinned to wall-clock time inside the store.
type InboxFilter struct {
	UnreadOnly bool
	PriorityEq Priority // empty: no priority filter
	Since      time.Time
	Limit      int
}

// SearchFilter narrows Search results. Zero values mean "no filter"
// except Limit. Since is an absolute cutoff; see InboxFilter.Since.
type SearchFilter struct {
	SenderEq   string
	PriorityEq Priority
	Since      time.Time
	Limit      int
}

// Stats holds the counters returned by the stats operation.
type Stats struct {
	TotalInbox           int64 `json:"total_inbox"`
	UnreadInbox          int64 `json:"unread_inbox"`
	UnreadUrgent         int64 `json:"unread_urgent"`
	AgentsTotal          int64 `json:"agents_total"`
	DistinctThreadsFor   int64 `json:"distinct_threads_for_agent"`
}

func timestampSQL(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("store: marshal tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// scanMessage reads a full messages row into m. Column order must
// match the SELECT list used by every query in this package:
// id, sender, recipient, subject, body, priority, tags, reply_to,
// thread_id, timestamp, read, archived.
func scanMessage(stmt *sqlite.Stmt) Message {
	var m Message
	m.ID = stmt.ColumnText(0)
	m.Sender = stmt.ColumnText(1)
	m.Recipient = stmt.ColumnText(2)
	m.Subject = stmt.ColumnText(3)
	m.Body = stmt.ColumnText(4)
	m.Priority = Priority(stmt.ColumnText(5))
	m.Tags = decodeTags(stmt.ColumnText(6))
	if !stmt.ColumnIsNull(7) {
		m.ReplyTo = stmt.ColumnText(7)
	}
	m.ThreadID = stmt.ColumnText(8)
	m.Timestamp = parseTimestamp(stmt.ColumnText(9))
	m.Read = stmt.ColumnInt(10) != 0
	m.Archived = stmt.ColumnInt(11) != 0
	return m
}

const messageColumns = `id, sender, recipient, subject, body, priority, tags, reply_to, thread_id, timestamp, read, archived`

// take borrows a connection, returning a StorageFailure-shaped error
// on failure so callers never need to special-case pool exhaustion.
func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return conn, nil
}
