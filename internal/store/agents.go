// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// UpsertAgent inserts or updates the agent row keyed by (Name,
// MachineID). Used both at registration and by the heartbeat ticker.
func (s *Store) UpsertAgent(ctx context.Context, a *Agent) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var processInfo any
	if len(a.ProcessInfo) > 0 {
		processInfo = string(a.ProcessInfo)
	}
	var status any
	if a.Status != "" {
		status = a.Status
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO agents (name, machine_id, last_seen, status, process_info)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, machine_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			status = excluded.status,
			process_info = excluded.process_info`,
		&sqlitex.ExecOptions{
			Args: []any{a.Name, a.MachineID, timestampSQL(a.LastSeen), status, processInfo},
		})
	if err != nil {
		return fmt.Errorf("store: upsert agent: %w", err)
	}
	return nil
}

// FindAgent returns the agent row for (name, machineID), or nil if
// none exists.
func (s *Store) FindAgent(ctx context.Context, name, machineID string) (*Agent, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var found *Agent
	err = sqlitex.Execute(conn, `
		SELECT name, machine_id, last_seen, status, process_info
		FROM agents WHERE name = ? AND machine_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name, machineID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				a := scanAgent(stmt)
				found = &a
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: find agent: %w", err)
	}
	return found, nil
}

// ListAgents returns all agents ordered by last_seen DESC. If since
// is non-nil, only agents whose last_seen is at or after *since are
// returned.
func (s *Store) ListAgents(ctx context.Context, since *time.Time) ([]Agent, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := `SELECT name, machine_id, last_seen, status, process_info FROM agents`
	var args []any
	if since != nil {
		query += ` WHERE last_seen >= ?`
		args = append(args, timestampSQL(*since))
	}
	query += ` ORDER BY last_seen DESC`

	var agents []Agent
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			agents = append(agents, scanAgent(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	return agents, nil
}

// Stats computes the mailbox counters for forAgent: total and unread
// inbox size, unread-urgent count, total registered agents, and the
// number of distinct threads forAgent participates in.
func (s *Store) Stats(ctx context.Context, forAgent string) (Stats, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer s.pool.Put(conn)

	var out Stats
	scanCount := func(dest *int64) func(*sqlite.Stmt) error {
		return func(stmt *sqlite.Stmt) error {
			*dest = stmt.ColumnInt64(0)
			return nil
		}
	}

	if err := sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM messages WHERE recipient = ? AND archived = 0`,
		&sqlitex.ExecOptions{Args: []any{forAgent}, ResultFunc: scanCount(&out.TotalInbox)},
	); err != nil {
		return Stats{}, fmt.Errorf("store: stats: total inbox: %w", err)
	}

	if err := sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM messages WHERE recipient = ? AND archived = 0 AND read = 0`,
		&sqlitex.ExecOptions{Args: []any{forAgent}, ResultFunc: scanCount(&out.UnreadInbox)},
	); err != nil {
		return Stats{}, fmt.Errorf("store: stats: unread inbox: %w", err)
	}

	if err := sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM messages WHERE recipient = ? AND archived = 0 AND read = 0 AND priority = 'urgent'`,
		&sqlitex.ExecOptions{Args: []any{forAgent}, ResultFunc: scanCount(&out.UnreadUrgent)},
	); err != nil {
		return Stats{}, fmt.Errorf("store: stats: unread urgent: %w", err)
	}

	if err := sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM agents`,
		&sqlitex.ExecOptions{ResultFunc: scanCount(&out.AgentsTotal)},
	); err != nil {
		return Stats{}, fmt.Errorf("store: stats: agents total: %w", err)
	}

	if err := sqlitex.Execute(conn,
		`SELECT COUNT(DISTINCT thread_id) FROM messages WHERE sender = ? OR recipient = ?`,
		&sqlitex.ExecOptions{Args: []any{forAgent, forAgent}, ResultFunc: scanCount(&out.DistinctThreadsFor)},
	); err != nil {
		return Stats{}, fmt.Errorf("store: stats: distinct threads: %w", err)
	}

	return out, nil
}

// DeleteAgentsLastSeenBefore permanently removes agent rows whose
// last_seen is older than cutoff. Used by the periodic cleanup
// maintenance operation to forget agents that have not run in a long
// time; it never touches messages they sent or received.
func (s *Store) DeleteAgentsLastSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM agents WHERE last_seen < ?`,
		&sqlitex.ExecOptions{Args: []any{timestampSQL(cutoff)}})
	if err != nil {
		return 0, fmt.Errorf("store: delete stale agents: %w", err)
	}
	return conn.Changes(), nil
}

func scanAgent(stmt *sqlite.Stmt) Agent {
	var a Agent
	a.Name = stmt.ColumnText(0)
	a.MachineID = stmt.ColumnText(1)
	a.LastSeen = parseTimestamp(stmt.ColumnText(2))
	if !stmt.ColumnIsNull(3) {
		a.Status = stmt.ColumnText(3)
	}
	if !stmt.ColumnIsNull(4) {
		a.ProcessInfo = []byte(stmt.ColumnText(4))
	}
	return a
}
