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

// PutMessage inserts a new message. The caller is responsible for
// allocating ID and ThreadID and setting Timestamp; PutMessage does
// not derive any field. It is durable before returning: the write
// commits to the WAL before this call returns to the caller.
func (s *Store) PutMessage(ctx context.Context, m *Message) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	tagsJSON, err := encodeTags(m.Tags)
	if err != nil {
		return err
	}

	var replyTo any
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO messages
			(id, sender, recipient, subject, body, priority, tags, reply_to, thread_id, timestamp, read, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				m.ID, m.Sender, m.Recipient, m.Subject, m.Body, string(m.Priority),
				tagsJSON, replyTo, m.ThreadID, timestampSQL(m.Timestamp),
				boolToInt(m.Read), boolToInt(m.Archived),
			},
		})
	if err != nil {
		return fmt.Errorf("store: put message: %w", err)
	}
	return nil
}

// GetMessage returns the message with the given id if it exists and
// viewer is its sender or recipient. Otherwise it returns
// ErrNotFound, deliberately not distinguishing "absent" from
// "exists but not visible" at this layer either.
func (s *Store) GetMessage(ctx context.Context, id, viewer string) (*Message, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var found *Message
	err = sqlitex.Execute(conn, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = ? AND (sender = ? OR recipient = ?)`,
		&sqlitex.ExecOptions{
			Args: []any{id, viewer, viewer},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				m := scanMessage(stmt)
				found = &m
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: get message: %w", err)
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ListInbox returns recipient's inbox ordered by (priority DESC,
// timestamp DESC, id ASC), excluding archived messages, bounded by
// filter.Limit.
func (s *Store) ListInbox(ctx context.Context, recipient string, filter InboxFilter) ([]Message, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient = ? AND archived = 0 AND timestamp >= ?`
	args := []any{recipient, timestampSQL(filter.Since)}

	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	if filter.PriorityEq != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.PriorityEq))
	}
	query += ` ORDER BY ` + priorityRankSQL + ` ASC, timestamp DESC, id ASC LIMIT ?`
	args = append(args, filter.Limit)

	var messages []Message
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			messages = append(messages, scanMessage(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list inbox: %w", err)
	}
	return messages, nil
}

// Search returns messages where participant is sender or recipient,
// not archived, within the window, matching q case-insensitively in
// subject, body, or any tag, ordered by timestamp DESC.
func (s *Store) Search(ctx context.Context, participant, q string, filter SearchFilter) ([]Message, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender = ? OR recipient = ?)
			AND archived = 0
			AND timestamp >= ?
			AND (
				subject LIKE '%' || ? || '%' ESCAPE '\' COLLATE NOCASE
				OR body LIKE '%' || ? || '%' ESCAPE '\' COLLATE NOCASE
				OR EXISTS (
					SELECT 1 FROM json_each(tags) WHERE json_each.value LIKE '%' || ? || '%' ESCAPE '\' COLLATE NOCASE
				)
			)`
	escaped := escapeLike(q)
	args := []any{participant, participant, timestampSQL(filter.Since), escaped, escaped, escaped}

	if filter.SenderEq != "" {
		query += ` AND sender = ?`
		args = append(args, filter.SenderEq)
	}
	if filter.PriorityEq != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.PriorityEq))
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, filter.Limit)

	var messages []Message
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			messages = append(messages, scanMessage(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return messages, nil
}

// GetThread returns every message sharing thread_id where participant
// is sender or recipient, ordered by timestamp ASC. An empty result
// is reported as ErrNotFound.
func (s *Store) GetThread(ctx context.Context, threadID, participant string) ([]Message, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var messages []Message
	err = sqlitex.Execute(conn, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id = ? AND (sender = ? OR recipient = ?)
		ORDER BY timestamp ASC`,
		&sqlitex.ExecOptions{
			Args: []any{threadID, participant, participant},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				messages = append(messages, scanMessage(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: get thread: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}
	return messages, nil
}

// MarkRead transitions read to true for the message if it exists and
// recipient owns it. Returns 1 if a row transitioned, 0 otherwise;
// never returns an error for a no-op match.
func (s *Store) MarkRead(ctx context.Context, id, recipient string) (int, error) {
	return s.updateFlag(ctx, id, recipient, "read", " AND read = 0")
}

// SetArchived transitions archived to true for the message if it
// exists and recipient owns it. Idempotent: archiving an
// already-archived message still returns 1 provided it matches.
func (s *Store) SetArchived(ctx context.Context, id, recipient string) (int, error) {
	return s.updateFlag(ctx, id, recipient, "archived", "")
}

func (s *Store) updateFlag(ctx context.Context, id, recipient, column, extraWhere string) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE messages SET `+column+` = 1 WHERE id = ? AND recipient = ?`+extraWhere,
		&sqlitex.ExecOptions{Args: []any{id, recipient}})
	if err != nil {
		return 0, fmt.Errorf("store: update %s: %w", column, err)
	}
	return conn.Changes(), nil
}

// Delete permanently removes the message if it exists and recipient
// owns it. Returns 1 if a row was removed, 0 otherwise.
func (s *Store) Delete(ctx context.Context, id, recipient string) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM messages WHERE id = ? AND recipient = ?`,
		&sqlitex.ExecOptions{Args: []any{id, recipient}})
	if err != nil {
		return 0, fmt.Errorf("store: delete: %w", err)
	}
	return conn.Changes(), nil
}

// DeleteArchivedBefore permanently removes every archived message
// whose timestamp is older than cutoff, across all recipients. It is
// a maintenance sweep, not a per-agent operation, and returns the
// number of rows removed.
func (s *Store) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM messages WHERE archived = 1 AND timestamp < ?`,
		&sqlitex.ExecOptions{Args: []any{timestampSQL(cutoff)}})
	if err != nil {
		return 0, fmt.Errorf("store: delete archived before: %w", err)
	}
	return conn.Changes(), nil
}

// escapeLike escapes SQL LIKE metacharacters in a user-supplied
// substring so search queries treat it literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
