// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ai-mail/mailbox/internal/store"
)

// SendMailArgs holds send_mail's arguments after defaults are applied.
type SendMailArgs struct {
	Recipient string
	Subject   string
	Body      string
	Priority  store.Priority
	Tags      []string
	ReplyTo   string
}

// SendMailResult is send_mail's result.
type SendMailResult struct {
	ID        string
	Recipient string
	Subject   string
	Priority  store.Priority
}

// SendMail allocates a message id, resolves the thread id, and writes
// a new message with sender = self.
func (k *Kernel) SendMail(ctx context.Context, self string, args SendMailArgs) (*SendMailResult, *Error) {
	if strings.TrimSpace(args.Recipient) == "" {
		return nil, InvalidArgument("recipient is required")
	}
	if strings.TrimSpace(args.Subject) == "" {
		return nil, InvalidArgument("subject is required")
	}
	if args.Body == "" {
		return nil, InvalidArgument("body is required")
	}
	if args.Priority == "" {
		args.Priority = store.PriorityNormal
	}
	if !args.Priority.Valid() {
		return nil, InvalidArgument("priority: invalid value %q", args.Priority)
	}
	for _, tag := range args.Tags {
		if strings.TrimSpace(tag) == "" {
			return nil, InvalidArgument("tags: empty tag not allowed")
		}
	}

	exists, kerr := k.recipientExists(ctx, args.Recipient)
	if kerr != nil {
		return nil, kerr
	}
	if !exists {
		return nil, RecipientNotFound("recipient %q is not a registered agent", args.Recipient)
	}

	threadID := k.newID()
	if args.ReplyTo != "" {
		target, err := k.store.GetMessage(ctx, args.ReplyTo, self)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ReplyTargetNotFound("reply_to %q does not exist or is not visible to sender", args.ReplyTo)
		}
		if err != nil {
			return nil, wrapStorage("send_mail", err)
		}
		if target.Sender != self && target.Recipient != self {
			return nil, NotAuthorized("reply_to %q is not visible to sender", args.ReplyTo)
		}
		threadID = target.ThreadID
	}

	msg := store.Message{
		ID:        k.newID(),
		Sender:    self,
		Recipient: args.Recipient,
		Subject:   args.Subject,
		Body:      args.Body,
		Priority:  args.Priority,
		Tags:      args.Tags,
		ReplyTo:   args.ReplyTo,
		ThreadID:  threadID,
		Timestamp: k.clock.Now(),
		Read:      false,
		Archived:  false,
	}
	if err := k.store.PutMessage(ctx, &msg); err != nil {
		return nil, wrapStorage("send_mail", err)
	}

	return &SendMailResult{ID: msg.ID, Recipient: msg.Recipient, Subject: msg.Subject, Priority: msg.Priority}, nil
}

// recipientExists reports whether any agent registration exists with
// this name, regardless of machine id — the kernel operates on a
// single host's store, so every row it can see is on this host.
func (k *Kernel) recipientExists(ctx context.Context, name string) (bool, *Error) {
	agents, err := k.store.ListAgents(ctx, nil)
	if err != nil {
		return false, wrapStorage("send_mail", err)
	}
	for _, a := range agents {
		if a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CheckMailArgs holds check_mail's arguments after defaults are
// applied.
type CheckMailArgs struct {
	UnreadOnly     bool
	Limit          int
	PriorityFilter store.Priority
	DaysBack       int
}

// CheckMail returns the caller's inbox.
func (k *Kernel) CheckMail(ctx context.Context, self string, args CheckMailArgs) ([]store.Message, *Error) {
	limit, kerr := validLimit(args.Limit, checkMailDefaultLimit)
	if kerr != nil {
		return nil, kerr
	}
	days, kerr := validDaysBack(args.DaysBack, checkMailDefaultDays)
	if kerr != nil {
		return nil, kerr
	}
	if kerr := validPriorityFilter(args.PriorityFilter); kerr != nil {
		return nil, kerr
	}

	messages, err := k.store.ListInbox(ctx, self, store.InboxFilter{
		UnreadOnly: args.UnreadOnly,
		PriorityEq: args.PriorityFilter,
		Since:      k.daysBackCutoff(days),
		Limit:      limit,
	})
	if err != nil {
		return nil, wrapStorage("check_mail", err)
	}
	return messages, nil
}

// ReadMessage transitions a message to read if self is its recipient
// and returns the message afterward.
func (k *Kernel) ReadMessage(ctx context.Context, self, messageID string) (*store.Message, *Error) {
	if messageID == "" {
		return nil, InvalidArgument("message_id is required")
	}

	if _, err := k.store.MarkRead(ctx, messageID, self); err != nil {
		return nil, wrapStorage("read_message", err)
	}

	msg, err := k.store.GetMessage(ctx, messageID, self)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("message %q not found", messageID)
	}
	if err != nil {
		return nil, wrapStorage("read_message", err)
	}
	if msg.Recipient != self {
		return nil, NotFound("message %q not found", messageID)
	}
	return msg, nil
}

// SearchMessagesArgs holds search_messages' arguments after defaults
// are applied.
type SearchMessagesArgs struct {
	Query      string
	DaysBack   int
	SenderEq   string
	PriorityEq store.Priority
	Limit      int
}

// SearchMessages returns messages where self participates, matching
// the query substring.
func (k *Kernel) SearchMessages(ctx context.Context, self string, args SearchMessagesArgs) ([]store.Message, *Error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, InvalidArgument("query is required")
	}
	limit, kerr := validLimit(args.Limit, searchDefaultLimit)
	if kerr != nil {
		return nil, kerr
	}
	days, kerr := validDaysBack(args.DaysBack, searchDefaultDays)
	if kerr != nil {
		return nil, kerr
	}
	if kerr := validPriorityFilter(args.PriorityEq); kerr != nil {
		return nil, kerr
	}

	messages, err := k.store.Search(ctx, self, args.Query, store.SearchFilter{
		SenderEq:   args.SenderEq,
		PriorityEq: args.PriorityEq,
		Since:      k.daysBackCutoff(days),
		Limit:      limit,
	})
	if err != nil {
		return nil, wrapStorage("search_messages", err)
	}
	return messages, nil
}

// ListAgentsArgs holds list_agents' arguments.
type ListAgentsArgs struct {
	ActiveOnly bool
}

// DefaultActiveWindow is the lookback used by list_agents' active_only
// filter when a Kernel has no configured override — 60 minutes,
// distinct from the 60-second online-presence window used elsewhere.
const DefaultActiveWindow = 60 * time.Minute

// ListAgents returns registered agents, optionally filtered to those
// with last_seen within k.activeWindow, ordered by last_seen DESC.
func (k *Kernel) ListAgents(ctx context.Context, args ListAgentsArgs) ([]store.Agent, *Error) {
	var since *time.Time
	if args.ActiveOnly {
		cutoff := k.clock.Now().Add(-k.activeWindow)
		since = &cutoff
	}

	agents, err := k.store.ListAgents(ctx, since)
	if err != nil {
		return nil, wrapStorage("list_agents", err)
	}
	return agents, nil
}

// MarkRead transitions read to true for every id in messageIDs where
// self is the recipient. Not atomic as a set: partial success is
// legal and reported via the returned count.
func (k *Kernel) MarkRead(ctx context.Context, self string, messageIDs []string) (int, *Error) {
	if len(messageIDs) == 0 {
		return 0, InvalidArgument("message_ids must be a non-empty list")
	}

	transitioned := 0
	for _, id := range messageIDs {
		n, err := k.store.MarkRead(ctx, id, self)
		if err != nil {
			return transitioned, wrapStorage("mark_read", err)
		}
		transitioned += n
	}
	return transitioned, nil
}

// ArchiveMessage sets archived = true if self is the message's
// recipient. Idempotent. Returns NotFound uniformly whether the
// message is absent or addressed to someone else (P10).
func (k *Kernel) ArchiveMessage(ctx context.Context, self, messageID string) *Error {
	if messageID == "" {
		return InvalidArgument("message_id is required")
	}
	n, err := k.store.SetArchived(ctx, messageID, self)
	if err != nil {
		return wrapStorage("archive_message", err)
	}
	if n == 0 {
		return NotFound("message %q not found", messageID)
	}
	return nil
}

// GetThread returns every message in threadID where self is sender or
// recipient, ordered by timestamp ASC.
func (k *Kernel) GetThread(ctx context.Context, self, threadID string) ([]store.Message, *Error) {
	if threadID == "" {
		return nil, InvalidArgument("thread_id is required")
	}
	messages, err := k.store.GetThread(ctx, threadID, self)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("thread %q not found", threadID)
	}
	if err != nil {
		return nil, wrapStorage("get_thread", err)
	}
	return messages, nil
}

// GetMailboxStats returns the counters defined by the store's stats
// operation for self.
func (k *Kernel) GetMailboxStats(ctx context.Context, self string) (*store.Stats, *Error) {
	stats, err := k.store.Stats(ctx, self)
	if err != nil {
		return nil, wrapStorage("get_mailbox_stats", err)
	}
	return &stats, nil
}

// DeleteMessage permanently removes the message if self is its
// recipient. Returns NotFound uniformly whether the message is absent
// or addressed to someone else (P10).
func (k *Kernel) DeleteMessage(ctx context.Context, self, messageID string) *Error {
	if messageID == "" {
		return InvalidArgument("message_id is required")
	}
	n, err := k.store.Delete(ctx, messageID, self)
	if err != nil {
		return wrapStorage("delete_message", err)
	}
	if n == 0 {
		return NotFound("message %q not found", messageID)
	}
	return nil
}

// archivedRetention and agentRetention bound the periodic maintenance
// sweep (Cleanup): they are not part of the ten tool operations and
// are invoked only from the CLI's --cleanup flag, never over the wire
// protocol.
const (
	archivedRetention = 30 * 24 * time.Hour
	agentRetention    = 90 * 24 * time.Hour
)

// CleanupResult reports how many rows a maintenance sweep removed.
type CleanupResult struct {
	ArchivedMessagesDeleted int `json:"archived_messages_deleted"`
	StaleAgentsDeleted      int `json:"stale_agents_deleted"`
}

// Cleanup permanently deletes archived messages older than
// archivedRetention and agent records not seen within agentRetention.
// It has no caller-scoped identity: it is a host-wide maintenance
// sweep, not one of the ten self-scoped tool operations.
func (k *Kernel) Cleanup(ctx context.Context) (*CleanupResult, *Error) {
	now := k.clock.Now()

	messages, err := k.store.DeleteArchivedBefore(ctx, now.Add(-archivedRetention))
	if err != nil {
		return nil, wrapStorage("cleanup", err)
	}
	agents, err := k.store.DeleteAgentsLastSeenBefore(ctx, now.Add(-agentRetention))
	if err != nil {
		return nil, wrapStorage("cleanup", err)
	}
	return &CleanupResult{ArchivedMessagesDeleted: messages, StaleAgentsDeleted: agents}, nil
}
