// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch is the tool dispatcher: it decodes JSON tool
// arguments into typed kernel calls, rejects unknown fields, routes by
// name, and shapes results and errors into transport-neutral form.
// The caller's identity is a Dispatcher-wide value set at
// construction, never taken from the request payload.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ai-mail/mailbox/internal/kernel"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

// Dispatcher routes named tool calls to kernel operations for a fixed
// caller identity.
type Dispatcher struct {
	kernel       *kernel.Kernel
	self         string
	clock        clock.Clock
	onlineWindow time.Duration
}

// New constructs a Dispatcher bound to self, the identity resolved
// once at process startup. clk is used only to derive presence status
// in list_agents results; a nil clk defaults to clock.Real().
// onlineWindow bounds that derivation; <= 0 defaults to
// identity.DefaultOnlineWindow.
func New(k *kernel.Kernel, self string, clk clock.Clock, onlineWindow time.Duration) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	return &Dispatcher{kernel: k, self: self, clock: clk, onlineWindow: onlineWindow}
}

// Self returns the identity this dispatcher acts as.
func (d *Dispatcher) Self() string { return d.self }

// ToolError is a categorized error returned by Call, shaped for
// direct use by a transport's errorInfo extension.
type ToolError struct {
	Kind    kernel.Kind
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Retryable reports whether the same call might succeed unchanged.
func (e *ToolError) Retryable() bool { return e.Kind.Retryable() }

func fromKernelError(err *kernel.Error) *ToolError {
	return &ToolError{Kind: err.Kind, Message: err.Error()}
}

// Call decodes argsJSON per toolName's declared schema and executes
// the corresponding kernel operation, returning a JSON result or a
// *ToolError. Unknown tool names produce a *ToolError with kind
// invalid_argument.
func (d *Dispatcher) Call(ctx context.Context, toolName string, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	handler, ok := handlers[toolName]
	if !ok {
		return nil, &ToolError{Kind: kernel.KindInvalidArgument, Message: fmt.Sprintf("unknown tool %q", toolName)}
	}
	return handler(ctx, d, argsJSON)
}

// ToolNames returns the ten declared tool names in table order.
func ToolNames() []string {
	names := make([]string, len(toolOrder))
	copy(names, toolOrder)
	return names
}

var toolOrder = []string{
	"send_mail",
	"check_mail",
	"read_message",
	"search_messages",
	"list_agents",
	"mark_read",
	"archive_message",
	"get_thread",
	"get_mailbox_stats",
	"delete_message",
}

type handlerFunc func(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError)

var handlers = map[string]handlerFunc{
	"send_mail":          handleSendMail,
	"check_mail":         handleCheckMail,
	"read_message":       handleReadMessage,
	"search_messages":    handleSearchMessages,
	"list_agents":        handleListAgents,
	"mark_read":          handleMarkRead,
	"archive_message":    handleArchiveMessage,
	"get_thread":         handleGetThread,
	"get_mailbox_stats":  handleGetMailboxStats,
	"delete_message":     handleDeleteMessage,
}

// decodeStrict unmarshals data into dest, rejecting unknown fields per
// the dispatcher's schema-validation responsibility.
func decodeStrict(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// messageView is the transport-neutral rendering of store.Message:
// tags as a list, timestamp as ISO-8601, booleans as booleans.
type messageView struct {
	ID        string   `json:"id"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Priority  string   `json:"priority"`
	Tags      []string `json:"tags"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	ThreadID  string   `json:"thread_id"`
	Timestamp string   `json:"timestamp"`
	Read      bool     `json:"read"`
	Archived  bool     `json:"archived"`
}

func viewOf(m store.Message) messageView {
	return messageView{
		ID: m.ID, Sender: m.Sender, Recipient: m.Recipient,
		Subject: m.Subject, Body: m.Body, Priority: string(m.Priority),
		Tags: m.Tags, ReplyTo: m.ReplyTo, ThreadID: m.ThreadID,
		Timestamp: m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Read:      m.Read, Archived: m.Archived,
	}
}

func viewsOf(messages []store.Message) []messageView {
	views := make([]messageView, len(messages))
	for i, m := range messages {
		views[i] = viewOf(m)
	}
	return views
}

type agentView struct {
	Name      string `json:"name"`
	MachineID string `json:"machine_id"`
	LastSeen  string `json:"last_seen"`
	Status    string `json:"status"`
}

func encodeResult(v any) (json.RawMessage, *ToolError) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ToolError{Kind: kernel.KindStorageFailure, Message: "encoding result"}
	}
	return data, nil
}
