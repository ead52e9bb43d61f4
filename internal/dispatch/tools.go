// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/json"

	"github.com/ai-mail/mailbox/internal/identity"
	"github.com/ai-mail/mailbox/internal/kernel"
	"github.com/ai-mail/mailbox/internal/store"
)

func invalidArgument(msg string) *ToolError {
	return &ToolError{Kind: kernel.KindInvalidArgument, Message: msg}
}

type sendMailArgs struct {
	Recipient string   `json:"recipient"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Priority  string   `json:"priority,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
}

func handleSendMail(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args sendMailArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("send_mail: " + err.Error())
	}

	res, kerr := d.kernel.SendMail(ctx, d.self, kernel.SendMailArgs{
		Recipient: args.Recipient,
		Subject:   args.Subject,
		Body:      args.Body,
		Priority:  store.Priority(args.Priority),
		Tags:      args.Tags,
		ReplyTo:   args.ReplyTo,
	})
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(struct {
		ID        string `json:"id"`
		Recipient string `json:"recipient"`
		Subject   string `json:"subject"`
		Priority  string `json:"priority"`
	}{res.ID, res.Recipient, res.Subject, string(res.Priority)})
}

type checkMailArgs struct {
	UnreadOnly     *bool  `json:"unread_only,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	PriorityFilter string `json:"priority_filter,omitempty"`
	DaysBack       int    `json:"days_back,omitempty"`
}

func handleCheckMail(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args checkMailArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("check_mail: " + err.Error())
	}

	unreadOnly := true
	if args.UnreadOnly != nil {
		unreadOnly = *args.UnreadOnly
	}

	messages, kerr := d.kernel.CheckMail(ctx, d.self, kernel.CheckMailArgs{
		UnreadOnly:     unreadOnly,
		Limit:          args.Limit,
		PriorityFilter: store.Priority(args.PriorityFilter),
		DaysBack:       args.DaysBack,
	})
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(viewsOf(messages))
}

type readMessageArgs struct {
	MessageID string `json:"message_id"`
}

func handleReadMessage(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args readMessageArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("read_message: " + err.Error())
	}
	msg, kerr := d.kernel.ReadMessage(ctx, d.self, args.MessageID)
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(viewOf(*msg))
}

type searchMessagesArgs struct {
	Query    string `json:"query"`
	DaysBack int    `json:"days_back,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Priority string `json:"priority,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func handleSearchMessages(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args searchMessagesArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("search_messages: " + err.Error())
	}
	messages, kerr := d.kernel.SearchMessages(ctx, d.self, kernel.SearchMessagesArgs{
		Query:      args.Query,
		DaysBack:   args.DaysBack,
		SenderEq:   args.Sender,
		PriorityEq: store.Priority(args.Priority),
		Limit:      args.Limit,
	})
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(viewsOf(messages))
}

type listAgentsArgs struct {
	ActiveOnly bool `json:"active_only,omitempty"`
}

func handleListAgents(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args listAgentsArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("list_agents: " + err.Error())
	}
	agents, kerr := d.kernel.ListAgents(ctx, kernel.ListAgentsArgs{ActiveOnly: args.ActiveOnly})
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(d.agentViewsOf(agents))
}

func (d *Dispatcher) agentViewsOf(agents []store.Agent) []agentView {
	views := make([]agentView, len(agents))
	for i, a := range agents {
		views[i] = agentView{
			Name:      a.Name,
			MachineID: a.MachineID,
			LastSeen:  a.LastSeen.UTC().Format("2006-01-02T15:04:05.000Z"),
			Status:    string(identity.DeriveStatus(d.clock, a.LastSeen, d.onlineWindow)),
		}
	}
	return views
}

type markReadArgs struct {
	MessageIDs []string `json:"message_ids"`
}

func handleMarkRead(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args markReadArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("mark_read: " + err.Error())
	}
	n, kerr := d.kernel.MarkRead(ctx, d.self, args.MessageIDs)
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(struct {
		Transitioned int `json:"transitioned"`
	}{n})
}

type archiveMessageArgs struct {
	MessageID string `json:"message_id"`
}

func handleArchiveMessage(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args archiveMessageArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("archive_message: " + err.Error())
	}
	if kerr := d.kernel.ArchiveMessage(ctx, d.self, args.MessageID); kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(struct {
		MessageID string `json:"message_id"`
		Archived  bool   `json:"archived"`
	}{args.MessageID, true})
}

type getThreadArgs struct {
	ThreadID string `json:"thread_id"`
}

func handleGetThread(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args getThreadArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("get_thread: " + err.Error())
	}
	messages, kerr := d.kernel.GetThread(ctx, d.self, args.ThreadID)
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(viewsOf(messages))
}

func handleGetMailboxStats(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args struct{}
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("get_mailbox_stats: " + err.Error())
	}
	stats, kerr := d.kernel.GetMailboxStats(ctx, d.self)
	if kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(stats)
}

type deleteMessageArgs struct {
	MessageID string `json:"message_id"`
}

func handleDeleteMessage(ctx context.Context, d *Dispatcher, argsJSON json.RawMessage) (json.RawMessage, *ToolError) {
	var args deleteMessageArgs
	if err := decodeStrict(argsJSON, &args); err != nil {
		return nil, invalidArgument("delete_message: " + err.Error())
	}
	if kerr := d.kernel.DeleteMessage(ctx, d.self, args.MessageID); kerr != nil {
		return nil, fromKernelError(kerr)
	}
	return encodeResult(struct {
		MessageID string `json:"message_id"`
		Deleted   bool   `json:"deleted"`
	}{args.MessageID, true})
}
