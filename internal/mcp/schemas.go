// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

// toolCatalog declares the ten fixed tools' names, descriptions, and
// JSON Schema input shapes. Unlike its teacher, this server does not
// discover tools by walking a command tree — the tool set is fixed by
// the mailbox kernel's operation contract, so the catalog is a static
// table.
var toolCatalog = []toolDescription{
	{
		Name:        "send_mail",
		Description: "Send a message to another agent's mailbox.",
		InputSchema: jsonSchema{
			Type:     "object",
			Required: []string{"recipient", "subject", "body"},
			Properties: map[string]any{
				"recipient": stringProp("Recipient agent name."),
				"subject":   stringProp("Message subject."),
				"body":      stringProp("Message body."),
				"priority":  enumProp("Message priority.", "urgent", "high", "normal", "low"),
				"tags":      arrayOfStringsProp("Free-form tags."),
				"reply_to":  stringProp("ID of the message this replies to."),
			},
		},
	},
	{
		Name:        "check_mail",
		Description: "List messages in the caller's own inbox.",
		InputSchema: jsonSchema{
			Type: "object",
			Properties: map[string]any{
				"unread_only":     boolProp("Only unread messages. Default true."),
				"limit":           intProp("Maximum results, 1-100. Default 10."),
				"priority_filter": enumProp("Restrict to one priority.", "urgent", "high", "normal", "low"),
				"days_back":       intProp("Only messages from the last N days. Default 7."),
			},
		},
	},
	{
		Name:        "read_message",
		Description: "Fetch one message by ID and mark it read.",
		InputSchema: jsonSchema{
			Type:       "object",
			Required:   []string{"message_id"},
			Properties: map[string]any{"message_id": stringProp("Message ID.")},
		},
	},
	{
		Name:        "search_messages",
		Description: "Search messages the caller sent or received.",
		InputSchema: jsonSchema{
			Type:     "object",
			Required: []string{"query"},
			Properties: map[string]any{
				"query":     stringProp("Case-insensitive substring to match in subject, body, or tags."),
				"days_back": intProp("Only messages from the last N days, 1-365. Default 30."),
				"sender":    stringProp("Restrict to messages from this sender."),
				"priority":  enumProp("Restrict to one priority.", "urgent", "high", "normal", "low"),
				"limit":     intProp("Maximum results, 1-100. Default 20."),
			},
		},
	},
	{
		Name:        "list_agents",
		Description: "List known agents with their derived presence status.",
		InputSchema: jsonSchema{
			Type: "object",
			Properties: map[string]any{
				"active_only": boolProp("Only agents seen within the active window. Default false."),
			},
		},
	},
	{
		Name:        "mark_read",
		Description: "Mark one or more messages read. Not atomic as a set.",
		InputSchema: jsonSchema{
			Type:     "object",
			Required: []string{"message_ids"},
			Properties: map[string]any{
				"message_ids": arrayOfStringsProp("IDs of messages to mark read."),
			},
		},
	},
	{
		Name:        "archive_message",
		Description: "Archive a message so it no longer appears in inbox listings.",
		InputSchema: jsonSchema{
			Type:       "object",
			Required:   []string{"message_id"},
			Properties: map[string]any{"message_id": stringProp("Message ID.")},
		},
	},
	{
		Name:        "get_thread",
		Description: "Fetch all messages in a thread visible to the caller, oldest first.",
		InputSchema: jsonSchema{
			Type:       "object",
			Required:   []string{"thread_id"},
			Properties: map[string]any{"thread_id": stringProp("Thread ID.")},
		},
	},
	{
		Name:        "get_mailbox_stats",
		Description: "Return counters for the caller's own mailbox.",
		InputSchema: jsonSchema{Type: "object", Properties: map[string]any{}},
	},
	{
		Name:        "delete_message",
		Description: "Permanently delete a message the caller received.",
		InputSchema: jsonSchema{
			Type:       "object",
			Required:   []string{"message_id"},
			Properties: map[string]any{"message_id": stringProp("Message ID.")},
		},
	},
}

// jsonSchema is a minimal JSON Schema object, just enough to describe
// the ten tools' flat argument shapes.
type jsonSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func arrayOfStringsProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": "string"},
	}
}
