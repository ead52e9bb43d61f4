// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ai-mail/mailbox/internal/dispatch"
	"github.com/ai-mail/mailbox/internal/kernel"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

func newTestDispatcher(t *testing.T, self string, agents ...string) *dispatch.Dispatcher {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "mail.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fake := clock.Fake(time.Unix(1700000000, 0))
	ctx := context.Background()
	for _, name := range agents {
		if err := s.UpsertAgent(ctx, &store.Agent{Name: name, MachineID: "MID", LastSeen: fake.Now()}); err != nil {
			t.Fatalf("UpsertAgent(%s): %v", name, err)
		}
	}

	counter := 0
	k := kernel.New(kernel.Config{Store: s, Clock: fake, NewID: func() string {
		counter++
		return "id-" + strconv.Itoa(counter)
	}})
	return dispatch.New(k, self, fake, 0)
}

func TestDispatchUnknownTool(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, "a", "a", "b")
	_, toolErr := d.Call(ctx, "not_a_real_tool", nil)
	if toolErr == nil || toolErr.Kind != kernel.KindInvalidArgument {
		t.Fatalf("Call(unknown) = %v, want invalid_argument", toolErr)
	}
}

func TestDispatchRejectsUnknownFields(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, "a", "a", "b")

	_, toolErr := d.Call(ctx, "send_mail", json.RawMessage(`{"recipient":"b","subject":"s","body":"b","bogus_field":1}`))
	if toolErr == nil || toolErr.Kind != kernel.KindInvalidArgument {
		t.Fatalf("Call(unknown field) = %v, want invalid_argument", toolErr)
	}
}

func TestDispatchFullRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "mail.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fake := clock.Fake(time.Unix(1700000000, 0))
	if err := s.UpsertAgent(ctx, &store.Agent{Name: "a", MachineID: "MID", LastSeen: fake.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertAgent(ctx, &store.Agent{Name: "b", MachineID: "MID", LastSeen: fake.Now()}); err != nil {
		t.Fatal(err)
	}

	counter := 0
	k := kernel.New(kernel.Config{Store: s, Clock: fake, NewID: func() string {
		counter++
		return "id-" + strconv.Itoa(counter)
	}})
	sender := dispatch.New(k, "a", fake, 0)
	recipient := dispatch.New(k, "b", fake, 0)

	sendResult, toolErr := sender.Call(ctx, "send_mail", json.RawMessage(`{"recipient":"b","subject":"hi","body":"hello"}`))
	if toolErr != nil {
		t.Fatalf("send_mail: %v", toolErr)
	}
	var sent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(sendResult, &sent); err != nil {
		t.Fatalf("unmarshal send_mail result: %v", err)
	}

	checkResult, toolErr := recipient.Call(ctx, "check_mail", nil)
	if toolErr != nil {
		t.Fatalf("check_mail: %v", toolErr)
	}
	var inbox []struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	}
	if err := json.Unmarshal(checkResult, &inbox); err != nil {
		t.Fatalf("unmarshal check_mail result: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != sent.ID || inbox[0].Read {
		t.Fatalf("check_mail = %+v, want one unread %s", inbox, sent.ID)
	}

	readResult, toolErr := recipient.Call(ctx, "read_message", json.RawMessage(`{"message_id":"`+sent.ID+`"}`))
	if toolErr != nil {
		t.Fatalf("read_message: %v", toolErr)
	}
	var read struct {
		Body string `json:"body"`
		Read bool   `json:"read"`
	}
	if err := json.Unmarshal(readResult, &read); err != nil {
		t.Fatalf("unmarshal read_message result: %v", err)
	}
	if read.Body != "hello" || !read.Read {
		t.Fatalf("read_message result = %+v, want body hello, read true", read)
	}
}

func TestDispatchListAgentsIncludesPresence(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "mail.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fake := clock.Fake(time.Unix(1700000000, 0))
	if err := s.UpsertAgent(ctx, &store.Agent{Name: "a", MachineID: "MID", LastSeen: fake.Now()}); err != nil {
		t.Fatal(err)
	}

	k := kernel.New(kernel.Config{Store: s, Clock: fake, NewID: func() string { return "id" }})
	d := dispatch.New(k, "a", fake, 0)

	result, toolErr := d.Call(ctx, "list_agents", nil)
	if toolErr != nil {
		t.Fatalf("list_agents: %v", toolErr)
	}
	var agents []struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &agents); err != nil {
		t.Fatalf("unmarshal list_agents result: %v", err)
	}
	if len(agents) != 1 || agents[0].Status != "online" {
		t.Fatalf("list_agents = %+v, want one online agent", agents)
	}
}
