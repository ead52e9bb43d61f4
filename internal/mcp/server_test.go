// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ai-mail/mailbox/internal/dispatch"
	"github.com/ai-mail/mailbox/internal/kernel"
	"github.com/ai-mail/mailbox/internal/mcp"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

func newTestServer(t *testing.T) *mcp.Server {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "mail.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fake := clock.Fake(time.Unix(1700000000, 0))
	ctx := context.Background()
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
	return mcp.New(dispatch.New(k, "a", fake, 0))
}

func TestInitializeThenToolsListRequiresInitialize(t *testing.T) {
	server := newTestServer(t)

	var in bytes.Buffer
	in.WriteString(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")

	var out bytes.Buffer
	if err := server.Run(context.Background(), &in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("tools/list before initialize should error")
	}
}

func TestFullRoundTrip(t *testing.T) {
	server := newTestServer(t)

	lines := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{},"clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"send_mail","arguments":{"recipient":"b","subject":"hi","body":"hello"}}}`,
	}
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")

	var out bytes.Buffer
	if err := server.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	responses := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3: %v", len(responses), responses)
	}

	var initResp struct {
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(responses[0]), &initResp); err != nil {
		t.Fatalf("unmarshal initialize response: %v", err)
	}
	if initResp.Result.ServerInfo.Name != "ai-mail" {
		t.Errorf("serverInfo.name = %q, want ai-mail", initResp.Result.ServerInfo.Name)
	}

	var listResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(responses[1]), &listResp); err != nil {
		t.Fatalf("unmarshal tools/list response: %v", err)
	}
	if len(listResp.Result.Tools) != 10 {
		t.Errorf("tools/list returned %d tools, want 10", len(listResp.Result.Tools))
	}

	var callResp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(responses[2]), &callResp); err != nil {
		t.Fatalf("unmarshal tools/call response: %v", err)
	}
	if callResp.Result.IsError {
		t.Fatalf("send_mail call errored: %+v", callResp.Result)
	}
	if len(callResp.Result.Content) != 1 || !strings.Contains(callResp.Result.Content[0].Text, `"id"`) {
		t.Errorf("send_mail content = %+v, want a JSON body with id", callResp.Result.Content)
	}
}

func TestUnknownMethod(t *testing.T) {
	server := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n")
	var out bytes.Buffer
	if err := server.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "unknown method") {
		t.Errorf("output = %q, want unknown method error", out.String())
	}
}
