// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the mailbox's ten tools over JSON-RPC 2.0 on
// newline-delimited stdio, in the style of the Model Context Protocol.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ai-mail/mailbox/internal/dispatch"
)

// serverName is reported to clients during initialize.
const serverName = "ai-mail"

// serverVersion is reported to clients during initialize. The mailbox
// kernel has no independent version scheme, so this tracks the wire
// protocol shape, not a release.
const serverVersion = "1.0.0"

// Server is a JSON-RPC 2.0 server over stdio that routes tools/call
// requests to a Dispatcher bound to one agent identity.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	initialized bool
}

// New constructs a Server that dispatches tool calls through d.
func New(d *dispatch.Dispatcher) *Server {
	return &Server{dispatcher: d}
}

// Run processes JSON-RPC 2.0 requests from input and writes responses
// to output until input reaches EOF. Each request occupies one line.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	encoder := json.NewEncoder(output)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := writeError(encoder, json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); writeErr != nil {
				return fmt.Errorf("mcp: writing parse error response: %w", writeErr)
			}
			continue
		}

		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if writeErr := writeError(encoder, req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); writeErr != nil {
					return fmt.Errorf("mcp: writing version error response: %w", writeErr)
				}
			}
			continue
		}

		if req.isNotification() {
			continue
		}

		if err := s.dispatchRequest(ctx, encoder, &req); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *Server) dispatchRequest(ctx context.Context, encoder *json.Encoder, req *request) error {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(encoder, req)
	case "ping":
		return writeResult(encoder, req.ID, map[string]any{})
	case "tools/list":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return writeResult(encoder, req.ID, toolsListResult{Tools: toolCatalog})
	case "tools/call":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsCall(ctx, encoder, req)
	default:
		return writeError(encoder, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for initialize")
	}
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	s.initialized = true
	return writeResult(encoder, req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    serverCapabilities{Tools: &toolCapability{}},
		ServerInfo:      serverInfo{Name: serverName, Version: serverVersion},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	output, toolErr := s.dispatcher.Call(ctx, params.Name, params.Arguments)
	return writeResult(encoder, req.ID, buildToolResult(output, toolErr))
}

// buildToolResult shapes a dispatch result or error into an MCP
// tools/call result, always with at least one content block.
func buildToolResult(output json.RawMessage, toolErr *dispatch.ToolError) toolsCallResult {
	result := toolsCallResult{}
	if toolErr != nil {
		result.IsError = true
		result.Content = []contentBlock{{Type: "text", Text: toolErr.Error()}}
		result.ErrorInfo = &errorInfo{Category: string(toolErr.Kind), Retryable: toolErr.Retryable()}
		return result
	}
	result.Content = []contentBlock{{Type: "text", Text: string(output)}}
	return result
}

func writeResult(encoder *json.Encoder, id json.RawMessage, result any) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(encoder *json.Encoder, id json.RawMessage, code int, message string) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
