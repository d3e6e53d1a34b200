// Package rpc implements the JSON-RPC 2.0 surface exposed to paired agents.
// The method set is fixed at construction; there is no open-ended
// registration after the dispatcher is built.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ProtocolVersion is the agent protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes, plus the implementation-defined auth code used
// by the HTTP layer.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeServerError    = -32000
	CodeUnauthorized   = -32001
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServerInfo describes this server to the initialize call.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool is a named capability exposed through tools/list and tools/call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`

	// Run executes the tool. Not serialized.
	Run func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// HandlerFunc handles a single RPC method.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher maps method names to handlers. The registry is closed: it is
// populated in the constructor and never mutated afterwards.
type Dispatcher struct {
	info     ServerInfo
	tools    []Tool
	handlers map[string]HandlerFunc
}

// NewDispatcher builds a dispatcher over the fixed tool registry.
func NewDispatcher(info ServerInfo, tools []Tool) *Dispatcher {
	d := &Dispatcher{
		info:  info,
		tools: tools,
	}
	d.handlers = map[string]HandlerFunc{
		"initialize": d.handleInitialize,
		"tools/list": d.handleToolsList,
		"tools/call": d.handleToolsCall,
	}
	return d
}

// Info returns the advertised server identity.
func (d *Dispatcher) Info() ServerInfo {
	return d.info
}

// Dispatch routes an already-authenticated request to its handler and wraps
// the outcome in a response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	handler, ok := d.handlers[req.Method]
	if !ok {
		return &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unsupported method: %s", req.Method)},
			ID:      req.ID,
		}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		log.Debug().Err(err).Str("method", req.Method).Msg("rpc handler failed")
		return &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: CodeServerError, Message: err.Error()},
			ID:      req.ID,
		}
	}

	return &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (d *Dispatcher) handleInitialize(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": d.info,
	}, nil
}

func (d *Dispatcher) handleToolsList(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"tools": d.tools}, nil
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var call toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return nil, fmt.Errorf("malformed tools/call params: %w", err)
		}
	}

	for _, tool := range d.tools {
		if tool.Name != call.Name {
			continue
		}
		text, err := tool.Run(ctx, call.Arguments)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown tool: %s", call.Name)
}

// EchoTool is the built-in diagnostic tool: it responds OK with the caller's
// optional message, proving the pairing handshake end to end.
func EchoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "Responds with OK and the optional message argument",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Optional message to include in the response",
				},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			msg := "Hello from the pairing gateway!"
			if m, ok := args["message"].(string); ok && m != "" {
				msg = m
			}
			return "OK: " + msg, nil
		},
	}
}
