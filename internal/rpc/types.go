// Package rpc is the JSON-RPC 2.0 front door: tool discovery and invocation
// for programmatic callers, plus the conversational chat endpoint.
package rpc

import "encoding/json"

// JSON-RPC 2.0 error codes, plus the auth extensions.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeUnauthenticated is returned when a method requires a credential
	// and none resolved.
	CodeUnauthenticated = -32001

	// CodeMissingScope is returned when the caller's credential lacks a
	// scope the tool requires.
	CodeMissingScope = -32002
)

// Request is one JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises what the server supports.
type Capabilities struct {
	Tools map[string]any `json:"tools"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ToolInfo describes one tool in a tools/list response.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolCallParams are the tools/call request parameters.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"session_id,omitempty"`
}

// ToolResultContent is one content block in a tool call result.
type ToolResultContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the tools/call response payload. Action failures and
// security blocks surface here with IsError set, not as protocol errors.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ChatRequest is the /v1/chat request body. WalletAddress, when present,
// links the custodial wallet to the session before the turn runs.
type ChatRequest struct {
	SessionID     string `json:"session_id"`
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// ChatResponse is the /v1/chat response body.
type ChatResponse struct {
	SessionID string          `json:"session_id"`
	Reply     string          `json:"reply"`
	Actions   []ActionSummary `json:"actions,omitempty"`
}

// ActionSummary is one executed action in a chat response.
type ActionSummary struct {
	Intent  string `json:"intent"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
