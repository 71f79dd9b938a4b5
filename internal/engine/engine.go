// Package engine abstracts the reasoning engines (LLM providers) behind a
// single blocking Generate interface. A response is an ordered list of
// fragments: text the user should see and tool invocations the agent must
// resolve before the turn can finish.
package engine

import (
	"context"
	"encoding/json"
	"strings"
)

// StopReason explains why the engine stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Fragment is one piece of engine output. The concrete types are
// TextFragment and ToolInvocation; nothing else implements it.
type Fragment interface {
	fragment()
}

// TextFragment is a run of assistant text.
type TextFragment struct {
	Text string
}

func (TextFragment) fragment() {}

// ToolInvocation is a request from the engine to execute a tool. Input is the
// raw JSON arguments exactly as the engine produced them.
type ToolInvocation struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolInvocation) fragment() {}

// InvocationResult carries the outcome of one tool invocation back to the
// engine on the next iteration.
type InvocationResult struct {
	InvocationID string
	Content      string
	IsError      bool
}

// Message is one conversation turn in engine-neutral form. Assistant messages
// may carry tool invocations; user messages may carry invocation results.
type Message struct {
	Role        string // "user" or "assistant"
	Content     string
	Invocations []ToolInvocation
	Results     []InvocationResult
}

// ToolSpec describes one tool the engine may invoke.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is a single generation request.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Response is a completed generation.
type Response struct {
	Fragments    []Fragment
	StopReason   StopReason
	InputTokens  int
	OutputTokens int
}

// Text concatenates all text fragments in order.
func (r *Response) Text() string {
	var b strings.Builder
	for _, fragment := range r.Fragments {
		if text, ok := fragment.(TextFragment); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// Invocations returns all tool invocations in order.
func (r *Response) Invocations() []ToolInvocation {
	var out []ToolInvocation
	for _, fragment := range r.Fragments {
		if inv, ok := fragment.(ToolInvocation); ok {
			out = append(out, inv)
		}
	}
	return out
}

// Engine is a reasoning engine adapter. Generate blocks until the engine
// finishes the turn; streaming providers are consumed to completion inside
// the adapter.
type Engine interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Name() string
	Available() bool
}
