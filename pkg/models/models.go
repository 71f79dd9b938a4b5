// Package models defines the shared data types for Vaultline: sessions,
// messages, parsed actions, and action results.
package models

import (
	"strings"
	"time"
)

// Platform identifies the surface a session was created from.
type Platform string

const (
	PlatformWeb Platform = "web"
	PlatformAPI Platform = "api"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one conversation. Messages are append-only for the lifetime of
// the session; a session disappears only through TTL eviction.
type Session struct {
	ID            string    `json:"id"`
	Platform      Platform  `json:"platform"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is a single conversation turn. Action is set only on assistant
// messages that resulted from executing a tool.
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Action    *ActionRecord `json:"action,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Intent is the closed set of action categories the agent can perform.
// IntentUnknown is the explicit fallback for anything unrecognized.
type Intent string

const (
	IntentBalance Intent = "balance"
	IntentSend    Intent = "send"
	IntentSwap    Intent = "swap"
	IntentClaim   Intent = "claim"
	IntentLaunch  Intent = "launch"
	IntentVerify  Intent = "verify"
	IntentUnknown Intent = "unknown"
)

// KnownIntents lists every intent the router can dispatch, in a stable order.
var KnownIntents = []Intent{
	IntentBalance,
	IntentSend,
	IntentSwap,
	IntentClaim,
	IntentLaunch,
	IntentVerify,
}

// ParseIntent maps a string to a known Intent, falling back to IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentBalance:
		return IntentBalance
	case IntentSend:
		return IntentSend
	case IntentSwap:
		return IntentSwap
	case IntentClaim:
		return IntentClaim
	case IntentLaunch:
		return IntentLaunch
	case IntentVerify:
		return IntentVerify
	default:
		return IntentUnknown
	}
}

// Known reports whether the intent is dispatchable.
func (i Intent) Known() bool {
	return i != IntentUnknown && i != ""
}

// ParsedAction is one candidate action, derived either from a reasoning-engine
// tool proposal or from a deterministic fallback parser.
type ParsedAction struct {
	Intent     Intent         `json:"intent"`
	Params     map[string]any `json:"params,omitempty"`
	Confidence float64        `json:"confidence"`
	RawText    string         `json:"raw_text,omitempty"`
}

// ActionRecord is the persisted trace of an executed action, attached to the
// assistant message produced by the turn that ran it.
type ActionRecord struct {
	Intent  Intent         `json:"intent"`
	Params  map[string]any `json:"params,omitempty"`
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
}

// ActionResult is the only contract an action handler must satisfy. Failure
// is represented by Success=false plus a message, never by a thrown error.
type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Failure builds a failed ActionResult with the given message.
func Failure(message string) *ActionResult {
	return &ActionResult{Success: false, Message: message}
}
