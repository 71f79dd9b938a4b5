// Package context assembles the engine prompt from session history. The
// build is deterministic: the same history and config always produce the
// same messages.
package context

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vaultline/vaultline/internal/engine"
	"github.com/vaultline/vaultline/pkg/models"
)

// tokensPerChar is a rough estimate used to fit the token budget.
const tokensPerChar = 0.25

// Config bounds how much history reaches the engine.
type Config struct {
	// RecentWindow is the number of trailing messages kept verbatim.
	// Default: 20
	RecentWindow int

	// MaxContextTokens caps the estimated token size of the built context.
	// Default: 8000
	MaxContextTokens int

	// MaxToolResultChars truncates action payloads on messages older than
	// the recent window.
	// Default: 2000
	MaxToolResultChars int

	// IncludeSummary replaces messages older than the recent window with a
	// single synthesized summary instead of carrying them through.
	IncludeSummary bool
}

func (c Config) withDefaults() Config {
	if c.RecentWindow <= 0 {
		c.RecentWindow = 20
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 8000
	}
	if c.MaxToolResultChars <= 0 {
		c.MaxToolResultChars = 2000
	}
	return c
}

// Builder turns persisted history into engine messages.
type Builder struct {
	config Config
}

// NewBuilder creates a builder.
func NewBuilder(config Config) *Builder {
	return &Builder{config: config.withDefaults()}
}

// EstimateTokens approximates the token count of a string.
func EstimateTokens(s string) int {
	return int(float64(len(s))*tokensPerChar) + 1
}

// Build assembles the engine context from oldest to newest. The recent
// window is carried verbatim; older turns are either summarized or carried
// with truncated action payloads. Oldest messages are dropped until the
// estimate fits the token budget, but the newest message always survives.
func (b *Builder) Build(history []*models.Message) []engine.Message {
	if len(history) == 0 {
		return nil
	}

	split := len(history) - b.config.RecentWindow
	if split < 0 {
		split = 0
	}
	older, recent := history[:split], history[split:]

	var messages []engine.Message
	if len(older) > 0 {
		if b.config.IncludeSummary {
			messages = append(messages, engine.Message{
				Role:    "user",
				Content: b.summarize(older),
			})
		} else {
			for _, msg := range older {
				messages = append(messages, b.convert(msg, true))
			}
		}
	}
	for _, msg := range recent {
		messages = append(messages, b.convert(msg, false))
	}

	return b.fitBudget(messages)
}

func (b *Builder) convert(msg *models.Message, truncate bool) engine.Message {
	content := msg.Content
	if truncate && msg.Action != nil && len(content) > b.config.MaxToolResultChars {
		cut := b.config.MaxToolResultChars
		// Back up to a rune boundary so the cut never splits a code point.
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "…"
	}
	return engine.Message{
		Role:    string(msg.Role),
		Content: content,
	}
}

// summarize condenses elided turns into one bracketed note: message counts
// plus every action that executed, with its outcome.
func (b *Builder) summarize(older []*models.Message) string {
	var users, assistants int
	var actionLines []string
	for _, msg := range older {
		switch msg.Role {
		case models.RoleUser:
			users++
		case models.RoleAssistant:
			assistants++
		}
		if msg.Action != nil {
			outcome := "succeeded"
			if !msg.Action.Success {
				outcome = "failed"
			}
			actionLines = append(actionLines, fmt.Sprintf("%s %s", msg.Action.Intent, outcome))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[Earlier in this conversation: %d user and %d assistant messages elided.", users, assistants)
	if len(actionLines) > 0 {
		fmt.Fprintf(&sb, " Actions taken: %s.", strings.Join(actionLines, ", "))
	}
	sb.WriteString("]")
	return sb.String()
}

// fitBudget drops oldest messages until the estimated size fits.
func (b *Builder) fitBudget(messages []engine.Message) []engine.Message {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content)
	}
	for len(messages) > 1 && total > b.config.MaxContextTokens {
		total -= EstimateTokens(messages[0].Content)
		messages = messages[1:]
	}
	return messages
}
