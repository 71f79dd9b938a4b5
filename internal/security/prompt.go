package security

import (
	"context"
	"regexp"

	"github.com/vaultline/vaultline/pkg/models"
)

// promptPattern is one entry in the injection catalog. Critical patterns
// block; the rest warn.
type promptPattern struct {
	name     string
	re       *regexp.Regexp
	critical bool
}

// promptCatalog covers the injection families seen against wallet agents:
// instruction override, persona hijack, prompt extraction, fund-drain
// phrasing, and code/markup smuggling. Extraction attempts only warn; the
// system prompt contains no secrets, but the attempt is worth flagging.
var promptCatalog = []promptPattern{
	{
		name:     "instruction_override",
		re:       regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|any\s+|your\s+|the\s+)?(previous|prior|above|earlier|original)?\s*(instructions|rules|prompts?|guidelines|directives)`),
		critical: true,
	},
	{
		name:     "persona_hijack",
		re:       regexp.MustCompile(`(?i)(you\s+are\s+(now|no\s+longer)|pretend\s+(to\s+be|you\s+are)|act\s+as\s+(if\s+you|though\s+you|an?\s+unrestricted)|jailbreak|\bDAN\s+mode\b)`),
		critical: true,
	},
	{
		name:     "prompt_extraction",
		re:       regexp.MustCompile(`(?i)(reveal|show|print|repeat|output|leak)\b.{0,40}\b(system\s+prompt|your\s+instructions|initial\s+prompt)`),
		critical: false,
	},
	{
		name:     "fund_drain",
		re:       regexp.MustCompile(`(?i)((send|transfer|move|drain|sweep|withdraw)\s+(all|everything|every\s+token|the\s+entire|max(imum)?|100%)|empty\s+(the|my|this|your)\s+wallet)`),
		critical: true,
	},
	{
		name:     "markup_injection",
		re:       regexp.MustCompile(`(?i)(<\s*script\b|<\s*/?\s*system\s*>|\{\{.*\}\}|\[INST\]|<\|im_start\|>)`),
		critical: true,
	},
}

// PromptCheck screens the user's message and the action's raw text against
// the injection catalog. It is pure regex: no I/O, deterministic, cheap.
type PromptCheck struct{}

// NewPromptCheck creates the prompt injection check.
func NewPromptCheck() *PromptCheck {
	return &PromptCheck{}
}

func (c *PromptCheck) Name() string {
	return "prompt_injection"
}

func (c *PromptCheck) Evaluate(ctx context.Context, action *models.ParsedAction, turn *TurnContext) Result {
	texts := make([]string, 0, 2)
	if turn != nil && turn.UserMessage != "" {
		texts = append(texts, turn.UserMessage)
	}
	if action != nil && action.RawText != "" && (turn == nil || action.RawText != turn.UserMessage) {
		texts = append(texts, action.RawText)
	}

	var warning string
	for _, text := range texts {
		for _, pattern := range promptCatalog {
			if !pattern.re.MatchString(text) {
				continue
			}
			if pattern.critical {
				return Block("message matches " + pattern.name + " pattern")
			}
			if warning == "" {
				warning = "message matches " + pattern.name + " pattern"
			}
		}
	}

	if warning != "" {
		return Warn(warning)
	}
	return Clear()
}
