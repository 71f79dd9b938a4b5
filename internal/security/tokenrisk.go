package security

import (
	"context"
	"strings"
	"time"

	"github.com/vaultline/vaultline/internal/risk"
	"github.com/vaultline/vaultline/pkg/models"
)

// tokenParamKeys are the parameter names that may carry a token contract.
var tokenParamKeys = []string{
	"token",
	"token_address",
	"tokenAddress",
	"token_in",
	"token_out",
}

// TokenRiskCheck consults the risk oracle for token contracts referenced by
// send and swap actions. A danger verdict blocks, a warning verdict warns.
// When the oracle cannot answer, the default policy is to warn and let the
// action proceed; BlockOnUnavailable flips that to a block.
type TokenRiskCheck struct {
	oracle             risk.Oracle
	timeout            time.Duration
	defaultChain       string
	blockOnUnavailable bool
}

// TokenRiskConfig configures the token risk check.
type TokenRiskConfig struct {
	Oracle             risk.Oracle
	Timeout            time.Duration
	DefaultChain       string
	BlockOnUnavailable bool
}

// NewTokenRiskCheck creates the token risk check.
func NewTokenRiskCheck(config TokenRiskConfig) *TokenRiskCheck {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.DefaultChain == "" {
		config.DefaultChain = "base"
	}
	return &TokenRiskCheck{
		oracle:             config.Oracle,
		timeout:            config.Timeout,
		defaultChain:       config.DefaultChain,
		blockOnUnavailable: config.BlockOnUnavailable,
	}
}

func (c *TokenRiskCheck) Name() string {
	return "token_risk"
}

func (c *TokenRiskCheck) Evaluate(ctx context.Context, action *models.ParsedAction, turn *TurnContext) Result {
	if action == nil || c.oracle == nil {
		return Clear()
	}
	// Only value-moving intents consult the oracle.
	if action.Intent != models.IntentSend && action.Intent != models.IntentSwap {
		return Clear()
	}

	tokens := c.collectTokens(action.Params)
	if len(tokens) == 0 {
		return Clear()
	}

	chain := c.defaultChain
	if raw, ok := action.Params["chain"].(string); ok && raw != "" {
		chain = raw
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var warning string
	for _, token := range tokens {
		assessment, err := c.oracle.Assess(ctx, token, chain)
		if err != nil {
			if c.blockOnUnavailable {
				return Block("token risk oracle unavailable for " + token)
			}
			if warning == "" {
				warning = "token risk oracle unavailable for " + token
			}
			continue
		}
		switch assessment.Level {
		case risk.LevelDanger:
			detail := "token " + token + " assessed as dangerous"
			if len(assessment.Reasons) > 0 {
				detail += ": " + strings.Join(assessment.Reasons, ", ")
			}
			return Block(detail)
		case risk.LevelWarning:
			if warning == "" {
				warning = "token " + token + " carries risk warnings"
				if len(assessment.Reasons) > 0 {
					warning += ": " + strings.Join(assessment.Reasons, ", ")
				}
			}
		}
	}

	if warning != "" {
		return Warn(warning)
	}
	return Clear()
}

// collectTokens gathers distinct contract-shaped token params.
func (c *TokenRiskCheck) collectTokens(params map[string]any) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, key := range tokenParamKeys {
		raw, ok := params[key]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(value))
		// Ticker symbols ("usdc") are resolved by handlers; only contract
		// addresses go to the oracle.
		if !strings.HasPrefix(normalized, "0x") || seen[normalized] {
			continue
		}
		seen[normalized] = true
		tokens = append(tokens, value)
	}
	return tokens
}
