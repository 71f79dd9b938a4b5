package security

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultline/vaultline/internal/risk"
	"github.com/vaultline/vaultline/pkg/models"
)

const riskyToken = "0x00000000000000000000000000000000000baaad"

func riskAction(intent models.Intent, params map[string]any) *models.ParsedAction {
	return &models.ParsedAction{Intent: intent, Params: params}
}

func TestTokenRiskDangerBlocks(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewStaticOracle(map[string]risk.Level{riskyToken: risk.LevelDanger}),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSwap, map[string]any{"token_out": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeBlock {
		t.Errorf("outcome = %q, want block", res.Outcome)
	}
}

func TestTokenRiskWarningWarns(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewStaticOracle(map[string]risk.Level{riskyToken: risk.LevelWarning}),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSend, map[string]any{"token": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeWarn {
		t.Errorf("outcome = %q, want warn", res.Outcome)
	}
}

func TestTokenRiskSafeClears(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewStaticOracle(nil),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSend, map[string]any{"token": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeClear {
		t.Errorf("outcome = %q, want clear", res.Outcome)
	}
}

func TestTokenRiskUnavailableWarnsByDefault(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewFailingOracle(errors.New("connection refused")),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSend, map[string]any{"token": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeWarn {
		t.Errorf("outcome = %q, want warn (fail-open default)", res.Outcome)
	}
}

func TestTokenRiskUnavailableBlocksWhenConfigured(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle:             risk.NewFailingOracle(errors.New("connection refused")),
		BlockOnUnavailable: true,
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSend, map[string]any{"token": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeBlock {
		t.Errorf("outcome = %q, want block", res.Outcome)
	}
}

func TestTokenRiskSkipsNonValueIntents(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewFailingOracle(errors.New("must not be called")),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentBalance, map[string]any{"token": riskyToken}), &TurnContext{})
	if res.Outcome != OutcomeClear {
		t.Errorf("outcome = %q, want clear for balance intent", res.Outcome)
	}
}

func TestTokenRiskSkipsTickerSymbols(t *testing.T) {
	check := NewTokenRiskCheck(TokenRiskConfig{
		Oracle: risk.NewFailingOracle(errors.New("must not be called")),
	})

	res := check.Evaluate(context.Background(), riskAction(models.IntentSend, map[string]any{"token": "usdc"}), &TurnContext{})
	if res.Outcome != OutcomeClear {
		t.Errorf("outcome = %q, want clear for ticker symbol", res.Outcome)
	}
}
