// Package security implements the composable screening pipeline that gates
// every action before execution.
package security

import (
	"context"

	"github.com/vaultline/vaultline/pkg/models"
)

// Outcome is a check's verdict for one action.
type Outcome string

const (
	OutcomeClear Outcome = "clear"
	OutcomeWarn  Outcome = "warn"
	OutcomeBlock Outcome = "block"
)

// Result is what a check returns. Detail is user-facing; it ends up in the
// blocked-action message or the warning list attached to the result.
type Result struct {
	Outcome Outcome
	Detail  string
}

// Clear returns a passing result.
func Clear() Result {
	return Result{Outcome: OutcomeClear}
}

// Warn returns a warning result with the given detail.
func Warn(detail string) Result {
	return Result{Outcome: OutcomeWarn, Detail: detail}
}

// Block returns a blocking result with the given detail.
func Block(detail string) Result {
	return Result{Outcome: OutcomeBlock, Detail: detail}
}

// TurnContext carries the conversational context a check may inspect beyond
// the action parameters themselves.
type TurnContext struct {
	SessionID   string
	UserMessage string
}

// Check is one screening stage. Evaluate must not mutate the action; a check
// that needs I/O takes its deadline from ctx.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, action *models.ParsedAction, turn *TurnContext) Result
}
