package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/internal/security"
	"github.com/vaultline/vaultline/pkg/models"
)

// Dispatcher screens an action through the security pipeline before handing
// it to the router. A blocked action never reaches its handler; the block
// surfaces as a failed result so the conversation can explain it.
type Dispatcher struct {
	pipeline *security.Pipeline
	router   *Router
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(pipeline *security.Pipeline, router *Router, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		router:   router,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch screens and executes one action. Non-blocking security warnings
// are attached to the result under Data["warnings"].
func (d *Dispatcher) Dispatch(ctx context.Context, action *models.ParsedAction, req *Request) *models.ActionResult {
	start := time.Now()

	turn := &security.TurnContext{
		SessionID:   req.SessionID,
		UserMessage: req.RawText,
	}

	verdict := d.pipeline.Run(ctx, action, turn)
	if !verdict.Pass {
		detail := verdict.Detail
		if detail == "" {
			detail = fmt.Sprintf("blocked by %s", verdict.FailedCheck)
		}
		result := models.Failure("I can't do that: " + detail)
		result.Data = map[string]any{"blocked_by": verdict.FailedCheck}
		d.record(action.Intent, "blocked", start)
		return result
	}

	result := d.router.Execute(ctx, action.Intent, req)

	if len(verdict.Warnings) > 0 {
		if result.Data == nil {
			result.Data = map[string]any{}
		}
		result.Data["warnings"] = verdict.Warnings
	}

	status := "success"
	if !result.Success {
		status = "failed"
	}
	d.record(action.Intent, status, start)
	return result
}

func (d *Dispatcher) record(intent models.Intent, status string, start time.Time) {
	if d.metrics != nil {
		d.metrics.RecordAction(string(intent), status, time.Since(start).Seconds())
	}
}
