package security

import (
	"context"
	"fmt"

	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/pkg/models"
)

// PipelineResult is the aggregate verdict for one action.
type PipelineResult struct {
	// Pass is false when any check blocked the action.
	Pass bool

	// FailedCheck names the check that blocked, when Pass is false.
	FailedCheck string

	// Detail is the blocking check's explanation, when Pass is false.
	Detail string

	// Warnings accumulates non-blocking findings in check order.
	Warnings []string
}

// Pipeline runs checks in registration order. The first block stops the run;
// later checks never see the action. Warnings accumulate across all checks
// that ran. A panicking check degrades to a warning: it neither waves the
// action through silently nor takes the whole pipeline down.
type Pipeline struct {
	checks  []Check
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPipeline creates a pipeline with the given checks, evaluated in order.
func NewPipeline(logger *observability.Logger, metrics *observability.Metrics, checks ...Check) *Pipeline {
	return &Pipeline{
		checks:  checks,
		logger:  logger,
		metrics: metrics,
	}
}

// Register appends a check to the end of the pipeline.
func (p *Pipeline) Register(check Check) {
	p.checks = append(p.checks, check)
}

// Run evaluates the action against every check until one blocks.
func (p *Pipeline) Run(ctx context.Context, action *models.ParsedAction, turn *TurnContext) *PipelineResult {
	result := &PipelineResult{Pass: true}

	for _, check := range p.checks {
		res := p.evaluate(ctx, check, action, turn)

		if p.metrics != nil {
			p.metrics.RecordSecurityCheck(check.Name(), string(res.Outcome))
		}

		switch res.Outcome {
		case OutcomeBlock:
			result.Pass = false
			result.FailedCheck = check.Name()
			result.Detail = res.Detail
			if p.metrics != nil {
				p.metrics.RecordSecurityBlock(check.Name())
			}
			if p.logger != nil {
				p.logger.Warn(ctx, "action blocked by security check",
					"check", check.Name(),
					"intent", string(action.Intent),
					"detail", res.Detail,
				)
			}
			return result
		case OutcomeWarn:
			result.Warnings = append(result.Warnings, res.Detail)
			if p.logger != nil {
				p.logger.Info(ctx, "security check warning",
					"check", check.Name(),
					"intent", string(action.Intent),
					"detail", res.Detail,
				)
			}
		}
	}

	return result
}

// evaluate runs one check, converting a panic into a warning result.
func (p *Pipeline) evaluate(ctx context.Context, check Check, action *models.ParsedAction, turn *TurnContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Error(ctx, "security check panicked",
					"check", check.Name(),
					"panic", fmt.Sprint(r),
				)
			}
			res = Warn(fmt.Sprintf("security check %s did not complete", check.Name()))
		}
	}()
	return check.Evaluate(ctx, action, turn)
}
