// Package actions routes parsed actions to their handlers and couples
// execution to the security pipeline. Handlers report failure through the
// ActionResult contract; errors never escape the router.
package actions

import (
	"context"
	"fmt"

	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/pkg/models"
)

// Request carries everything a handler needs for one execution.
type Request struct {
	// SessionID identifies the conversation the action belongs to.
	SessionID string

	// Wallet is the session's linked wallet address. Empty when none is
	// linked yet.
	Wallet string

	// Params are the canonicalized tool arguments.
	Params map[string]any

	// RawText is the user message that produced the action.
	RawText string
}

// Handler executes one intent. A returned error is treated as a failure
// message; handlers should prefer returning a failed ActionResult directly.
type Handler func(ctx context.Context, req *Request) (*models.ActionResult, error)

// Router maps intents to handlers.
type Router struct {
	handlers map[models.Intent]Handler
	logger   *observability.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *observability.Logger) *Router {
	return &Router{
		handlers: make(map[models.Intent]Handler),
		logger:   logger,
	}
}

// Register binds a handler to an intent, replacing any existing binding.
func (r *Router) Register(intent models.Intent, handler Handler) {
	r.handlers[intent] = handler
}

// Execute runs the handler for the intent. Unknown intents, handler errors,
// and handler panics all surface as failed results, never as errors.
func (r *Router) Execute(ctx context.Context, intent models.Intent, req *Request) (result *models.ActionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error(ctx, "action handler panicked",
					"intent", string(intent),
					"panic", fmt.Sprint(rec),
				)
			}
			result = models.Failure("Something went wrong executing that action.")
		}
	}()

	handler, ok := r.handlers[intent]
	if !ok {
		return models.Failure(fmt.Sprintf("I don't know how to handle %q yet.", string(intent)))
	}

	res, err := handler(ctx, req)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn(ctx, "action handler failed",
				"intent", string(intent),
				"error", err.Error(),
			)
		}
		return models.Failure(err.Error())
	}
	if res == nil {
		return models.Failure("The action produced no result.")
	}
	return res
}
