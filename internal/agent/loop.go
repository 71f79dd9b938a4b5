// Package agent implements the bounded tool-invocation loop that drives one
// conversation turn: build context, ask the engine, resolve the tools it
// proposes, and repeat until the engine finishes or the iteration budget
// runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultline/vaultline/internal/actions"
	"github.com/vaultline/vaultline/internal/auth"
	convctx "github.com/vaultline/vaultline/internal/context"
	"github.com/vaultline/vaultline/internal/engine"
	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/internal/sessions"
	"github.com/vaultline/vaultline/internal/tools"
	"github.com/vaultline/vaultline/pkg/models"
)

// Phase is where a turn ended.
type Phase string

const (
	// PhaseDone means the engine finished the turn on its own.
	PhaseDone Phase = "done"

	// PhaseExhausted means the iteration budget ran out while the engine
	// was still proposing tools.
	PhaseExhausted Phase = "exhausted"
)

// DefaultFallbackMessage is the reply when the turn cannot produce one.
const DefaultFallbackMessage = "I ran into an issue processing that. Could you try again?"

// Config bounds a turn.
type Config struct {
	// MaxIterations caps engine round trips per turn.
	// Default: 5
	MaxIterations int

	// MaxTokens caps each engine response.
	// Default: 1024
	MaxTokens int

	// SystemPrompt is sent with every generation request.
	SystemPrompt string

	// FallbackMessage replaces the reply when the turn fails or exhausts
	// its budget.
	FallbackMessage string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.FallbackMessage == "" {
		c.FallbackMessage = DefaultFallbackMessage
	}
	return c
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	SessionID    string
	Reply        string
	Phase        Phase
	Actions      []models.ActionRecord
	Iterations   int
	InputTokens  int
	OutputTokens int
}

// Loop drives conversation turns.
type Loop struct {
	engine     engine.Engine
	catalog    *tools.Catalog
	dispatcher *actions.Dispatcher
	store      sessions.Store
	locker     *sessions.Locker
	builder    *convctx.Builder
	config     Config
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewLoop wires a loop.
func NewLoop(
	eng engine.Engine,
	catalog *tools.Catalog,
	dispatcher *actions.Dispatcher,
	store sessions.Store,
	locker *sessions.Locker,
	builder *convctx.Builder,
	config Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Loop {
	return &Loop{
		engine:     eng,
		catalog:    catalog,
		dispatcher: dispatcher,
		store:      store,
		locker:     locker,
		builder:    builder,
		config:     config.withDefaults(),
		logger:     logger,
		metrics:    metrics,
	}
}

// ProcessTurn handles one user message end to end. The session is locked for
// the duration of the turn so concurrent turns on the same session serialize.
// Engine failures degrade to the fallback reply; only infrastructure
// failures (lock, store) surface as errors.
func (l *Loop) ProcessTurn(ctx context.Context, sessionID, text string, platform models.Platform, scopes auth.ScopeSet) (*TurnResult, error) {
	ctx = observability.AddSessionID(ctx, sessionID)
	ctx = observability.AddPlatform(ctx, string(platform))

	release, err := l.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	defer release()

	session, err := l.store.GetOrCreate(ctx, sessionID, platform)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := l.store.AppendMessage(ctx, sessionID, newMessage(sessionID, models.RoleUser, text, nil)); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if l.metrics != nil {
		l.metrics.MessageReceived(string(platform))
	}

	history, err := l.store.GetHistory(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	result := l.iterate(ctx, session, text, scopes, l.builder.Build(history))
	result.SessionID = sessionID

	assistant := newMessage(sessionID, models.RoleAssistant, result.Reply, lastAction(result.Actions))
	if err := l.store.AppendMessage(ctx, sessionID, assistant); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	if l.metrics != nil {
		l.metrics.MessageSent(string(platform))
	}

	return result, nil
}

// iterate runs the engine until it stops proposing tools or the budget runs
// out.
func (l *Loop) iterate(ctx context.Context, session *models.Session, text string, scopes auth.ScopeSet, messages []engine.Message) *TurnResult {
	result := &TurnResult{Phase: PhaseExhausted}
	specs := l.catalog.Specs(scopes)

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		result.Iterations = iteration + 1

		resp, err := l.engine.Generate(ctx, &engine.Request{
			System:    l.config.SystemPrompt,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: l.config.MaxTokens,
		})
		if err != nil {
			if l.logger != nil {
				l.logger.Error(ctx, "engine generation failed",
					"engine", l.engine.Name(),
					"iteration", iteration,
					"error", err.Error(),
				)
			}
			if l.metrics != nil {
				l.metrics.RecordError("agent", "engine_failure")
			}
			result.Phase = PhaseDone
			result.Reply = l.config.FallbackMessage
			return result
		}
		result.InputTokens += resp.InputTokens
		result.OutputTokens += resp.OutputTokens

		invocations := resp.Invocations()
		if len(invocations) == 0 {
			result.Phase = PhaseDone
			result.Reply = strings.TrimSpace(resp.Text())
			if result.Reply == "" {
				result.Reply = l.config.FallbackMessage
			}
			return result
		}

		messages = append(messages, engine.Message{
			Role:        "assistant",
			Content:     resp.Text(),
			Invocations: invocations,
		})

		results := make([]engine.InvocationResult, 0, len(invocations))
		for _, invocation := range invocations {
			res, record := l.resolve(ctx, session, text, scopes, invocation)
			if record != nil {
				result.Actions = append(result.Actions, *record)
			}
			results = append(results, res)
		}
		messages = append(messages, engine.Message{Role: "user", Results: results})

		// The engine may end the turn and propose tools at once. The tool
		// results were still executed and recorded, but the text already
		// answers the user.
		if resp.StopReason == engine.StopEndTurn {
			if reply := strings.TrimSpace(resp.Text()); reply != "" {
				result.Phase = PhaseDone
				result.Reply = reply
				return result
			}
		}
	}

	result.Reply = l.config.FallbackMessage
	if l.logger != nil {
		l.logger.Warn(ctx, "turn exhausted iteration budget",
			"max_iterations", l.config.MaxIterations,
		)
	}
	return result
}

// resolve turns one tool invocation into an invocation result, screening and
// executing through the dispatcher. Unknown tools, missing scopes, and bad
// arguments come back as error results so the engine can recover.
func (l *Loop) resolve(ctx context.Context, session *models.Session, text string, scopes auth.ScopeSet, invocation engine.ToolInvocation) (engine.InvocationResult, *models.ActionRecord) {
	fail := func(message string) engine.InvocationResult {
		return engine.InvocationResult{
			InvocationID: invocation.ID,
			Content:      message,
			IsError:      true,
		}
	}

	descriptor, ok := l.catalog.Get(invocation.Name)
	if !ok {
		return fail(fmt.Sprintf("unknown tool %q", invocation.Name)), nil
	}
	if missing := scopes.Missing(descriptor.RequiredScopes); len(missing) > 0 {
		parts := make([]string, len(missing))
		for i, scope := range missing {
			parts[i] = string(scope)
		}
		return fail("not permitted: missing scope " + strings.Join(parts, ", ")), nil
	}

	args := map[string]any{}
	if len(invocation.Input) > 0 {
		if err := json.Unmarshal(invocation.Input, &args); err != nil {
			return fail(fmt.Sprintf("invalid tool arguments: %v", err)), nil
		}
	}
	if err := l.catalog.Validate(invocation.Name, args); err != nil {
		return fail(err.Error()), nil
	}
	params := l.catalog.Canonicalize(invocation.Name, args)

	action := &models.ParsedAction{
		Intent:     descriptor.Intent,
		Params:     params,
		Confidence: 1,
		RawText:    text,
	}
	res := l.dispatcher.Dispatch(ctx, action, &actions.Request{
		SessionID: session.ID,
		Wallet:    session.WalletAddress,
		Params:    params,
		RawText:   text,
	})

	record := &models.ActionRecord{
		Intent:  descriptor.Intent,
		Params:  params,
		Success: res.Success,
		Message: res.Message,
	}

	content, err := json.Marshal(res)
	if err != nil {
		content = []byte(res.Message)
	}
	return engine.InvocationResult{
		InvocationID: invocation.ID,
		Content:      string(content),
		IsError:      !res.Success,
	}, record
}

func newMessage(sessionID string, role models.Role, content string, action *models.ActionRecord) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

func lastAction(records []models.ActionRecord) *models.ActionRecord {
	if len(records) == 0 {
		return nil
	}
	record := records[len(records)-1]
	return &record
}
