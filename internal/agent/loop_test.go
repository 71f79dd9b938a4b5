package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vaultline/vaultline/internal/actions"
	"github.com/vaultline/vaultline/internal/auth"
	convctx "github.com/vaultline/vaultline/internal/context"
	"github.com/vaultline/vaultline/internal/engine"
	"github.com/vaultline/vaultline/internal/security"
	"github.com/vaultline/vaultline/internal/sessions"
	"github.com/vaultline/vaultline/internal/tools"
	"github.com/vaultline/vaultline/internal/wallet"
	"github.com/vaultline/vaultline/pkg/models"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// scriptedEngine replays canned responses in order, repeating the last one
// when the script runs out.
type scriptedEngine struct {
	responses []*engine.Response
	errs      []error
	calls     int
	requests  []*engine.Request
}

func (e *scriptedEngine) Generate(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	i := e.calls
	e.calls++
	e.requests = append(e.requests, req)

	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i < len(e.responses) {
		return e.responses[i], nil
	}
	return e.responses[len(e.responses)-1], nil
}

func (e *scriptedEngine) Name() string    { return "scripted" }
func (e *scriptedEngine) Available() bool { return true }

func textResponse(text string) *engine.Response {
	return &engine.Response{
		Fragments:  []engine.Fragment{engine.TextFragment{Text: text}},
		StopReason: engine.StopEndTurn,
	}
}

func toolResponse(id, name, input string) *engine.Response {
	return &engine.Response{
		Fragments: []engine.Fragment{engine.ToolInvocation{
			ID:    id,
			Name:  name,
			Input: json.RawMessage(input),
		}},
		StopReason: engine.StopToolUse,
	}
}

type loopFixture struct {
	loop   *Loop
	store  *sessions.MemoryStore
	engine *scriptedEngine
	ledger *wallet.Ledger
}

func newFixture(t *testing.T, eng *scriptedEngine, checks ...security.Check) *loopFixture {
	t.Helper()

	store := sessions.NewMemoryStore(time.Hour)
	ledger := wallet.NewLedger()
	if err := ledger.Credit(testWallet, "ETH", 10); err != nil {
		t.Fatal(err)
	}

	router := actions.NewRouter(nil)
	actions.NewHandlers(ledger, "base").RegisterAll(router)
	dispatcher := actions.NewDispatcher(security.NewPipeline(nil, nil, checks...), router, nil, nil)

	catalog, err := tools.DefaultCatalog("base")
	if err != nil {
		t.Fatal(err)
	}

	loop := NewLoop(
		eng,
		catalog,
		dispatcher,
		store,
		sessions.NewLocker(time.Second),
		convctx.NewBuilder(convctx.Config{}),
		Config{MaxIterations: 3},
		nil,
		nil,
	)
	return &loopFixture{loop: loop, store: store, engine: eng, ledger: ledger}
}

func (f *loopFixture) linkWallet(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.GetOrCreate(ctx, sessionID, models.PlatformAPI); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetWallet(ctx, sessionID, testWallet); err != nil {
		t.Fatal(err)
	}
}

func fullScopes() auth.ScopeSet {
	return auth.NewScopeSet(
		"chat:write", "wallet:read", "wallet:send",
		"swap:execute", "claim:write", "launch:write", "verify:write",
	)
}

func TestProcessTurnPlainReply(t *testing.T) {
	f := newFixture(t, &scriptedEngine{responses: []*engine.Response{textResponse("Hello there.")}})

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "hi", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseDone || result.Reply != "Hello there." {
		t.Errorf("result = %+v", result)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d", result.Iterations)
	}

	history, err := f.store.GetHistory(context.Background(), "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Error("turn must persist user then assistant message")
	}
	if history[1].Content != "Hello there." {
		t.Errorf("assistant content = %q", history[1].Content)
	}
}

func TestProcessTurnExecutesTool(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		toolResponse("inv-1", "get_balance", `{}`),
		textResponse("You hold 10 ETH."),
	}}
	f := newFixture(t, eng)
	f.linkWallet(t, "s1")

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "what do I hold?", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseDone || result.Reply != "You hold 10 ETH." {
		t.Errorf("result = %+v", result)
	}
	if len(result.Actions) != 1 || result.Actions[0].Intent != models.IntentBalance || !result.Actions[0].Success {
		t.Errorf("Actions = %+v", result.Actions)
	}

	// The second request must carry the invocation result back.
	second := eng.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.Results) != 1 || last.Results[0].InvocationID != "inv-1" || last.Results[0].IsError {
		t.Errorf("fed-back results = %+v", last.Results)
	}

	// The action record lands on the persisted assistant message.
	history, _ := f.store.GetHistory(context.Background(), "s1", 0)
	assistant := history[len(history)-1]
	if assistant.Action == nil || assistant.Action.Intent != models.IntentBalance {
		t.Errorf("persisted action = %+v", assistant.Action)
	}
}

func TestProcessTurnExhaustsIterationBudget(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		toolResponse("inv-1", "get_balance", `{}`),
	}}
	f := newFixture(t, eng)
	f.linkWallet(t, "s1")

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "loop forever", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseExhausted {
		t.Errorf("Phase = %v", result.Phase)
	}
	if result.Reply != DefaultFallbackMessage {
		t.Errorf("Reply = %q", result.Reply)
	}
	if eng.calls != 3 {
		t.Errorf("engine calls = %d, want MaxIterations", eng.calls)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d", result.Iterations)
	}
}

func TestProcessTurnMissingScope(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		toolResponse("inv-1", "send_token", `{"to":"0x2222222222222222222222222222222222222222","token":"ETH","amount":1}`),
		textResponse("I wasn't able to do that."),
	}}
	f := newFixture(t, eng)
	f.linkWallet(t, "s1")

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "send 1 eth", models.PlatformAPI,
		auth.NewScopeSet("chat:write", "wallet:read"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseDone {
		t.Errorf("Phase = %v", result.Phase)
	}
	if len(result.Actions) != 0 {
		t.Errorf("unauthorized tool must not execute, Actions = %+v", result.Actions)
	}

	second := eng.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.Results) != 1 || !last.Results[0].IsError {
		t.Fatalf("results = %+v", last.Results)
	}
	if !strings.Contains(last.Results[0].Content, "wallet:send") {
		t.Errorf("error content = %q", last.Results[0].Content)
	}

	// Balance untouched.
	balances, _ := f.ledger.Balances(testWallet)
	if balances["ETH"] != 10 {
		t.Errorf("ETH = %v", balances["ETH"])
	}
}

func TestProcessTurnBlockedActionFeedsErrorBack(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		toolResponse("inv-1", "send_token", `{"to":"0x2222222222222222222222222222222222222222","token":"ETH","amount":1}`),
		textResponse("That transfer was blocked."),
	}}
	block := &blockingCheck{}
	f := newFixture(t, eng, block)
	f.linkWallet(t, "s1")

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "send it", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Reply != "That transfer was blocked." {
		t.Errorf("Reply = %q", result.Reply)
	}
	if len(result.Actions) != 1 || result.Actions[0].Success {
		t.Errorf("Actions = %+v", result.Actions)
	}

	second := eng.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !last.Results[0].IsError {
		t.Error("blocked action must come back as an error result")
	}

	balances, _ := f.ledger.Balances(testWallet)
	if balances["ETH"] != 10 {
		t.Error("blocked transfer must not move funds")
	}
}

type blockingCheck struct{}

func (blockingCheck) Name() string { return "always_block" }

func (blockingCheck) Evaluate(ctx context.Context, action *models.ParsedAction, turn *security.TurnContext) security.Result {
	return security.Block("not on my watch")
}

func TestProcessTurnUnknownToolRecovers(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		toolResponse("inv-1", "rm_rf_wallet", `{}`),
		textResponse("Sorry, I can't do that."),
	}}
	f := newFixture(t, eng)

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "do a thing", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseDone || result.Reply != "Sorry, I can't do that." {
		t.Errorf("result = %+v", result)
	}

	second := eng.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !last.Results[0].IsError || !strings.Contains(last.Results[0].Content, "unknown tool") {
		t.Errorf("results = %+v", last.Results)
	}
}

func TestProcessTurnEndTurnWithToolStopsEarly(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{
		{
			Fragments: []engine.Fragment{
				engine.TextFragment{Text: "Checking your balance now."},
				engine.ToolInvocation{ID: "inv-1", Name: "get_balance", Input: json.RawMessage(`{}`)},
			},
			StopReason: engine.StopEndTurn,
		},
	}}
	f := newFixture(t, eng)
	f.linkWallet(t, "s1")

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "balance?", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Phase != PhaseDone || result.Reply != "Checking your balance now." {
		t.Errorf("result = %+v", result)
	}
	// The tool still executed before the early stop.
	if len(result.Actions) != 1 || !result.Actions[0].Success {
		t.Errorf("Actions = %+v", result.Actions)
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d", eng.calls)
	}
}

func TestProcessTurnEngineFailureFallsBack(t *testing.T) {
	eng := &scriptedEngine{
		responses: []*engine.Response{textResponse("never reached")},
		errs:      []error{errors.New("upstream 500")},
	}
	f := newFixture(t, eng)

	result, err := f.loop.ProcessTurn(context.Background(), "s1", "hi", models.PlatformAPI, fullScopes())
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Reply != DefaultFallbackMessage {
		t.Errorf("Reply = %q", result.Reply)
	}

	// The fallback is still persisted so the history stays coherent.
	history, _ := f.store.GetHistory(context.Background(), "s1", 0)
	if len(history) != 2 || history[1].Content != DefaultFallbackMessage {
		t.Errorf("history = %+v", history)
	}
}

func TestProcessTurnScopesFilterToolSpecs(t *testing.T) {
	eng := &scriptedEngine{responses: []*engine.Response{textResponse("ok")}}
	f := newFixture(t, eng)

	_, err := f.loop.ProcessTurn(context.Background(), "s1", "hi", models.PlatformAPI,
		auth.NewScopeSet("wallet:read"))
	if err != nil {
		t.Fatal(err)
	}

	req := eng.requests[0]
	if len(req.Tools) != 1 || req.Tools[0].Name != "get_balance" {
		t.Errorf("tools offered = %+v", req.Tools)
	}
}
