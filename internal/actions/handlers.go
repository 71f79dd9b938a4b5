package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vaultline/vaultline/internal/wallet"
	"github.com/vaultline/vaultline/pkg/models"
)

// Handlers implements the built-in intents against the custodial ledger.
type Handlers struct {
	ledger       *wallet.Ledger
	defaultChain string
}

// NewHandlers creates the handler set.
func NewHandlers(ledger *wallet.Ledger, defaultChain string) *Handlers {
	if defaultChain == "" {
		defaultChain = "base"
	}
	return &Handlers{ledger: ledger, defaultChain: defaultChain}
}

// RegisterAll binds every built-in handler on the router.
func (h *Handlers) RegisterAll(router *Router) {
	router.Register(models.IntentBalance, h.Balance)
	router.Register(models.IntentSend, h.Send)
	router.Register(models.IntentSwap, h.Swap)
	router.Register(models.IntentClaim, h.Claim)
	router.Register(models.IntentLaunch, h.Launch)
	router.Register(models.IntentVerify, h.Verify)
}

func paramString(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func paramFloat(params map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := params[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// Balance reports the session wallet's holdings.
func (h *Handlers) Balance(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	balances, err := h.ledger.Balances(req.Wallet)
	if err != nil {
		return models.Failure(fmt.Sprintf("Could not read balances: %v", err)), nil
	}
	if len(balances) == 0 {
		return &models.ActionResult{
			Success: true,
			Message: "Your wallet is empty.",
			Data:    map[string]any{"balances": balances},
		}, nil
	}

	symbols := make([]string, 0, len(balances))
	for symbol := range balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		parts = append(parts, fmt.Sprintf("%.6g %s", balances[symbol], symbol))
	}

	return &models.ActionResult{
		Success: true,
		Message: "You hold " + strings.Join(parts, ", ") + ".",
		Data:    map[string]any{"balances": balances},
	}, nil
}

// Send transfers a token to another address.
func (h *Handlers) Send(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	to := paramString(req.Params, "to", "recipient", "destination")
	token := paramString(req.Params, "token", "symbol")
	amount, hasAmount := paramFloat(req.Params, "amount")

	switch {
	case to == "":
		return models.Failure("I need a recipient address for the transfer."), nil
	case token == "":
		return models.Failure("I need to know which token to send."), nil
	case !hasAmount || amount <= 0:
		return models.Failure("I need a positive amount to send."), nil
	}

	if err := h.ledger.Send(req.Wallet, to, token, amount); err != nil {
		return models.Failure(fmt.Sprintf("Transfer failed: %v", err)), nil
	}

	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Sent %.6g %s to %s.", amount, strings.ToUpper(token), to),
		Data: map[string]any{
			"to":     to,
			"token":  strings.ToUpper(token),
			"amount": amount,
		},
	}, nil
}

// Swap exchanges one token for another.
func (h *Handlers) Swap(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	fromToken := paramString(req.Params, "token_in", "from_token", "from")
	toToken := paramString(req.Params, "token_out", "to_token", "to")
	amount, hasAmount := paramFloat(req.Params, "amount")

	switch {
	case fromToken == "" || toToken == "":
		return models.Failure("I need both sides of the swap."), nil
	case !hasAmount || amount <= 0:
		return models.Failure("I need a positive amount to swap."), nil
	}

	quote, err := h.ledger.Swap(req.Wallet, fromToken, toToken, amount)
	if err != nil {
		return models.Failure(fmt.Sprintf("Swap failed: %v", err)), nil
	}

	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Swapped %.6g %s for %.6g %s (fee %.6g %s).",
			quote.AmountIn, quote.FromSymbol, quote.AmountOut, quote.ToSymbol, quote.Fee, quote.ToSymbol),
		Data: map[string]any{
			"token_in":   quote.FromSymbol,
			"token_out":  quote.ToSymbol,
			"amount_in":  quote.AmountIn,
			"amount_out": quote.AmountOut,
			"fee":        quote.Fee,
		},
	}, nil
}

// Claim collects accrued creator fees into the wallet.
func (h *Handlers) Claim(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	claimed, err := h.ledger.ClaimFees(req.Wallet)
	if err != nil {
		if err == wallet.ErrNothingToClaim {
			return models.Failure("You have no creator fees to claim right now."), nil
		}
		return models.Failure(fmt.Sprintf("Claim failed: %v", err)), nil
	}

	symbols := make([]string, 0, len(claimed))
	for symbol := range claimed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		parts = append(parts, fmt.Sprintf("%.6g %s", claimed[symbol], symbol))
	}

	return &models.ActionResult{
		Success: true,
		Message: "Claimed " + strings.Join(parts, ", ") + " in creator fees.",
		Data:    map[string]any{"claimed": claimed},
	}, nil
}

// Launch creates a new token with the session wallet as creator.
func (h *Handlers) Launch(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	name := paramString(req.Params, "name")
	symbol := paramString(req.Params, "symbol", "ticker")
	chain := paramString(req.Params, "chain")
	if chain == "" {
		chain = h.defaultChain
	}
	supply, hasSupply := paramFloat(req.Params, "supply")
	if !hasSupply {
		supply = 1_000_000_000
	}

	if name == "" || symbol == "" {
		return models.Failure("I need a token name and symbol to launch."), nil
	}
	if existing, ok := h.ledger.Launched(symbol); ok {
		return models.Failure(fmt.Sprintf("%s is already taken by %s.", existing.Symbol, existing.Name)), nil
	}

	token, err := h.ledger.Launch(req.Wallet, name, symbol, supply, chain)
	if err != nil {
		return models.Failure(fmt.Sprintf("Launch failed: %v", err)), nil
	}

	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Launched %s (%s) on %s with a supply of %.6g.",
			token.Name, token.Symbol, token.Chain, token.Supply),
		Data: map[string]any{
			"name":   token.Name,
			"symbol": token.Symbol,
			"chain":  token.Chain,
			"supply": token.Supply,
		},
	}, nil
}

// Verify issues a creator-verification challenge for an external handle.
func (h *Handlers) Verify(ctx context.Context, req *Request) (*models.ActionResult, error) {
	if req.Wallet == "" {
		return models.Failure("No wallet is linked to this session yet."), nil
	}

	handle := paramString(req.Params, "handle", "username")
	if handle == "" {
		return models.Failure("I need the handle you want to verify."), nil
	}

	challenge, err := h.ledger.IssueVerification(req.Wallet, handle)
	if err != nil {
		return models.Failure(fmt.Sprintf("Verification failed: %v", err)), nil
	}

	return &models.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Post the code %s from %s to finish verification. It expires in 24 hours.",
			challenge.Code, challenge.Handle),
		Data: map[string]any{
			"code":       challenge.Code,
			"handle":     challenge.Handle,
			"expires_at": challenge.ExpiresAt,
		},
	}, nil
}
