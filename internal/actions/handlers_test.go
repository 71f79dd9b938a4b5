package actions

import (
	"context"
	"strings"
	"testing"

	"github.com/vaultline/vaultline/internal/wallet"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	otherAddr  = "0x2222222222222222222222222222222222222222"
)

func newTestHandlers(t *testing.T) (*Handlers, *wallet.Ledger) {
	t.Helper()
	ledger := wallet.NewLedger()
	if err := ledger.Credit(testWallet, "ETH", 2); err != nil {
		t.Fatal(err)
	}
	return NewHandlers(ledger, "base"), ledger
}

func TestBalanceHandler(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result, err := handlers.Balance(context.Background(), &Request{Wallet: testWallet})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Message, "ETH") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestBalanceHandlerNoWallet(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result, err := handlers.Balance(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if result.Success {
		t.Error("missing wallet must fail")
	}
}

func TestSendHandler(t *testing.T) {
	handlers, ledger := newTestHandlers(t)

	result, err := handlers.Send(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"to": otherAddr, "token": "ETH", "amount": 0.5},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	balances, _ := ledger.Balances(otherAddr)
	if balances["ETH"] != 0.5 {
		t.Errorf("recipient balance = %v", balances["ETH"])
	}
}

func TestSendHandlerValidation(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing recipient", map[string]any{"token": "ETH", "amount": 1.0}},
		{"missing token", map[string]any{"to": otherAddr, "amount": 1.0}},
		{"missing amount", map[string]any{"to": otherAddr, "token": "ETH"}},
		{"negative amount", map[string]any{"to": otherAddr, "token": "ETH", "amount": -1.0}},
		{"malformed address", map[string]any{"to": "0xzz", "token": "ETH", "amount": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handlers.Send(context.Background(), &Request{
				Wallet: testWallet,
				Params: tt.params,
			})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if result.Success {
				t.Errorf("params %v must fail", tt.params)
			}
		})
	}
}

func TestSwapHandler(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result, err := handlers.Swap(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"token_in": "ETH", "token_out": "USDC", "amount": 1.0},
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["amount_out"].(float64) <= 0 {
		t.Errorf("amount_out = %v", result.Data["amount_out"])
	}
}

func TestSwapHandlerInsufficientFunds(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result, err := handlers.Swap(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"token_in": "ETH", "token_out": "USDC", "amount": 100.0},
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if result.Success {
		t.Error("overdraft swap must fail")
	}
}

func TestClaimHandler(t *testing.T) {
	handlers, ledger := newTestHandlers(t)

	// Nothing accrued yet.
	result, err := handlers.Claim(context.Background(), &Request{Wallet: testWallet})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("empty claim must fail")
	}

	if err := ledger.AccrueFees(testWallet, "ETH", 0.1); err != nil {
		t.Fatal(err)
	}
	result, err = handlers.Claim(context.Background(), &Request{Wallet: testWallet})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Message, "ETH") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestLaunchHandler(t *testing.T) {
	handlers, ledger := newTestHandlers(t)

	result, err := handlers.Launch(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"name": "Vault Coin", "symbol": "VAULT"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["chain"] != "base" {
		t.Errorf("chain = %v, want default", result.Data["chain"])
	}

	token, ok := ledger.Launched("VAULT")
	if !ok {
		t.Fatal("token not registered")
	}
	if token.Supply != 1_000_000_000 {
		t.Errorf("default supply = %v", token.Supply)
	}

	// Relaunching a taken symbol fails without touching the registry.
	result, err = handlers.Launch(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"name": "Other Coin", "symbol": "vault"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("duplicate symbol must fail")
	}
	if !strings.Contains(result.Message, "already taken") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestVerifyHandler(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	result, err := handlers.Verify(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{"handle": "@creator"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["code"] == "" {
		t.Error("challenge code missing")
	}

	result, err = handlers.Verify(context.Background(), &Request{
		Wallet: testWallet,
		Params: map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("missing handle must fail")
	}
}
