package wallet

import (
	"errors"
	"math"
	"testing"
	"time"
)

const (
	addrAlice = "0x1111111111111111111111111111111111111111"
	addrBob   = "0x2222222222222222222222222222222222222222"
)

func TestCreditAndBalances(t *testing.T) {
	ledger := NewLedger()

	if err := ledger.Credit(addrAlice, "eth", 2.5); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := ledger.Credit(addrAlice, "USDC", 100); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	balances, err := ledger.Balances(addrAlice)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if balances["ETH"] != 2.5 {
		t.Errorf("ETH balance = %v", balances["ETH"])
	}
	if balances["USDC"] != 100 {
		t.Errorf("USDC balance = %v", balances["USDC"])
	}

	// Returned map is a copy.
	balances["ETH"] = 0
	again, _ := ledger.Balances(addrAlice)
	if again["ETH"] != 2.5 {
		t.Error("Balances must return a copy")
	}
}

func TestBalancesRejectsMalformedAddress(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.Balances("0xnot-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestSend(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Credit(addrAlice, "ETH", 1); err != nil {
		t.Fatal(err)
	}

	if err := ledger.Send(addrAlice, addrBob, "ETH", 0.4); err != nil {
		t.Fatalf("Send: %v", err)
	}

	from, _ := ledger.Balances(addrAlice)
	to, _ := ledger.Balances(addrBob)
	if from["ETH"] != 0.6 {
		t.Errorf("sender balance = %v", from["ETH"])
	}
	if to["ETH"] != 0.4 {
		t.Errorf("recipient balance = %v", to["ETH"])
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Credit(addrAlice, "ETH", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Send(addrAlice, addrBob, "ETH", 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	balances, _ := ledger.Balances(addrAlice)
	if balances["ETH"] != 0.1 {
		t.Error("failed send must not change balances")
	}
}

func TestSwap(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Credit(addrAlice, "ETH", 1); err != nil {
		t.Fatal(err)
	}

	quote, err := ledger.Swap(addrAlice, "ETH", "USDC", 1)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}

	// 1 ETH at $3000 into USDC at $1, minus the 0.3% fee.
	want := 3000 * (1 - swapFeeRate)
	if math.Abs(quote.AmountOut-want) > 1e-9 {
		t.Errorf("AmountOut = %v, want %v", quote.AmountOut, want)
	}
	if math.Abs(quote.Fee-3000*swapFeeRate) > 1e-9 {
		t.Errorf("Fee = %v", quote.Fee)
	}

	balances, _ := ledger.Balances(addrAlice)
	if balances["ETH"] != 0 {
		t.Errorf("ETH after swap = %v", balances["ETH"])
	}
	if math.Abs(balances["USDC"]-want) > 1e-9 {
		t.Errorf("USDC after swap = %v", balances["USDC"])
	}
}

func TestSwapUnknownToken(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Credit(addrAlice, "ETH", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Swap(addrAlice, "ETH", "NOPE", 1); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestSwapRoutesFeeToLaunchCreator(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.Launch(addrAlice, "Vault Coin", "VAULT", 1_000_000, "base"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Send(addrAlice, addrBob, "VAULT", 10_000); err != nil {
		t.Fatal(err)
	}

	quote, err := ledger.Swap(addrBob, "VAULT", "USDC", 10_000)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}

	// The sell-side fee accrues to the creator in the output token.
	claimed, err := ledger.ClaimFees(addrAlice)
	if err != nil {
		t.Fatalf("ClaimFees: %v", err)
	}
	if math.Abs(claimed["USDC"]-quote.Fee) > 1e-9 {
		t.Errorf("claimed = %v, want fee %v", claimed, quote.Fee)
	}

	// Buying the launched token accrues the fee in that token.
	buy, err := ledger.Swap(addrBob, "USDC", "VAULT", 1)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	claimed, err = ledger.ClaimFees(addrAlice)
	if err != nil {
		t.Fatalf("ClaimFees: %v", err)
	}
	if math.Abs(claimed["VAULT"]-buy.Fee) > 1e-9 {
		t.Errorf("claimed = %v, want fee %v", claimed, buy.Fee)
	}
}

func TestSwapWithoutLaunchedTokenAccruesNothing(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Credit(addrAlice, "ETH", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Swap(addrAlice, "ETH", "USDC", 1); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if _, err := ledger.ClaimFees(addrAlice); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("err = %v, want ErrNothingToClaim", err)
	}
}

func TestClaimFees(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.AccrueFees(addrAlice, "ETH", 0.05); err != nil {
		t.Fatal(err)
	}
	if err := ledger.AccrueFees(addrAlice, "ETH", 0.02); err != nil {
		t.Fatal(err)
	}

	claimed, err := ledger.ClaimFees(addrAlice)
	if err != nil {
		t.Fatalf("ClaimFees: %v", err)
	}
	if math.Abs(claimed["ETH"]-0.07) > 1e-9 {
		t.Errorf("claimed = %v", claimed)
	}

	balances, _ := ledger.Balances(addrAlice)
	if math.Abs(balances["ETH"]-0.07) > 1e-9 {
		t.Errorf("balance after claim = %v", balances["ETH"])
	}

	// Second claim finds nothing.
	if _, err := ledger.ClaimFees(addrAlice); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("second claim: err = %v", err)
	}
}

func TestLaunch(t *testing.T) {
	ledger := NewLedger()
	ledger.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	token, err := ledger.Launch(addrAlice, "Vault Coin", "vault", 1_000_000, "base")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if token.Symbol != "VAULT" || token.Creator != addrAlice {
		t.Errorf("token = %+v", token)
	}

	balances, _ := ledger.Balances(addrAlice)
	if balances["VAULT"] != 1_000_000 {
		t.Errorf("creator supply = %v", balances["VAULT"])
	}

	if _, ok := ledger.Launched("VAULT"); !ok {
		t.Error("launched token missing from registry")
	}

	// The new token is priced and swappable.
	if _, err := ledger.Swap(addrAlice, "VAULT", "USDC", 100); err != nil {
		t.Errorf("swap of launched token: %v", err)
	}

	// Duplicate symbol is rejected.
	if _, err := ledger.Launch(addrBob, "Other", "VAULT", 10, "base"); err == nil {
		t.Error("duplicate launch must fail")
	}
}

func TestIssueVerification(t *testing.T) {
	ledger := NewLedger()

	challenge, err := ledger.IssueVerification(addrAlice, "@creator")
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if challenge.Code == "" || challenge.Wallet != addrAlice || challenge.Handle != "@creator" {
		t.Errorf("challenge = %+v", challenge)
	}
	if !challenge.ExpiresAt.After(challenge.IssuedAt) {
		t.Error("challenge must expire after issuance")
	}

	if _, err := ledger.IssueVerification(addrAlice, "  "); err == nil {
		t.Error("blank handle must be rejected")
	}
}
