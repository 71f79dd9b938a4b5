// Package wallet implements the custodial ledger behind the action handlers:
// holdings, transfers, swap quotes, accrued creator fees, the launch
// registry, and creator verification challenges.
package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrUnknownToken is returned for tokens the ledger has no price for.
	ErrUnknownToken = errors.New("wallet: unknown token")

	// ErrInvalidAddress is returned for malformed wallet addresses.
	ErrInvalidAddress = errors.New("wallet: invalid address")

	// ErrNothingToClaim is returned when no creator fees have accrued.
	ErrNothingToClaim = errors.New("wallet: nothing to claim")
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// swapFeeRate is the flat fee taken from every swap's output.
const swapFeeRate = 0.003

// LaunchedToken is one entry in the launch registry.
type LaunchedToken struct {
	Symbol    string
	Name      string
	Creator   string
	Supply    float64
	Chain     string
	CreatedAt time.Time
}

// VerificationChallenge is an issued creator-verification challenge.
type VerificationChallenge struct {
	Code      string
	Wallet    string
	Handle    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Ledger is an in-memory custodial ledger.
//
// Thread Safety:
// Ledger is safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	holdings   map[string]map[string]float64 // address -> symbol -> amount
	fees       map[string]map[string]float64 // address -> symbol -> accrued
	launches   map[string]LaunchedToken      // symbol -> token
	challenges map[string]VerificationChallenge
	prices     map[string]float64 // symbol -> USD price
	now        func() time.Time
}

// NewLedger creates a ledger with a small built-in price table.
func NewLedger() *Ledger {
	return &Ledger{
		holdings:   map[string]map[string]float64{},
		fees:       map[string]map[string]float64{},
		launches:   map[string]LaunchedToken{},
		challenges: map[string]VerificationChallenge{},
		prices: map[string]float64{
			"ETH":  3000,
			"WETH": 3000,
			"USDC": 1,
			"DAI":  1,
		},
		now: time.Now,
	}
}

// NormalizeAddress validates an address and lowercases it to the ledger's
// canonical form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !addressRe.MatchString(address) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return strings.ToLower(address), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Credit adds funds to an address. Used for seeding and deposits.
func (l *Ledger) Credit(address, symbol string, amount float64) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return errors.New("wallet: amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, normalizeSymbol(symbol), amount)
	return nil
}

func (l *Ledger) credit(addr, symbol string, amount float64) {
	if l.holdings[addr] == nil {
		l.holdings[addr] = map[string]float64{}
	}
	l.holdings[addr][symbol] += amount
}

// Balances returns a copy of the holdings for an address.
func (l *Ledger) Balances(address string) (map[string]float64, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]float64, len(l.holdings[addr]))
	for symbol, amount := range l.holdings[addr] {
		out[symbol] = amount
	}
	return out, nil
}

// Send moves tokens between addresses.
func (l *Ledger) Send(from, to, symbol string, amount float64) error {
	fromAddr, err := NormalizeAddress(from)
	if err != nil {
		return err
	}
	toAddr, err := NormalizeAddress(to)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return errors.New("wallet: amount must be positive")
	}
	sym := normalizeSymbol(symbol)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holdings[fromAddr][sym] < amount {
		return fmt.Errorf("%w: %s balance %.6f, need %.6f",
			ErrInsufficientFunds, sym, l.holdings[fromAddr][sym], amount)
	}
	l.holdings[fromAddr][sym] -= amount
	l.credit(toAddr, sym, amount)
	return nil
}

// SwapQuote is the result of a swap: output amount after the flat fee.
type SwapQuote struct {
	FromSymbol string
	ToSymbol   string
	AmountIn   float64
	AmountOut  float64
	Fee        float64
}

// Swap exchanges one token for another at the ledger's price table, taking
// the flat fee from the output.
func (l *Ledger) Swap(address, fromSymbol, toSymbol string, amountIn float64) (*SwapQuote, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if amountIn <= 0 {
		return nil, errors.New("wallet: amount must be positive")
	}
	from := normalizeSymbol(fromSymbol)
	to := normalizeSymbol(toSymbol)

	l.mu.Lock()
	defer l.mu.Unlock()

	priceFrom, ok := l.prices[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, from)
	}
	priceTo, ok := l.prices[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, to)
	}
	if l.holdings[addr][from] < amountIn {
		return nil, fmt.Errorf("%w: %s balance %.6f, need %.6f",
			ErrInsufficientFunds, from, l.holdings[addr][from], amountIn)
	}

	gross := amountIn * priceFrom / priceTo
	fee := gross * swapFeeRate
	out := gross - fee

	l.holdings[addr][from] -= amountIn
	l.credit(addr, to, out)
	l.routeSwapFee(from, to, fee)

	return &SwapQuote{
		FromSymbol: from,
		ToSymbol:   to,
		AmountIn:   amountIn,
		AmountOut:  out,
		Fee:        fee,
	}, nil
}

// routeSwapFee accrues a swap fee, denominated in the output symbol, to the
// creator of the launched token on either side of the pair. Fees on pairs
// with no launched token stay with the house.
func (l *Ledger) routeSwapFee(from, to string, fee float64) {
	if fee <= 0 {
		return
	}
	if token, ok := l.launches[to]; ok {
		l.accrue(token.Creator, to, fee)
		return
	}
	if token, ok := l.launches[from]; ok {
		l.accrue(token.Creator, to, fee)
	}
}

func (l *Ledger) accrue(addr, symbol string, amount float64) {
	if l.fees[addr] == nil {
		l.fees[addr] = map[string]float64{}
	}
	l.fees[addr][symbol] += amount
}

// AccrueFees records creator fees owed to an address.
func (l *Ledger) AccrueFees(address, symbol string, amount float64) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accrue(addr, normalizeSymbol(symbol), amount)
	return nil
}

// ClaimFees moves all accrued creator fees into the address's holdings and
// returns what was claimed.
func (l *Ledger) ClaimFees(address string) (map[string]float64, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accrued := l.fees[addr]
	if len(accrued) == 0 {
		return nil, ErrNothingToClaim
	}
	claimed := make(map[string]float64, len(accrued))
	for symbol, amount := range accrued {
		if amount <= 0 {
			continue
		}
		claimed[symbol] = amount
		l.credit(addr, symbol, amount)
	}
	delete(l.fees, addr)
	if len(claimed) == 0 {
		return nil, ErrNothingToClaim
	}
	return claimed, nil
}

// Launch registers a new token, credits the full supply to the creator, and
// prices it at a nominal launch price.
func (l *Ledger) Launch(creator, name, symbol string, supply float64, chain string) (*LaunchedToken, error) {
	addr, err := NormalizeAddress(creator)
	if err != nil {
		return nil, err
	}
	sym := normalizeSymbol(symbol)
	if sym == "" || strings.TrimSpace(name) == "" {
		return nil, errors.New("wallet: token name and symbol are required")
	}
	if supply <= 0 {
		return nil, errors.New("wallet: supply must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.launches[sym]; exists {
		return nil, fmt.Errorf("wallet: token %s already launched", sym)
	}

	token := LaunchedToken{
		Symbol:    sym,
		Name:      strings.TrimSpace(name),
		Creator:   addr,
		Supply:    supply,
		Chain:     chain,
		CreatedAt: l.now(),
	}
	l.launches[sym] = token
	l.prices[sym] = 0.0001
	l.credit(addr, sym, supply)
	return &token, nil
}

// Launched returns the launch registry entry for a symbol.
func (l *Ledger) Launched(symbol string) (*LaunchedToken, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	token, ok := l.launches[normalizeSymbol(symbol)]
	if !ok {
		return nil, false
	}
	return &token, true
}

// IssueVerification creates a creator-verification challenge binding a
// wallet to an external handle. The code must be posted from the handle to
// complete verification out of band.
func (l *Ledger) IssueVerification(address, handle string) (*VerificationChallenge, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(handle) == "" {
		return nil, errors.New("wallet: handle is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	challenge := VerificationChallenge{
		Code:      "vl-verify-" + uuid.NewString()[:8],
		Wallet:    addr,
		Handle:    strings.TrimSpace(handle),
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	l.challenges[challenge.Code] = challenge
	return &challenge, nil
}
