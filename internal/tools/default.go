package tools

import (
	"encoding/json"

	"github.com/vaultline/vaultline/internal/auth"
	"github.com/vaultline/vaultline/pkg/models"
)

// DefaultCatalog builds the built-in wallet tool set. defaultChain fills the
// chain argument when the engine omits it.
func DefaultCatalog(defaultChain string) (*Catalog, error) {
	if defaultChain == "" {
		defaultChain = "base"
	}
	chainDefault := map[string]any{"chain": defaultChain}

	return NewCatalog(
		Descriptor{
			Name:        "get_balance",
			Description: "Look up the token balances held by the user's wallet.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain": {"type": "string", "description": "Chain to query."}
				},
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeWalletRead},
			Intent:         models.IntentBalance,
			Defaults:       chainDefault,
		},
		Descriptor{
			Name:        "send_token",
			Description: "Transfer a token from the user's wallet to another address.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"to": {"type": "string", "description": "Recipient address."},
					"token": {"type": "string", "description": "Token symbol or contract address."},
					"amount": {"type": "number", "exclusiveMinimum": 0},
					"chain": {"type": "string"}
				},
				"required": ["to", "token", "amount"],
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeWalletSend},
			Intent:         models.IntentSend,
			Defaults:       chainDefault,
		},
		Descriptor{
			Name:        "swap_tokens",
			Description: "Swap one token for another inside the user's wallet.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"token_in": {"type": "string", "description": "Token to sell."},
					"token_out": {"type": "string", "description": "Token to buy."},
					"amount": {"type": "number", "exclusiveMinimum": 0},
					"chain": {"type": "string"}
				},
				"required": ["token_in", "token_out", "amount"],
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeSwapExecute},
			Intent:         models.IntentSwap,
			Defaults:       chainDefault,
		},
		Descriptor{
			Name:        "claim_fees",
			Description: "Claim the creator fees accrued to the user's wallet.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain": {"type": "string"}
				},
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeClaimWrite},
			Intent:         models.IntentClaim,
			Defaults:       chainDefault,
		},
		Descriptor{
			Name:        "launch_token",
			Description: "Launch a new token with the user's wallet as creator.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"symbol": {"type": "string", "minLength": 1},
					"supply": {"type": "number", "exclusiveMinimum": 0},
					"chain": {"type": "string"}
				},
				"required": ["name", "symbol"],
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeLaunchWrite},
			Intent:         models.IntentLaunch,
			Defaults:       chainDefault,
		},
		Descriptor{
			Name:        "verify_creator",
			Description: "Issue a challenge that verifies the user controls an external handle.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"handle": {"type": "string", "minLength": 1, "description": "Social handle to verify."}
				},
				"required": ["handle"],
				"additionalProperties": false
			}`),
			RequiredScopes: []auth.Scope{auth.ScopeVerifyWrite},
			Intent:         models.IntentVerify,
		},
	)
}
