// Package auth implements credential resolution and the capability scope
// model that bounds what a caller may do.
package auth

// Scope is one named capability. Tools declare the scopes they require;
// callers carry the scopes their credential grants.
type Scope string

const (
	ScopeChatWrite   Scope = "chat:write"
	ScopeWalletRead  Scope = "wallet:read"
	ScopeWalletSend  Scope = "wallet:send"
	ScopeSwapExecute Scope = "swap:execute"
	ScopeClaimWrite  Scope = "claim:write"
	ScopeLaunchRead  Scope = "launch:read"
	ScopeLaunchWrite Scope = "launch:write"
	ScopeVerifyWrite Scope = "verify:write"
)

// AllScopes lists every scope the system knows, in a stable order.
var AllScopes = []Scope{
	ScopeChatWrite,
	ScopeWalletRead,
	ScopeWalletSend,
	ScopeSwapExecute,
	ScopeClaimWrite,
	ScopeLaunchRead,
	ScopeLaunchWrite,
	ScopeVerifyWrite,
}

// ScopeSet is an immutable set of granted scopes.
type ScopeSet struct {
	scopes map[Scope]bool
}

// NewScopeSet builds a set from scope strings. Unknown strings are kept;
// they simply never match a requirement.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(map[Scope]bool, len(scopes))
	for _, s := range scopes {
		set[Scope(s)] = true
	}
	return ScopeSet{scopes: set}
}

// Has reports whether the set contains the scope.
func (s ScopeSet) Has(scope Scope) bool {
	return s.scopes[scope]
}

// Authorized reports whether every required scope is present. An empty
// requirement is always authorized.
func (s ScopeSet) Authorized(required []Scope) bool {
	for _, scope := range required {
		if !s.scopes[scope] {
			return false
		}
	}
	return true
}

// Missing returns the required scopes the set lacks, in requirement order.
func (s ScopeSet) Missing(required []Scope) []Scope {
	var missing []Scope
	for _, scope := range required {
		if !s.scopes[scope] {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Strings returns the granted scopes in stable order.
func (s ScopeSet) Strings() []string {
	var out []string
	for _, scope := range AllScopes {
		if s.scopes[scope] {
			out = append(out, string(scope))
		}
	}
	return out
}
