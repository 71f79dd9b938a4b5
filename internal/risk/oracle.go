// Package risk provides token-risk assessment for the security pipeline.
package risk

import "context"

// Level is the oracle's verdict for a token contract.
type Level string

const (
	LevelSafe    Level = "safe"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Assessment is the oracle's answer for one token on one chain.
type Assessment struct {
	Token   string   `json:"token"`
	Chain   string   `json:"chain"`
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons,omitempty"`
}

// Oracle assesses the risk of interacting with a token contract. Assess
// returns an error when the oracle cannot produce a verdict; how to treat
// that is the caller's policy, not the oracle's.
type Oracle interface {
	Assess(ctx context.Context, token, chain string) (*Assessment, error)
}
