// Package sessions provides conversation session storage and per-session
// write locking for the Vaultline agent.
package sessions

import (
	"context"
	"errors"

	"github.com/vaultline/vaultline/pkg/models"
)

var (
	// ErrSessionNotFound is returned when a session does not exist or has
	// been evicted by the idle TTL.
	ErrSessionNotFound = errors.New("sessions: session not found")

	// ErrLockTimeout is returned when acquiring a session lock times out.
	ErrLockTimeout = errors.New("sessions: lock acquisition timeout")
)

// Store is the session persistence interface. Message history is append-only;
// sessions disappear only through TTL eviction.
type Store interface {
	// GetOrCreate returns the session with the given ID, creating it if it
	// does not exist (or has expired).
	GetOrCreate(ctx context.Context, id string, platform models.Platform) (*models.Session, error)

	// Get returns the session with the given ID.
	Get(ctx context.Context, id string) (*models.Session, error)

	// SetWallet binds a wallet address to the session.
	SetWallet(ctx context.Context, id, address string) error

	// AppendMessage appends a message to the session's history.
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error

	// GetHistory returns up to limit most recent messages in chronological
	// order. limit <= 0 means no limit.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}
