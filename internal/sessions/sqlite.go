package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vaultline/vaultline/pkg/models"
)

// SQLiteStore implements the Store interface on SQLite so sessions survive
// process restarts. The same idle TTL as the in-memory store is enforced on
// read and by a periodic sweep.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	// Prepared statements for the hot path
	stmtGetSession    *sql.Stmt
	stmtInsertSession *sql.Stmt
	stmtSetWallet     *sql.Stmt
	stmtTouchSession  *sql.Stmt
	stmtInsertMessage *sql.Stmt
	stmtGetHistory    *sql.Stmt
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	wallet_address TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	action TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// NewSQLiteStore opens (or creates) the database at path and prepares the
// statement set.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	store, err := NewSQLiteStoreWithDB(db, ttl)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing connection. The schema must already
// exist. Used by tests.
func NewSQLiteStoreWithDB(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	store := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := store.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, platform, wallet_address, created_at, updated_at
		FROM sessions WHERE id = ? AND updated_at > ?
	`)
	if err != nil {
		return err
	}

	s.stmtInsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, platform, wallet_address, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
	`)
	if err != nil {
		return err
	}

	s.stmtSetWallet, err = s.db.Prepare(`
		UPDATE sessions SET wallet_address = ?, updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtTouchSession, err = s.db.Prepare(`
		UPDATE sessions SET updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtInsertMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.stmtGetHistory, err = s.db.Prepare(`
		SELECT id, session_id, role, content, action, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err != nil {
		return err
	}

	return nil
}

// cutoff is the oldest updated_at a live session may carry.
func (s *SQLiteStore) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.ttl)
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string, platform models.Platform) (*models.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	session, err := s.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	// Replace any expired row before inserting the fresh session.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear expired session: %w", err)
	}

	now := s.now()
	if _, err := s.stmtInsertSession.ExecContext(ctx, id, string(platform), now, now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &models.Session{
		ID:        id,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var (
		session  models.Session
		platform string
	)
	err := s.stmtGetSession.QueryRowContext(ctx, id, s.cutoff()).Scan(
		&session.ID, &platform, &session.WalletAddress,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Platform = models.Platform(platform)
	return &session, nil
}

func (s *SQLiteStore) SetWallet(ctx context.Context, id, address string) error {
	result, err := s.stmtSetWallet.ExecContext(ctx, address, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to set wallet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var action any
	if msg.Action != nil {
		payload, err := json.Marshal(msg.Action)
		if err != nil {
			return fmt.Errorf("failed to encode action: %w", err)
		}
		action = string(payload)
	}

	if _, err := s.stmtInsertMessage.ExecContext(ctx, id, sessionID, string(msg.Role), msg.Content, action, createdAt); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	result, err := s.stmtTouchSession.ExecContext(ctx, s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as unlimited.
		limit = -1
	}
	rows, err := s.stmtGetHistory.QueryContext(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			msg    models.Message
			role   string
			action sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &action, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if action.Valid && action.String != "" {
			var record models.ActionRecord
			if err := json.Unmarshal([]byte(action.String), &record); err != nil {
				return nil, fmt.Errorf("failed to decode action: %w", err)
			}
			msg.Action = &record
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query returns newest first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Sweep deletes sessions whose idle time exceeds the TTL, along with their
// message history. Returns the number of sessions removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.cutoff()
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE updated_at <= ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to sweep messages: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *SQLiteStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Sweep(ctx)
			}
		}
	}()
}

// Close closes the prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		s.stmtGetSession, s.stmtInsertSession, s.stmtSetWallet,
		s.stmtTouchSession, s.stmtInsertMessage, s.stmtGetHistory,
	} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
