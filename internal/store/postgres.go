package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parleylabs/parley/internal/domain"
)

// PostgresStore implements Repository using PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new Postgres-backed repository from a connection URL.
func NewPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(session_id, seq)
	);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetUser retrieves a user by external identifier.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, last_seen_at FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.CreatedAt, &user.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return &user, nil
}

// UpsertUser creates or refreshes a user record.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, created_at, last_seen_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		user.ID, user.CreatedAt, user.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// TouchUser updates the last_seen_at timestamp for a user.
func (s *PostgresStore) TouchUser(ctx context.Context, userID string, seen time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_seen_at = $1 WHERE id = $2`, seen, userID)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// CreateSession stores a new session.
func (s *PostgresStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, session.Title, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM sessions WHERE id = $1`, sessionID,
	).Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return &session, nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM sessions WHERE user_id = $1
		 ORDER BY updated_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// RenameSession updates a session's title.
func (s *PostgresStore) RenameSession(ctx context.Context, sessionID, title string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $1, updated_at = $2 WHERE id = $3`, title, now, sessionID)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its messages in one transaction.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	deleted := tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return deleted, nil
}

// AppendMessage stores a message with the next per-session seq and bumps the
// session's updated_at.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, session_id, seq, role, text, created_at)
		 VALUES ($1, $2, COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = $2), 0) + 1, $3, $4, $5)
		 RETURNING seq`,
		msg.ID, msg.SessionID, msg.Role, msg.Text, msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, msg.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, role, text, created_at
		 FROM messages WHERE session_id = $1
		 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// DeleteIdleSessions removes sessions without activity for idleFor, along
// with their messages.
func (s *PostgresStore) DeleteIdleSessions(ctx context.Context, idleFor time.Duration) (int64, int64, error) {
	threshold := time.Now().Add(-idleFor)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	msgTag, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < $1)`, threshold)
	if err != nil {
		return 0, 0, fmt.Errorf("delete idle messages: %w", err)
	}

	sessTag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, threshold)
	if err != nil {
		return 0, 0, fmt.Errorf("delete idle sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}

	return sessTag.RowsAffected(), msgTag.RowsAffected(), nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ensure PostgresStore implements Repository at compile time.
var _ Repository = (*PostgresStore)(nil)
