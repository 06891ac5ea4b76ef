package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Mutex for multi-statement writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by external identifier.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT id, created_at, last_seen_at FROM users WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var createdAt, lastSeen int64

	err := row.Scan(&user.ID, &createdAt, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.LastSeenAt = time.Unix(lastSeen, 0)

	return &user, nil
}

// UpsertUser creates or refreshes a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, created_at, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.CreatedAt.Unix(), user.LastSeenAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// TouchUser updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) TouchUser(ctx context.Context, userID string, seen time.Time) error {
	query := `UPDATE users SET last_seen_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, seen.Unix(), userID)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchUser affected 0 rows", "user_id", userID)
	}

	return nil
}

// CreateSession stores a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (id, user_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.Title,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.Session
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.UserID, &session.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM sessions WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		var session domain.Session
		var createdAt, updatedAt int64

		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		session.CreatedAt = time.Unix(createdAt, 0)
		session.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// RenameSession updates a session's title.
func (s *SQLiteStore) RenameSession(ctx context.Context, sessionID, title string, now time.Time) error {
	query := `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, title, now.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("RenameSession affected 0 rows", "session_id", sessionID)
	}

	return nil
}

// DeleteSession removes a session and its messages.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		deleted, err := s.deleteSessionOnce(ctx, sessionID)
		if err == nil {
			return deleted, nil
		}

		if shared.IsSQLiteConflictError(err) {
			if i < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
				slog.Debug("DeleteSession failed with SQLITE_BUSY, retrying",
					"session_id", sessionID,
					"attempt", i+1,
					"delay", delay)
				time.Sleep(delay)
				continue
			}
		}

		// Non-retryable error or max retries exceeded
		return 0, fmt.Errorf("failed to delete session %s after %d attempts: %w", sessionID, maxRetries, err)
	}

	return 0, nil
}

// deleteSessionOnce performs a single transactional delete of a session and
// its messages.
func (s *SQLiteStore) deleteSessionOnce(ctx context.Context, sessionID string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return deleted, nil
}

// AppendMessage stores a message with the next per-session seq and bumps the
// session's updated_at so recency ordering and retention see the activity.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, msg.SessionID)
	if err := row.Scan(&msg.Seq); err != nil {
		return fmt.Errorf("next message seq: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, seq, role, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Seq, msg.Role, msg.Text, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.CreatedAt.Unix(), msg.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	query := `
		SELECT id, session_id, seq, role, text, created_at
		FROM messages WHERE session_id = ?
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// DeleteIdleSessions removes sessions without activity for idleFor, along
// with their messages.
func (s *SQLiteStore) DeleteIdleSessions(ctx context.Context, idleFor time.Duration) (int64, int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	threshold := time.Now().Add(-idleFor).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	msgRes, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, threshold)
	if err != nil {
		return 0, 0, fmt.Errorf("delete idle messages: %w", err)
	}
	messagesDeleted, err := msgRes.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("idle messages rows affected: %w", err)
	}

	sessRes, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	sessionsDeleted, err := sessRes.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("idle sessions rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}

	return sessionsDeleted, messagesDeleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
