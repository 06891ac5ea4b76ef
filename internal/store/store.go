// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/parleylabs/parley/internal/domain"
)

// Repository defines the interface for persisting users, sessions and
// messages. Lookup methods return (nil, nil) when the record does not exist.
type Repository interface {
	// GetUser retrieves a user by external identifier.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or refreshes a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// TouchUser updates the last_seen_at timestamp for a user.
	TouchUser(ctx context.Context, userID string, seen time.Time) error

	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns a user's sessions, most recently active first.
	ListSessions(ctx context.Context, userID string) ([]*domain.Session, error)

	// RenameSession updates a session's title.
	RenameSession(ctx context.Context, sessionID, title string, now time.Time) error

	// DeleteSession removes a session and all of its messages in one
	// transaction, returning the number of messages removed.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)

	// AppendMessage stores a message, assigning the next per-session Seq,
	// and marks the session active. Fills msg.Seq on return.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a session's messages in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// DeleteIdleSessions removes sessions without activity for idleFor,
	// cascading their messages. Returns (sessions, messages) deleted.
	DeleteIdleSessions(ctx context.Context, idleFor time.Duration) (int64, int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
