package domain

import (
	"time"
)

// Message roles. Transcripts hold what the person typed and what the model
// answered; the store does not enforce strict alternation.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message is a single transcript entry. Messages are append-only: once
// written they are never edited or individually deleted. Seq is assigned by
// the store and preserves insertion order within a session, so listing by
// Seq equals listing by timestamp.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRole reports whether role is one of the transcript roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleBot
}
