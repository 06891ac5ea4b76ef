package domain

import (
	"time"
)

// DefaultSessionTitle is assigned when a session is created without a title.
const DefaultSessionTitle = "New Chat"

// Session is one conversation thread. A session belongs to exactly one user
// and owns its messages: deleting a session removes the transcript with it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
