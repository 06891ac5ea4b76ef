// Package domain contains core domain types for the parley chat service.
package domain

import (
	"time"
)

// User is an account keyed by the caller-supplied external identifier.
// Users are created lazily the first time an identified request arrives;
// there is no registration flow beyond that.
type User struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
