// Package identity resolves the caller-supplied user identity on every request.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/store"
)

// UserHeaderName carries the external user identifier. Every API route
// requires it; a request without it is rejected before any handler runs.
const UserHeaderName = "X-Parley-User-ID"

type contextKey int

const userIDKey contextKey = iota

// userIDPattern bounds identifiers to a sane charset and length for use as
// store keys and log fields.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the given user ID. Handlers always
// read identity from the context, never from ambient state.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeaderName))
}

// ensureUser creates the user record lazily on first sight and refreshes
// last_seen_at on every request after that.
func ensureUser(ctx context.Context, repo store.Repository, userID string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	if user != nil {
		return repo.TouchUser(ctx, userID, now)
	}
	return repo.UpsertUser(ctx, &domain.User{
		ID:         userID,
		CreatedAt:  now,
		LastSeenAt: now,
	})
}

// Middleware authenticates the request from the identity header, creates the
// user lazily, and injects the user ID into the request context.
func Middleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := userIDFromRequest(r)
			if userID == "" {
				http.Error(w, `{"error":"missing user identity"}`, http.StatusUnauthorized)
				return
			}
			if !userIDPattern.MatchString(userID) {
				http.Error(w, `{"error":"invalid user identity"}`, http.StatusUnauthorized)
				return
			}

			if err := ensureUser(r.Context(), repo, userID); err != nil {
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
