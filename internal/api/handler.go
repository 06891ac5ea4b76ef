// Package api provides HTTP handlers for the parley API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleylabs/parley/internal/avatar"
	"github.com/parleylabs/parley/internal/chat"
	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/identity"
	"github.com/parleylabs/parley/internal/speech"
	"github.com/parleylabs/parley/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Handler provides common handler utilities and dependencies.
type Handler struct {
	repo         store.Repository
	chat         chat.Provider
	speech       *speech.Client
	avatar       *avatar.Client
	limiter      *RateLimiter
	systemPrompt string
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, provider chat.Provider, tts *speech.Client, talks *avatar.Client, limiter *RateLimiter, systemPrompt string) *Handler {
	return &Handler{
		repo:         repo,
		chat:         provider,
		speech:       tts,
		avatar:       talks,
		limiter:      limiter,
		systemPrompt: systemPrompt,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers all API routes (requires identity).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.HandleCreateUser)
		r.Get("/me", h.HandleMe)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSession)
			r.Get("/", h.HandleListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.HandleGetSession)
				r.Patch("/", h.HandleRenameSession)
				r.Delete("/", h.HandleDeleteSession)
				r.Get("/messages", h.HandleListMessages)
				r.Post("/messages", h.HandleAppendMessage)
			})
		})

		r.Post("/chat", h.HandleChat)
		r.Post("/speech", h.HandleSpeech)
		r.Post("/avatar/talks", h.HandleCreateTalk)
	})
}

// ownedSession loads a session and verifies it belongs to userID. Missing
// and foreign sessions both come back nil so session ids cannot be probed.
func (h *Handler) ownedSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != userID {
		return nil, nil
	}
	return sess, nil
}

// sessionFromURL resolves the {sessionID} route param to a session owned by
// the calling user, writing the error response itself when that fails.
func (h *Handler) sessionFromURL(w http.ResponseWriter, r *http.Request) *domain.Session {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.ownedSession(r.Context(), sessionID, userID)
	if err != nil {
		slog.Error("Failed to load session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return nil
	}
	return sess
}
