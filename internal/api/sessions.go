package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/identity"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// HandleCreateSession handles POST /api/sessions. The body is optional; an
// omitted or empty title falls back to the default.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateSession(r.Context(), sess); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("Session created", "session_id", sess.ID, "user_id", userID)
	JSON(w, http.StatusCreated, sess)
}

// HandleListSessions handles GET /api/sessions, most recently active first.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, sessions)
}

// HandleGetSession handles GET /api/sessions/{sessionID}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFromURL(w, r)
	if sess == nil {
		return
	}
	JSON(w, http.StatusOK, sess)
}

// HandleRenameSession handles PATCH /api/sessions/{sessionID}.
func (h *Handler) HandleRenameSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		Error(w, http.StatusBadRequest, "title is required")
		return
	}

	sess := h.sessionFromURL(w, r)
	if sess == nil {
		return
	}

	now := time.Now().UTC()
	if err := h.repo.RenameSession(r.Context(), sess.ID, title, now); err != nil {
		slog.Error("Failed to rename session", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to rename session")
		return
	}

	sess.Title = title
	sess.UpdatedAt = now
	JSON(w, http.StatusOK, sess)
}

// HandleDeleteSession handles DELETE /api/sessions/{sessionID}. The session
// and its transcript go together.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFromURL(w, r)
	if sess == nil {
		return
	}

	messagesDeleted, err := h.repo.DeleteSession(r.Context(), sess.ID)
	if err != nil {
		slog.Error("Failed to delete session", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	slog.Info("Session deleted", "session_id", sess.ID, "user_id", sess.UserID, "messages_deleted", messagesDeleted)
	JSON(w, http.StatusOK, map[string]interface{}{
		"deleted":          true,
		"messages_deleted": messagesDeleted,
	})
}
