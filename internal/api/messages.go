package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleylabs/parley/internal/domain"
)

type appendMessageRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// HandleListMessages handles GET /api/sessions/{sessionID}/messages in
// insertion order.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFromURL(w, r)
	if sess == nil {
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), sess.ID)
	if err != nil {
		slog.Error("Failed to list messages", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

// HandleAppendMessage handles POST /api/sessions/{sessionID}/messages for
// direct transcript writes, e.g. importing a conversation.
func (h *Handler) HandleAppendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidRole(req.Role) {
		Error(w, http.StatusBadRequest, `role must be "user" or "bot"`)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	sess := h.sessionFromURL(w, r)
	if sess == nil {
		return
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      req.Role,
		Text:      req.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.AppendMessage(r.Context(), msg); err != nil {
		slog.Error("Failed to append message", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to append message")
		return
	}

	JSON(w, http.StatusCreated, msg)
}
