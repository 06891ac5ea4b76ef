package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleylabs/parley/internal/chat"
	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/identity"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Message *domain.Message `json:"message"`
	Model   string          `json:"model"`
	Usage   chat.Usage      `json:"usage"`
}

// HandleChat handles POST /api/chat. It appends the user's turn to the
// session transcript, asks the provider for a completion with the prior
// transcript as context, appends the reply, and returns it.
//
// The user's message is persisted before the provider is called, so a failed
// completion still leaves the turn in the transcript.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	prompt := strings.TrimSpace(req.Message)
	if prompt == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := h.ownedSession(r.Context(), req.SessionID, userID)
	if err != nil {
		slog.Error("Failed to load session", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	prior, err := h.repo.ListMessages(r.Context(), sess.ID)
	if err != nil {
		slog.Error("Failed to load transcript", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	history := make([]chat.Turn, 0, len(prior))
	for _, m := range prior {
		history = append(history, chat.Turn{Role: m.Role, Text: m.Text})
	}

	userMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      domain.RoleUser,
		Text:      prompt,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.AppendMessage(r.Context(), userMsg); err != nil {
		slog.Error("Failed to persist user message", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	reply, err := h.chat.Complete(r.Context(), chat.Request{
		System:  h.systemPrompt,
		History: history,
		Prompt:  prompt,
	})
	if err != nil {
		slog.Error("Chat completion failed", "session_id", sess.ID, "provider", h.chat.Name(), "error", err)
		if httpx.IsRateLimited(err) {
			Error(w, http.StatusTooManyRequests, "model provider is rate limiting, try again shortly")
			return
		}
		Error(w, http.StatusBadGateway, "chat provider failed")
		return
	}

	botMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      domain.RoleBot,
		Text:      reply.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.AppendMessage(r.Context(), botMsg); err != nil {
		slog.Error("Failed to persist reply", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to persist reply")
		return
	}

	slog.Info("Chat turn completed",
		"session_id", sess.ID,
		"user_id", userID,
		"provider", h.chat.Name(),
		"model", reply.Model,
		"prompt_tokens", reply.Usage.PromptTokens,
		"completion_tokens", reply.Usage.CompletionTokens,
	)
	JSON(w, http.StatusOK, chatResponse{Message: botMsg, Model: reply.Model, Usage: reply.Usage})
}
