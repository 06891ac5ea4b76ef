package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/parleylabs/parley/internal/avatar"
	"github.com/parleylabs/parley/internal/identity"
)

// AvatarSocketHandler streams talk generation progress over a websocket.
// The protocol is one talk per connection: the client sends a single JSON
// request, receives a status event per poll, then a result or error event,
// and the server closes.
type AvatarSocketHandler struct {
	avatar        *avatar.Client
	limiter       *RateLimiter
	allowedOrigin string
	isDev         bool
}

// NewAvatarSocketHandler creates a new websocket handler for avatar talks.
func NewAvatarSocketHandler(talks *avatar.Client, limiter *RateLimiter, allowedOrigin string, isDev bool) *AvatarSocketHandler {
	return &AvatarSocketHandler{
		avatar:        talks,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// socketEvent is the server-to-client message structure.
type socketEvent struct {
	Type  string       `json:"type"`
	Talk  *avatar.Talk `json:"talk,omitempty"`
	Error string       `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *AvatarSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("Avatar socket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "talk finished"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	_, data, err := ws.Read(r.Context())
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			slog.Debug("WebSocket closed by client", "user_id", userID)
		} else {
			slog.Warn("WebSocket read error", "error", err, "user_id", userID)
		}
		return
	}

	var req talkRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeEvent(ws, userID, socketEvent{Type: "error", Error: "invalid request"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeEvent(ws, userID, socketEvent{Type: "error", Error: "text is required"})
		return
	}
	if !h.limiter.Allow(userID) {
		h.writeEvent(ws, userID, socketEvent{Type: "error", Error: "rate limit exceeded"})
		return
	}

	// No further client messages are expected; CloseRead hands back a context
	// that cancels generation when the client goes away mid-poll.
	ctx := ws.CloseRead(r.Context())

	talk, err := h.avatar.Generate(ctx, avatar.TalkRequest{
		Text:      req.Text,
		SourceURL: req.SourceURL,
		VoiceID:   req.VoiceID,
	}, func(t *avatar.Talk) {
		h.writeEvent(ws, userID, socketEvent{Type: "status", Talk: t})
	})
	if err != nil {
		slog.Error("Avatar generation failed", "user_id", userID, "error", err)
		_, message := avatarErrorStatus(err)
		h.writeEvent(ws, userID, socketEvent{Type: "error", Error: message})
		return
	}

	slog.Info("Avatar talk generated", "user_id", userID, "talk_id", talk.ID)
	h.writeEvent(ws, userID, socketEvent{Type: "result", Talk: talk})
}

func (h *AvatarSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *AvatarSocketHandler) writeEvent(ws *websocket.Conn, userID string, ev socketEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal socket event", "error", err, "user_id", userID)
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("Failed to write socket event", "error", err, "user_id", userID)
	}
}
