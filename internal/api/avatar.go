package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parleylabs/parley/internal/avatar"
	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/identity"
)

type talkRequest struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	VoiceID   string `json:"voice_id"`
}

// HandleCreateTalk handles POST /api/avatar/talks. The call blocks until the
// video is ready or the poll bounds trip; clients wanting progress updates
// use the websocket variant instead.
func (h *Handler) HandleCreateTalk(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req talkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	talk, err := h.avatar.Generate(r.Context(), avatar.TalkRequest{
		Text:      req.Text,
		SourceURL: req.SourceURL,
		VoiceID:   req.VoiceID,
	}, nil)
	if err != nil {
		slog.Error("Avatar generation failed", "user_id", userID, "error", err)
		writeAvatarError(w, err)
		return
	}

	slog.Info("Avatar talk generated", "user_id", userID, "talk_id", talk.ID)
	JSON(w, http.StatusOK, talk)
}

// avatarErrorStatus maps generation failures onto a response code and a
// client-safe message: timeouts from the poll bounds are 504, provider-side
// failures are 502.
func avatarErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, avatar.ErrPollTimeout):
		return http.StatusGatewayTimeout, "avatar generation timed out"
	case errors.Is(err, avatar.ErrTalkFailed):
		return http.StatusBadGateway, "avatar generation failed"
	case errors.Is(err, avatar.ErrNoTalkID):
		return http.StatusBadGateway, "avatar service returned no talk id"
	case httpx.IsRateLimited(err):
		return http.StatusTooManyRequests, "avatar provider is rate limiting, try again shortly"
	default:
		return http.StatusBadGateway, "avatar generation failed"
	}
}

func writeAvatarError(w http.ResponseWriter, err error) {
	status, message := avatarErrorStatus(err)
	Error(w, status, message)
}
