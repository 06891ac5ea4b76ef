package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/identity"
	"github.com/parleylabs/parley/internal/speech"
)

type speechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// HandleSpeech handles POST /api/speech and streams back the rendered audio
// clip as a binary body.
func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), speech.SynthesisRequest{
		Text:    req.Text,
		VoiceID: req.VoiceID,
	})
	if err != nil {
		slog.Error("Speech synthesis failed", "user_id", userID, "error", err)
		if httpx.IsRateLimited(err) {
			Error(w, http.StatusTooManyRequests, "speech provider is rate limiting, try again shortly")
			return
		}
		Error(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		slog.Warn("Failed to write audio response", "user_id", userID, "error", err)
	}
}
