//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/speech"
)

func newSpeechRouter(t *testing.T, backend http.HandlerFunc) http.Handler {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	tts := speech.New(httpx.New(httpx.WithHTTPClient(srv.Client())), config.SpeechConfig{
		BaseURL: srv.URL,
		VoiceID: "voice-1",
	})

	repo := newFakeRepo()
	limiter := NewRateLimiter(1000, time.Minute)
	t.Cleanup(limiter.Close)
	h := NewHandler(repo, &fakeProvider{}, tts, nil, limiter, "")
	return newTestRouter(t, repo, nil, h)
}

func TestSpeechReturnsAudioBody(t *testing.T) {
	router := newSpeechRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	})

	w := doRequest(t, router, http.MethodPost, "/api/speech", "alice",
		map[string]string{"text": "say this"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %q", got)
	}
	if w.Body.String() != "mp3-bytes" {
		t.Errorf("Unexpected body: %q", w.Body.String())
	}
}

func TestSpeechUpstreamFailureMapsTo502(t *testing.T) {
	router := newSpeechRouter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusUnprocessableEntity)
	})

	w := doRequest(t, router, http.MethodPost, "/api/speech", "alice",
		map[string]string{"text": "say this"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on upstream failure, got %d", w.Code)
	}
}

func TestSpeechRequiresText(t *testing.T) {
	router := newSpeechRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call expected")
	})

	w := doRequest(t, router, http.MethodPost, "/api/speech", "alice",
		map[string]string{"text": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty text, got %d", w.Code)
	}
}
