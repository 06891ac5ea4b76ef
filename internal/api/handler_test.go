//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleylabs/parley/internal/chat"
	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/identity"
)

type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.Session
	messages map[string][]*domain.Message
	seq      map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]*domain.Message),
		seq:      make(map[string]int),
	}
}

func (f *fakeRepo) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[id]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.ID] = &copy
	return nil
}

func (f *fakeRepo) TouchUser(_ context.Context, id string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user := f.users[id]; user != nil {
		user.LastSeenAt = seenAt
	}
	return nil
}

func (f *fakeRepo) CreateSession(_ context.Context, sess *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *sess
	f.sessions[sess.ID] = &copy
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := f.sessions[id]
	if sess == nil {
		return nil, nil
	}
	copy := *sess
	return &copy, nil
}

func (f *fakeRepo) ListSessions(_ context.Context, userID string) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, sess := range f.sessions {
		if sess.UserID == userID {
			copy := *sess
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (f *fakeRepo) RenameSession(_ context.Context, id, title string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess := f.sessions[id]; sess != nil {
		sess.Title = title
		sess.UpdatedAt = now
	}
	return nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := int64(len(f.messages[id]))
	delete(f.messages, id)
	delete(f.sessions, id)
	delete(f.seq, id)
	return deleted, nil
}

func (f *fakeRepo) AppendMessage(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[msg.SessionID]++
	msg.Seq = f.seq[msg.SessionID]
	copy := *msg
	f.messages[msg.SessionID] = append(f.messages[msg.SessionID], &copy)
	if sess := f.sessions[msg.SessionID]; sess != nil {
		sess.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (f *fakeRepo) ListMessages(_ context.Context, sessionID string) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Message
	for _, msg := range f.messages[sessionID] {
		copy := *msg
		out = append(out, &copy)
	}
	return out, nil
}

func (f *fakeRepo) DeleteIdleSessions(_ context.Context, idleFor time.Duration) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

type fakeProvider struct {
	mu       sync.Mutex
	requests []chat.Request
	reply    *chat.Reply
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req chat.Request) (*chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		copy := *f.reply
		return &copy, nil
	}
	return &chat.Reply{Text: "echo: " + req.Prompt, Model: "fake-model"}, nil
}

func (f *fakeProvider) lastRequest() chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// newTestRouter assembles the handler behind the identity middleware the way
// the server does, so URL params and context identity both work in tests.
func newTestRouter(t *testing.T, repo *fakeRepo, provider chat.Provider, h *Handler) http.Handler {
	t.Helper()
	if h == nil {
		limiter := NewRateLimiter(1000, time.Minute)
		t.Cleanup(limiter.Close)
		h = NewHandler(repo, provider, nil, nil, limiter, "test system prompt")
	}

	r := chi.NewRouter()
	r.Get("/health", h.HandleHealth)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		h.RegisterRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set(identity.UserHeaderName, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "session not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	var got map[string]string
	decodeJSON(t, w, &got)
	if got["error"] != "session not found" {
		t.Errorf("Unexpected error message: %q", got["error"])
	}
}

func TestRoutesRequireIdentity(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	w := doRequest(t, router, http.MethodGet, "/api/sessions", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity header, got %d", w.Code)
	}
}

func TestHealthSkipsIdentity(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	w := doRequest(t, router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from health probe, got %d", w.Code)
	}

	var got map[string]interface{}
	decodeJSON(t, w, &got)
	if got["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", got["status"])
	}
}

func TestMeReturnsLazilyCreatedUser(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	w := doRequest(t, router, http.MethodGet, "/api/me", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var user domain.User
	decodeJSON(t, w, &user)
	if user.ID != "alice" {
		t.Errorf("Expected user alice, got %q", user.ID)
	}
}
