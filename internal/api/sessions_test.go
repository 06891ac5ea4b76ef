//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"net/http"
	"testing"

	"github.com/parleylabs/parley/internal/domain"
)

func createSession(t *testing.T, router http.Handler, userID, title string) *domain.Session {
	t.Helper()
	var body interface{}
	if title != "" {
		body = map[string]string{"title": title}
	}
	w := doRequest(t, router, http.MethodPost, "/api/sessions", userID, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating session, got %d: %s", w.Code, w.Body.String())
	}
	var sess domain.Session
	decodeJSON(t, w, &sess)
	return &sess
}

func TestCreateSessionDefaultTitle(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	sess := createSession(t, router, "alice", "")
	if sess.Title != domain.DefaultSessionTitle {
		t.Errorf("Expected default title %q, got %q", domain.DefaultSessionTitle, sess.Title)
	}
	if sess.UserID != "alice" {
		t.Errorf("Expected owner alice, got %q", sess.UserID)
	}
	if sess.ID == "" {
		t.Error("Expected a generated session id")
	}

	named := createSession(t, router, "alice", "Trip planning")
	if named.Title != "Trip planning" {
		t.Errorf("Expected explicit title, got %q", named.Title)
	}
}

func TestListSessionsScopedToUser(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	first := createSession(t, router, "alice", "first")
	second := createSession(t, router, "alice", "second")
	createSession(t, router, "bob", "bob's session")

	// Touch the older session so it moves to the front.
	w := doRequest(t, router, http.MethodPost, "/api/sessions/"+first.ID+"/messages", "alice",
		map[string]string{"role": domain.RoleUser, "text": "bump"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 appending message, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/api/sessions", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing sessions, got %d", w.Code)
	}

	var sessions []*domain.Session
	decodeJSON(t, w, &sessions)
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions for alice, got %d", len(sessions))
	}
	if sessions[0].ID != first.ID || sessions[1].ID != second.ID {
		t.Errorf("Expected recently active session first, got [%s, %s]", sessions[0].Title, sessions[1].Title)
	}
}

func TestGetSessionHidesForeignSessions(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	sess := createSession(t, router, "alice", "private")

	w := doRequest(t, router, http.MethodGet, "/api/sessions/"+sess.ID, "bob", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for foreign session, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/api/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for own session, got %d", w.Code)
	}
}

func TestRenameSession(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	sess := createSession(t, router, "alice", "")

	w := doRequest(t, router, http.MethodPatch, "/api/sessions/"+sess.ID, "alice",
		map[string]string{"title": "Renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 renaming session, got %d", w.Code)
	}

	var updated domain.Session
	decodeJSON(t, w, &updated)
	if updated.Title != "Renamed" {
		t.Errorf("Expected title Renamed, got %q", updated.Title)
	}

	w = doRequest(t, router, http.MethodPatch, "/api/sessions/"+sess.ID, "alice",
		map[string]string{"title": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank title, got %d", w.Code)
	}
}

func TestDeleteSessionRemovesTranscript(t *testing.T) {
	router := newTestRouter(t, newFakeRepo(), &fakeProvider{}, nil)

	sess := createSession(t, router, "alice", "")
	for _, text := range []string{"one", "two"} {
		w := doRequest(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", "alice",
			map[string]string{"role": domain.RoleUser, "text": text})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201 appending message, got %d", w.Code)
		}
	}

	w := doRequest(t, router, http.MethodDelete, "/api/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 deleting session, got %d", w.Code)
	}

	var result struct {
		Deleted         bool  `json:"deleted"`
		MessagesDeleted int64 `json:"messages_deleted"`
	}
	decodeJSON(t, w, &result)
	if !result.Deleted || result.MessagesDeleted != 2 {
		t.Errorf("Expected 2 messages deleted, got %+v", result)
	}

	w = doRequest(t, router, http.MethodGet, "/api/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}
