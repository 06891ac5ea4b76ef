package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parleylabs/parley/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func mustCreateUser(t *testing.T, repo Repository, id string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{ID: id, CreatedAt: now, LastSeenAt: now}
	if err := repo.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	return user
}

func mustCreateSession(t *testing.T, repo Repository, userID, title string, at time.Time) *domain.Session {
	t.Helper()
	session := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := repo.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func mustAppendMessage(t *testing.T, repo Repository, sessionID, role, text string) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := repo.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return msg
}

func TestUserLifecycle(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "absent")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent user, got %+v", got)
	}

	mustCreateUser(t, repo, "visitor-1")
	got, err = repo.GetUser(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil || got.ID != "visitor-1" {
		t.Fatalf("expected visitor-1, got %+v", got)
	}

	seen := time.Now().Add(time.Hour)
	if err := repo.TouchUser(ctx, "visitor-1", seen); err != nil {
		t.Fatalf("TouchUser: %v", err)
	}
	got, err = repo.GetUser(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("GetUser after touch: %v", err)
	}
	if got.LastSeenAt.Unix() != seen.Unix() {
		t.Errorf("expected last_seen_at %d, got %d", seen.Unix(), got.LastSeenAt.Unix())
	}

	// Upserting an existing user must not error.
	mustCreateUser(t, repo, "visitor-1")
}

func TestSessionListOrdering(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, repo, "visitor-1")

	old := mustCreateSession(t, repo, "visitor-1", "Old", time.Now().Add(-2*time.Hour))
	fresh := mustCreateSession(t, repo, "visitor-1", "Fresh", time.Now())

	sessions, err := repo.ListSessions(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != fresh.ID || sessions[1].ID != old.ID {
		t.Errorf("expected most recently active first, got %s then %s", sessions[0].Title, sessions[1].Title)
	}

	// Appending a message moves the session to the front.
	mustAppendMessage(t, repo, old.ID, domain.RoleUser, "hello again")
	sessions, err = repo.ListSessions(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if sessions[0].ID != old.ID {
		t.Errorf("expected session with new message first, got %s", sessions[0].Title)
	}
}

func TestMessageSeqOrdering(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, repo, "visitor-1")
	session := mustCreateSession(t, repo, "visitor-1", domain.DefaultSessionTitle, time.Now())

	first := mustAppendMessage(t, repo, session.ID, domain.RoleUser, "what is a router?")
	second := mustAppendMessage(t, repo, session.ID, domain.RoleBot, "a router forwards packets")
	third := mustAppendMessage(t, repo, session.ID, domain.RoleUser, "thanks")

	if first.Seq != 1 || second.Seq != 2 || third.Seq != 3 {
		t.Fatalf("expected seqs 1,2,3, got %d,%d,%d", first.Seq, second.Seq, third.Seq)
	}

	messages, err := repo.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Seq != i+1 {
			t.Errorf("message %d has seq %d", i, msg.Seq)
		}
	}
	if messages[0].Role != domain.RoleUser || messages[1].Role != domain.RoleBot {
		t.Errorf("roles out of order: %s, %s", messages[0].Role, messages[1].Role)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, repo, "visitor-1")

	doomed := mustCreateSession(t, repo, "visitor-1", "Doomed", time.Now())
	kept := mustCreateSession(t, repo, "visitor-1", "Kept", time.Now())
	mustAppendMessage(t, repo, doomed.ID, domain.RoleUser, "one")
	mustAppendMessage(t, repo, doomed.ID, domain.RoleBot, "two")
	mustAppendMessage(t, repo, kept.ID, domain.RoleUser, "stay")

	deleted, err := repo.DeleteSession(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 messages deleted, got %d", deleted)
	}

	got, err := repo.GetSession(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("expected deleted session to be gone, got %+v", got)
	}

	orphans, err := repo.ListMessages(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected no orphaned messages, got %d", len(orphans))
	}

	remaining, err := repo.ListMessages(ctx, kept.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected the other session's message to survive, got %d", len(remaining))
	}
}

func TestRenameSession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, repo, "visitor-1")
	session := mustCreateSession(t, repo, "visitor-1", domain.DefaultSessionTitle, time.Now())

	if err := repo.RenameSession(ctx, session.ID, "Networking basics", time.Now()); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}

	got, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "Networking basics" {
		t.Errorf("expected renamed title, got %q", got.Title)
	}
}

func TestDeleteIdleSessions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, repo, "visitor-1")

	stale := mustCreateSession(t, repo, "visitor-1", "Stale", time.Now().Add(-48*time.Hour))
	fresh := mustCreateSession(t, repo, "visitor-1", "Fresh", time.Now())
	mustAppendMessage(t, repo, fresh.ID, domain.RoleUser, "keep me")

	// The fresh append must not resurrect the stale session.
	sessions, messages, err := repo.DeleteIdleSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteIdleSessions: %v", err)
	}
	if sessions != 1 {
		t.Errorf("expected 1 idle session deleted, got %d", sessions)
	}
	if messages != 0 {
		t.Errorf("expected 0 idle messages deleted, got %d", messages)
	}

	got, err := repo.GetSession(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("expected stale session deleted, got %+v", got)
	}
	got, err = repo.GetSession(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Error("expected fresh session to survive the sweep")
	}
}
