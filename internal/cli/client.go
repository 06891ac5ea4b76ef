package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/identity"
)

// apiClient wraps the server HTTP API. The retryable set is wider than the
// server's outbound default: besides 429 it also covers the gateway statuses
// a proxy in front of the server may return transiently.
type apiClient struct {
	http    *httpx.Client
	baseURL string
	userID  string
}

func newClient(requireUser bool) (*apiClient, error) {
	if requireUser && userID == "" {
		return nil, fmt.Errorf("--user (or PARLEY_USER) is required")
	}

	rest := httpx.New(
		httpx.WithTimeout(timeout),
		httpx.WithPolicy(httpx.RetryPolicy{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     15 * time.Second,
			Retryable: httpx.RetryOn(
				http.StatusTooManyRequests,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
			),
		}),
	)

	return &apiClient{
		http:    rest,
		baseURL: strings.TrimSuffix(serverURL, "/"),
		userID:  userID,
	}, nil
}

func (c *apiClient) header() http.Header {
	h := http.Header{}
	if c.userID != "" {
		h.Set(identity.UserHeaderName, c.userID)
	}
	return h
}

func (c *apiClient) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.http.DoJSON(ctx, http.MethodGet, c.baseURL+path, c.header(), nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.http.DoJSON(ctx, http.MethodPost, c.baseURL+path, c.header(), in, out)
}

func (c *apiClient) patchJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.http.DoJSON(ctx, http.MethodPatch, c.baseURL+path, c.header(), in, out)
}

func (c *apiClient) deleteJSON(ctx context.Context, path string, out interface{}) error {
	return c.http.DoJSON(ctx, http.MethodDelete, c.baseURL+path, c.header(), nil, out)
}

func encodeJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// postRaw posts a JSON body and returns the raw response bytes, for
// endpoints that answer with binary data.
func (c *apiClient) postRaw(ctx context.Context, path string, in interface{}) ([]byte, string, error) {
	body, err := encodeJSON(in)
	if err != nil {
		return nil, "", err
	}

	header := c.header()
	header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Typed wrappers over the wire API.

func (c *apiClient) health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) listSessions(ctx context.Context) ([]*domain.Session, error) {
	var out []*domain.Session
	if err := c.getJSON(ctx, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) createSession(ctx context.Context, title string) (*domain.Session, error) {
	in := map[string]string{}
	if title != "" {
		in["title"] = title
	}
	var out domain.Session
	if err := c.postJSON(ctx, "/api/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) renameSession(ctx context.Context, id, title string) (*domain.Session, error) {
	var out domain.Session
	if err := c.patchJSON(ctx, "/api/sessions/"+id, map[string]string{"title": title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type deleteResult struct {
	Deleted         bool  `json:"deleted"`
	MessagesDeleted int64 `json:"messages_deleted"`
}

func (c *apiClient) deleteSession(ctx context.Context, id string) (*deleteResult, error) {
	var out deleteResult
	if err := c.deleteJSON(ctx, "/api/sessions/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) listMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	var out []*domain.Message
	if err := c.getJSON(ctx, "/api/sessions/"+sessionID+"/messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

type chatResult struct {
	Message *domain.Message `json:"message"`
	Model   string          `json:"model"`
}

func (c *apiClient) chat(ctx context.Context, sessionID, message string) (*chatResult, error) {
	in := map[string]string{"session_id": sessionID, "message": message}
	var out chatResult
	if err := c.postJSON(ctx, "/api/chat", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) speak(ctx context.Context, text, voiceID string) ([]byte, string, error) {
	in := map[string]string{"text": text}
	if voiceID != "" {
		in["voice_id"] = voiceID
	}
	return c.postRaw(ctx, "/api/speech", in)
}

type talkResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
}

func (c *apiClient) talk(ctx context.Context, text, sourceURL, voiceID string) (*talkResult, error) {
	in := map[string]string{"text": text}
	if sourceURL != "" {
		in["source_url"] = sourceURL
	}
	if voiceID != "" {
		in["voice_id"] = voiceID
	}
	var out talkResult
	if err := c.postJSON(ctx, "/api/avatar/talks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
