// Package avatar drives an external talking-head video service. Talk
// generation is asynchronous on the provider side: a talk is submitted, then
// its status is polled until a result URL appears. Polling is bounded by
// both an attempt limit and a wall-clock budget so a stuck job can never pin
// a request forever.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/httpx"
)

// Poll bounds applied when the configuration leaves them unset.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollAttempts = 150
	DefaultPollBudget      = 5 * time.Minute
)

// Talk lifecycle statuses reported by the provider.
const (
	StatusCreated  = "created"
	StatusStarted  = "started"
	StatusDone     = "done"
	StatusError    = "error"
	StatusRejected = "rejected"
)

var (
	// ErrNoTalkID means the provider accepted the submission but returned no
	// talk id, so there is nothing to poll.
	ErrNoTalkID = errors.New("avatar: response missing talk id")

	// ErrPollTimeout means the talk was still processing when the attempt
	// limit or the poll budget ran out.
	ErrPollTimeout = errors.New("avatar: talk not ready before poll limit")

	// ErrTalkFailed means the provider reported the talk as failed or
	// rejected.
	ErrTalkFailed = errors.New("avatar: talk generation failed")
)

// Talk is the provider's view of one generation job.
type Talk struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	ResultURL string     `json:"result_url,omitempty"`
	Error     *TalkError `json:"error,omitempty"`
}

// TalkError carries the provider's failure detail.
type TalkError struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// TalkRequest is one talk to generate. SourceURL overrides the configured
// presenter image when set.
type TalkRequest struct {
	Text      string
	SourceURL string
	VoiceID   string
}

// StatusFunc observes each polled status, e.g. to stream progress over a
// websocket.
type StatusFunc func(talk *Talk)

// Client submits talks and polls them to completion.
type Client struct {
	http            *httpx.Client
	baseURL         string
	apiKey          string
	sourceURL       string
	pollInterval    time.Duration
	maxPollAttempts int
	pollBudget      time.Duration

	wait func(ctx context.Context, d time.Duration) error
}

// New builds a client from configuration, applying default poll bounds where
// the configuration leaves zero values.
func New(rest *httpx.Client, cfg config.AvatarConfig) *Client {
	c := &Client{
		http:            rest,
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		sourceURL:       cfg.SourceURL,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		pollBudget:      cfg.PollBudget,
		wait:            sleepWithContext,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPollAttempts <= 0 {
		c.maxPollAttempts = DefaultMaxPollAttempts
	}
	if c.pollBudget <= 0 {
		c.pollBudget = DefaultPollBudget
	}
	return c
}

type talkScript struct {
	Type     string        `json:"type"`
	Input    string        `json:"input"`
	Provider *talkProvider `json:"provider,omitempty"`
}

type talkProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type createTalkBody struct {
	SourceURL string     `json:"source_url"`
	Script    talkScript `json:"script"`
}

// CreateTalk submits a generation job and returns the talk in its initial
// state. The returned talk carries the id to poll with.
func (c *Client) CreateTalk(ctx context.Context, req TalkRequest) (*Talk, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("create talk: text is required")
	}
	source := req.SourceURL
	if source == "" {
		source = c.sourceURL
	}
	if source == "" {
		return nil, fmt.Errorf("create talk: no presenter image configured")
	}

	body := createTalkBody{
		SourceURL: source,
		Script:    talkScript{Type: "text", Input: req.Text},
	}
	if req.VoiceID != "" {
		body.Script.Provider = &talkProvider{Type: "microsoft", VoiceID: req.VoiceID}
	}

	var talk Talk
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/talks", c.authHeader(), body, &talk); err != nil {
		return nil, fmt.Errorf("create talk: %w", err)
	}
	if talk.ID == "" {
		return nil, fmt.Errorf("create talk: %w", ErrNoTalkID)
	}
	return &talk, nil
}

// GetTalk fetches the current state of one talk.
func (c *Client) GetTalk(ctx context.Context, id string) (*Talk, error) {
	var talk Talk
	u := c.baseURL + "/talks/" + url.PathEscape(id)
	if err := c.http.DoJSON(ctx, http.MethodGet, u, c.authHeader(), nil, &talk); err != nil {
		return nil, fmt.Errorf("get talk %q: %w", id, err)
	}
	return &talk, nil
}

// Await polls a submitted talk until its result URL appears. The first check
// is immediate; subsequent checks are one poll interval apart. onStatus, when
// non-nil, is called with every polled state.
//
// Await returns ErrPollTimeout once the attempt limit or the poll budget is
// exhausted, and ErrTalkFailed when the provider reports the job failed.
func (c *Client) Await(ctx context.Context, id string, onStatus StatusFunc) (*Talk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("await talk %q: %w", id, err)
	}
	deadline := time.Now().Add(c.pollBudget)

	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, c.pollInterval); err != nil {
				return nil, fmt.Errorf("await talk %q: %w", id, err)
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("await talk %q: budget %s exhausted: %w", id, c.pollBudget, ErrPollTimeout)
		}

		talk, err := c.GetTalk(ctx, id)
		if err != nil {
			return nil, err
		}
		if onStatus != nil {
			onStatus(talk)
		}

		switch talk.Status {
		case StatusError, StatusRejected:
			if talk.Error != nil && talk.Error.Description != "" {
				return nil, fmt.Errorf("talk %q: %s: %w", id, talk.Error.Description, ErrTalkFailed)
			}
			return nil, fmt.Errorf("talk %q: status %s: %w", id, talk.Status, ErrTalkFailed)
		}
		if talk.ResultURL != "" {
			return talk, nil
		}
	}

	return nil, fmt.Errorf("await talk %q: still processing after %d polls: %w", id, c.maxPollAttempts, ErrPollTimeout)
}

// Generate submits a talk and blocks until it finishes, one call for the
// common submit-then-wait flow.
func (c *Client) Generate(ctx context.Context, req TalkRequest, onStatus StatusFunc) (*Talk, error) {
	talk, err := c.CreateTalk(ctx, req)
	if err != nil {
		return nil, err
	}
	if onStatus != nil {
		onStatus(talk)
	}
	return c.Await(ctx, talk.ID, onStatus)
}

func (c *Client) authHeader() http.Header {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Basic "+c.apiKey)
	}
	return header
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
