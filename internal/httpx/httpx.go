// Package httpx implements the retrying HTTP client used for every outbound
// call to an external service. One executor covers all collaborators: callers
// only vary the retry policy.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// Default retry behavior: three attempts total, 1s initial backoff doubling
// per attempt, retry only on 429 and transport errors.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second

	// jitterRange is the width of the uniform jitter added to every backoff
	// delay so synchronized clients fan out.
	jitterRange = 1 * time.Second
)

// RetryPolicy controls how Client.Do handles failures.
//
// MaxRetries is the total attempt budget: a request is tried at most
// MaxRetries times, with a backoff sleep between attempts and never after
// the last one. Retryable decides per status whether another attempt is
// worthwhile; a nil Retryable retries 429 only. Transport errors are always
// retried until the budget runs out. Any other non-2xx status fails the
// request immediately.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Retryable    func(status int) bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// RetryOn builds a Retryable predicate from a fixed status set.
func RetryOn(statuses ...int) func(int) bool {
	set := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return func(status int) bool { return set[status] }
}

func (p RetryPolicy) retryableStatus(status int) bool {
	if p.Retryable != nil {
		return p.Retryable(status)
	}
	return status == http.StatusTooManyRequests
}

// Request describes one logical HTTP request. The body is a byte slice, not
// a reader, so each retry attempt sends an identical payload.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Client executes requests with bounded retry and exponential backoff.
// Every call to Do is an independent attempt sequence; the client keeps no
// per-request state between calls.
type Client struct {
	http   *http.Client
	policy RetryPolicy

	// Injected in tests for deterministic backoff observation.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy overrides the retry policy.
func WithPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-attempt timeout on the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client with the default policy and a 60s per-attempt timeout.
func New(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: 60 * time.Second},
		policy: DefaultPolicy(),
		sleep:  sleepWithContext,
		jitter: defaultJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.MaxRetries <= 0 {
		c.policy.MaxRetries = DefaultMaxRetries
	}
	if c.policy.InitialDelay <= 0 {
		c.policy.InitialDelay = DefaultInitialDelay
	}
	return c
}

// Do executes the request, retrying per the policy. On success the response
// is returned with its body unread; the caller owns closing it. On failure
// the body of every non-success response has already been drained and closed.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxRetries; attempt++ {
		resp, err := c.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ctx.Err())
			}
			lastErr = fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
			if attempt == c.policy.MaxRetries-1 {
				break
			}
			if err := c.backoff(ctx, attempt, req.URL, "network error"); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		serr := newStatusError(resp)
		if !c.policy.retryableStatus(resp.StatusCode) {
			return nil, serr
		}
		lastErr = serr
		if attempt == c.policy.MaxRetries-1 {
			break
		}
		if err := c.backoff(ctx, attempt, req.URL, resp.Status); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.policy.MaxRetries, lastErr)
}

// DoJSON executes the request with a JSON-encoded in payload and decodes the
// response into out. Either side may be nil to skip encoding or decoding.
func (c *Client) DoJSON(ctx context.Context, method, url string, header http.Header, in, out any) error {
	req := Request{Method: method, URL: url, Header: header}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.Body = body
		if req.Header == nil {
			req.Header = http.Header{}
		} else {
			req.Header = req.Header.Clone()
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req Request) (*http.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return c.http.Do(httpReq)
}

// backoff sleeps for the attempt's delay, honoring context cancellation.
func (c *Client) backoff(ctx context.Context, attempt int, url, reason string) error {
	delay := c.delay(attempt)
	slog.Debug("retrying request", "url", url, "reason", reason, "attempt", attempt+1, "delay", delay)
	return c.sleep(ctx, delay)
}

// delay returns InitialDelay doubled per completed attempt, capped at
// MaxDelay, plus uniform jitter.
func (c *Client) delay(attempt int) time.Duration {
	d := c.policy.InitialDelay
	for range attempt {
		d *= 2
		if c.policy.MaxDelay > 0 && d >= c.policy.MaxDelay {
			d = c.policy.MaxDelay
			break
		}
	}
	return d + c.jitter()
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(jitterRange)))
}

// sleepWithContext sleeps for d but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
