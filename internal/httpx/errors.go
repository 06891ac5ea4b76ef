package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response body is kept for the
// error message.
const maxErrorBody = 2048

// StatusError reports a non-success HTTP response. For statuses the retry
// policy does not cover it is returned immediately; for retryable statuses it
// is the last error once the attempt budget is spent.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// newStatusError drains and closes the response body, keeping a truncated
// copy for the error message.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return &StatusError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

// AsStatus unwraps err to a StatusError if one is in its chain.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	se, ok := AsStatus(err)
	return ok && se.Status == status
}

// IsRateLimited reports whether err stems from an HTTP 429 response,
// including the exhausted-retries wrapper.
func IsRateLimited(err error) bool {
	return IsStatus(err, http.StatusTooManyRequests)
}
