package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusErrorMessage(t *testing.T) {
	e := &StatusError{Status: 502, Body: "bad gateway"}
	assert.Equal(t, "unexpected status 502: bad gateway", e.Error())

	e = &StatusError{Status: 401}
	assert.Equal(t, "unexpected status 401", e.Error())
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := &StatusError{Status: http.StatusTooManyRequests}
	wrapped := fmt.Errorf("giving up after 3 attempts: %w", base)

	assert.True(t, IsRateLimited(wrapped))
	assert.True(t, IsStatus(wrapped, http.StatusTooManyRequests))
	assert.False(t, IsStatus(wrapped, http.StatusInternalServerError))

	se, ok := AsStatus(wrapped)
	assert.True(t, ok)
	assert.Same(t, base, se)
}

func TestPredicatesOnNonStatusErrors(t *testing.T) {
	assert.False(t, IsRateLimited(nil))
	assert.False(t, IsRateLimited(errors.New("dial tcp: connection refused")))

	_, ok := AsStatus(errors.New("plain"))
	assert.False(t, ok)
}
