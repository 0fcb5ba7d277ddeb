package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("search: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain error", errors.New("invalid api key"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"flattened io timeout", errors.New("Get \"https://s.jina.ai\": i/o timeout"), true},
		{"flattened broken pipe", errors.New("write: broken pipe"), true},
		{"bot wall stays permanent", errors.New("firecrawl: HTTP 403: blocked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	// 403 and 401 are block signals for the tier router, not retry fodder.
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientErrorWraps(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 500, te.StatusCode)
	assert.Equal(t, "root cause", te.Error())
}

func TestRetryAfterHint(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, RetryAfterHint(h), "absent header")

	h.Set("Retry-After", "30")
	assert.Equal(t, 30*time.Second, RetryAfterHint(h))

	h.Set("Retry-After", "-5")
	assert.Zero(t, RetryAfterHint(h), "negative delta ignored")

	h.Set("Retry-After", "not a delay")
	assert.Zero(t, RetryAfterHint(h), "malformed header ignored")

	h.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
	got := RetryAfterHint(h)
	assert.Greater(t, got, 80*time.Second)
	assert.LessOrEqual(t, got, 90*time.Second)

	h.Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	assert.Zero(t, RetryAfterHint(h), "dates in the past ignored")
}
