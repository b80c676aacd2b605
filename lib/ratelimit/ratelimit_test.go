package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(3, time.Minute).WithClock(clock)

	require.NoError(t, l.Allow("a"))
	require.NoError(t, l.Allow("a"))
	require.NoError(t, l.Allow("a"))
	require.Error(t, l.Allow("a"))
}

func TestWindowResetsAfterElapsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(1, time.Second).WithClock(clock)

	require.NoError(t, l.Allow("a"))
	require.Error(t, l.Allow("a"))

	clock.Advance(2 * time.Second)
	require.NoError(t, l.Allow("a"))
}

func TestIdentifierPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get-cpu", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "203.0.113.9:/get-cpu", Identifier(req))
}

func TestIdentifierFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get-cpu", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	require.Equal(t, "10.0.0.1:/get-cpu", Identifier(req))
}

func TestRetryAfterCeilsSeconds(t *testing.T) {
	l := New(1, 90500*time.Millisecond)
	require.Equal(t, 91, l.RetryAfter())
}
