package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestAuthCounterLifecycle(t *testing.T) {
	s := New()
	require.Equal(t, 0, s.AuthCounter("1.2.3.4"))
	require.Equal(t, 1, s.IncrementAuthCounter("1.2.3.4"))
	require.Equal(t, 2, s.IncrementAuthCounter("1.2.3.4"))
	s.ResetAuthCounter("1.2.3.4")
	require.Equal(t, 0, s.AuthCounter("1.2.3.4"))
}

func TestForbidSetMembership(t *testing.T) {
	s := New()
	require.False(t, s.IsForbidden("host"))
	s.Forbid("host")
	require.True(t, s.IsForbidden("host"))
	s.Unforbid("host")
	require.False(t, s.IsForbidden("host"))
}

func TestWSSessionRoundTrip(t *testing.T) {
	s := New()
	sess := WSSession{Host: "h", Username: "u", Token: "tok", IssuedAt: time.Now()}
	s.PutWSSession("tok", sess)

	got, ok := s.WSSessionByToken("tok")
	require.True(t, ok)
	require.Equal(t, "u", got.Username)

	s.DeleteWSSession("tok")
	_, ok = s.WSSessionByToken("tok")
	require.False(t, ok)
}

func TestForbidEntryExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewWithClock(clock)
	s.Forbid("host")
	require.True(t, s.IsForbidden("host"))

	clock.Advance(forbidEntryTTL + time.Minute)
	require.False(t, s.IsForbidden("host"))
}
