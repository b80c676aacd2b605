package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/thevickypedia/pyninja-go/lib/backend"
	"github.com/thevickypedia/pyninja-go/lib/mfa"
	"github.com/thevickypedia/pyninja-go/lib/session"
)

func newPipeline(t *testing.T) (*Pipeline, clockwork.FakeClock) {
	t.Helper()
	store, err := backend.Open(filepath.Join(t.TempDir(), "ninja.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := clockwork.NewFakeClock()
	log := logrus.NewEntry(logrus.New())
	ctrl := mfa.NewController(store, nil, log, clock)

	return &Pipeline{
		Store:           store,
		Session:         session.New(),
		MFA:             ctrl,
		APIKey:          "k",
		APISecret:       "",
		RemoteExecution: false,
		Clock:           clock,
		Log:             log,
	}, clock
}

func reqFrom(host string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/get-cpu", nil)
	r.RemoteAddr = host + ":5555"
	return r
}

func TestLevel1HappyPath(t *testing.T) {
	p, _ := newPipeline(t)
	require.NoError(t, p.Level1(context.Background(), reqFrom("10.0.0.1"), "k"))
	require.Zero(t, p.Session.AuthCounter("10.0.0.1"))
}

func TestLevel1BackslashEscapedCredential(t *testing.T) {
	p, _ := newPipeline(t)
	p.APIKey = "k\ty" // contains a literal tab, reachable only via escape decoding
	require.NoError(t, p.Level1(context.Background(), reqFrom("10.0.0.1"), `\x6b\x09\x79`))
}

func TestFailureLadderBlocksAtFourthAttempt(t *testing.T) {
	p, clock := newPipeline(t)
	host := "10.0.0.2"
	req := reqFrom(host)

	for i := 0; i < 3; i++ {
		err := p.Level1(context.Background(), req, "wrong")
		require.Error(t, err)
		require.False(t, p.Session.IsForbidden(host))
	}

	err := p.Level1(context.Background(), req, "wrong")
	require.Error(t, err)
	require.True(t, p.Session.IsForbidden(host))

	until, err := p.Store.GetBlockUntil(context.Background(), host)
	require.NoError(t, err)
	require.EqualValues(t, clock.Now().Unix()+5*60, until)
}

func TestFailureLadderHardBlockAtTen(t *testing.T) {
	p, clock := newPipeline(t)
	host := "10.0.0.3"
	req := reqFrom(host)

	for i := 0; i < 10; i++ {
		// Outlast the previous ladder block so the forbid check lets this
		// attempt reach the credential comparison and count as a failure.
		clock.Advance(4 * time.Hour)
		_ = p.Level1(context.Background(), req, "wrong")
	}

	until, err := p.Store.GetBlockUntil(context.Background(), host)
	require.NoError(t, err)
	require.EqualValues(t, clock.Now().Unix()+2_592_000, until)
}

func TestForbiddenHostFailsFastWithExpiry(t *testing.T) {
	p, clock := newPipeline(t)
	host := "10.0.0.4"
	require.NoError(t, p.Store.PutBlock(context.Background(), host, clock.Now().Unix()+600))
	p.Session.Forbid(host)

	err := p.Level1(context.Background(), reqFrom(host), "k")
	require.Error(t, err)
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func TestStaleForbidMembershipLazilyExpires(t *testing.T) {
	p, clock := newPipeline(t)
	host := "10.0.0.5"
	require.NoError(t, p.Store.PutBlock(context.Background(), host, clock.Now().Unix()-10))
	p.Session.Forbid(host)

	require.NoError(t, p.Level1(context.Background(), reqFrom(host), "k"))
	require.False(t, p.Session.IsForbidden(host))
}

func TestLevel2RefusesWhenRemoteExecutionDisabled(t *testing.T) {
	p, _ := newPipeline(t)
	err := p.Level2(context.Background(), reqFrom("10.0.0.6"), "k", "secret", "000000")
	require.Error(t, err) // sanity: non-nil
	require.Contains(t, err.Error(), "disabled")
}

func TestAuthCounterNotResetOnSuccess(t *testing.T) {
	p, _ := newPipeline(t)
	host := "10.0.0.7"
	_ = p.Level1(context.Background(), reqFrom(host), "wrong")
	require.Equal(t, 1, p.Session.AuthCounter(host))

	require.NoError(t, p.Level1(context.Background(), reqFrom(host), "k"))
	require.Equal(t, 1, p.Session.AuthCounter(host), "spec preserves the source's never-reset-on-success behavior")
}
