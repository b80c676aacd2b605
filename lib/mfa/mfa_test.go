package mfa

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/thevickypedia/pyninja-go/lib/backend"
)

type fakeChannel struct {
	name      string
	dispatched []string
	err       error
}

func (f *fakeChannel) Name() string { return f.name }
func (f *fakeChannel) Dispatch(ctx context.Context, token string) error {
	f.dispatched = append(f.dispatched, token)
	return f.err
}

func newTestController(t *testing.T, channels map[string]Channel) (*Controller, *backend.Store, clockwork.FakeClock) {
	t.Helper()
	store, err := backend.Open(filepath.Join(t.TempDir(), "ninja.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := clockwork.NewFakeClock()
	ctrl := NewController(store, channels, logrus.NewEntry(logrus.New()), clock)
	ctrl.MFATimeout = 10 * time.Minute
	ctrl.MFAResendDelay = 5 * time.Minute
	return ctrl, store, clock
}

func TestIssueDispatchesAndStoresToken(t *testing.T) {
	ch := &fakeChannel{name: "email"}
	ctrl, store, clock := newTestController(t, map[string]Channel{"email": ch})

	msg, err := ctrl.Issue(context.Background(), "email")
	require.NoError(t, err)
	require.Equal(t, "OTP has been sent", msg)
	require.Len(t, ch.dispatched, 1)

	tok, err := store.GetToken(context.Background(), backend.TableMFAToken)
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.Equal(t, clock.Now().Add(10*time.Minute).Unix(), tok.Expiry)
}

func TestIssueThrottlesResend(t *testing.T) {
	ch := &fakeChannel{name: "email"}
	ctrl, _, clock := newTestController(t, map[string]Channel{"email": ch})

	_, err := ctrl.Issue(context.Background(), "email")
	require.NoError(t, err)

	clock.Advance(1 * time.Minute)
	msg, err := ctrl.Issue(context.Background(), "email")
	require.NoError(t, err)
	require.Contains(t, msg, "still valid")
	require.Len(t, ch.dispatched, 1, "second dispatch must not happen while throttled")
}

func TestIssueAllowsResendAfterDelay(t *testing.T) {
	ch := &fakeChannel{name: "email"}
	ctrl, _, clock := newTestController(t, map[string]Channel{"email": ch})

	_, err := ctrl.Issue(context.Background(), "email")
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	msg, err := ctrl.Issue(context.Background(), "email")
	require.NoError(t, err)
	require.Equal(t, "OTP has been sent", msg)
	require.Len(t, ch.dispatched, 2)
}

func TestIssueUnknownChannelIsTeapot(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	_, err := ctrl.Issue(context.Background(), "telegram")
	require.ErrorIs(t, err, ErrTeapot)
}

func TestVerifyStoredTokenIsSingleUse(t *testing.T) {
	ctrl, store, clock := newTestController(t, nil)
	require.NoError(t, store.UpdateToken(context.Background(), backend.TableMFAToken, backend.Token{
		Token: "abc123", Expiry: clock.Now().Unix() + 600, Requester: "email",
	}))

	require.True(t, ctrl.Verify(context.Background(), "abc123"))
	require.False(t, ctrl.Verify(context.Background(), "abc123"), "token must be invalidated after first use")
}

func TestVerifyEmptyCodeIsFalse(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	require.False(t, ctrl.Verify(context.Background(), ""))
}

func TestVerifyTOTPPreferredOverStoredToken(t *testing.T) {
	ctrl, store, clock := newTestController(t, nil)
	secret := "JBSWY3DPEHPK3PXP"
	ctrl.AuthenticatorSecret = secret

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.UpdateToken(context.Background(), backend.TableMFAToken, backend.Token{
		Token: "other-token", Expiry: clock.Now().Unix() + 600, Requester: "email",
	}))

	require.True(t, ctrl.Verify(context.Background(), code))

	// Stored token must still be intact: TOTP path didn't consume it.
	tok, err := store.GetToken(context.Background(), backend.TableMFAToken)
	require.NoError(t, err)
	require.NotNil(t, tok)
}

func TestInvalidateReportsAbsence(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	existed, err := ctrl.Invalidate(context.Background())
	require.NoError(t, err)
	require.False(t, existed)
}
