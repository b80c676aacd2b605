/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package mfa is the multifactor token lifecycle: pluggable delivery
// channels (email, push, authenticator-app TOTP) sharing one short-lived
// single-token store with resend throttling.
package mfa

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"

	"github.com/thevickypedia/pyninja-go/lib/backend"
)

// Channel dispatches a freshly generated token to the operator. The
// controller stores exactly the token it passed to Dispatch; a channel
// cannot substitute a shorter code of its own.
type Channel interface {
	// Name is the requester tag stored alongside the token.
	Name() string
	// Dispatch delivers token to the operator over this channel.
	Dispatch(ctx context.Context, token string) error
}

// Controller enforces the single-active-token invariant, the resend
// throttle, channel dispatch, and TOTP verification.
type Controller struct {
	store    *backend.Store
	channels map[string]Channel
	log      *logrus.Entry
	clock    clockwork.Clock

	// AuthenticatorSecret, if set, makes TOTP the first verification path.
	AuthenticatorSecret string
	MFATimeout          time.Duration
	MFAResendDelay       time.Duration
}

// NewController wires a Controller against store, a set of channels
// (may be nil/empty; Issue will report ErrTeapot for anything not
// registered), a logger, and a clock (nil defaults to wall time).
func NewController(store *backend.Store, channels map[string]Channel, log *logrus.Entry, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if channels == nil {
		channels = map[string]Channel{}
	}
	return &Controller{
		store:       store,
		channels:    channels,
		log:         log,
		clock:       clock,
		MFATimeout:  5 * time.Minute,
		MFAResendDelay: 3 * time.Minute,
	}
}

// ErrTeapot signals a channel whose delivery mechanism is explicitly
// unimplemented (Telegram, per the spec), reported with 418.
var ErrTeapot = trace.NotImplemented("channel delivery is not implemented")

// generateToken returns an opaque token of at least 86 characters, matching
// the "opaque, ≥86 chars unless the channel demands shorter" invariant;
// channels that need a short code generate their own. Three concatenated
// UUIDv4s (32 hex chars each once the hyphens are stripped) clear the
// length floor with room to spare.
func generateToken() (string, error) {
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", trace.Wrap(err)
		}
		sb.WriteString(strings.ReplaceAll(id.String(), "-", ""))
	}
	return sb.String(), nil
}

// Issue implements get_mfa: resend-throttle check, channel dispatch, atomic
// replace of the mfa_token row. It returns a human message to surface to
// the caller and an error only for hard failures: an unregistered channel
// (ErrTeapot), a store error, or a failed dispatch. A throttled resend is
// not an error: it returns the throttle message with a nil error, since
// the spec requires it to answer 200 OK.
func (c *Controller) Issue(ctx context.Context, channelName string) (string, error) {
	channel, ok := c.channels[channelName]
	if !ok {
		return "", ErrTeapot
	}

	if msg, throttled, err := c.resendStatus(ctx); err != nil {
		return "", trace.Wrap(err)
	} else if throttled {
		return msg, nil
	}

	token, err := generateToken()
	if err != nil {
		return "", trace.Wrap(err)
	}
	if err := channel.Dispatch(ctx, token); err != nil {
		return "", trace.Wrap(err)
	}

	expiry := c.clock.Now().Add(c.MFATimeout).Unix()
	if err := c.store.UpdateToken(ctx, backend.TableMFAToken, backend.Token{
		Token: token, Expiry: expiry, Requester: channel.Name(),
	}); err != nil {
		return "", trace.Wrap(err)
	}
	return "OTP has been sent", nil
}

// resendStatus reads the existing token row and decides whether a resend
// is still throttled, per spec.md §4.5 step 2.
func (c *Controller) resendStatus(ctx context.Context) (string, bool, error) {
	existing, err := c.store.GetToken(ctx, backend.TableMFAToken)
	if err != nil {
		return "", false, trace.Wrap(err)
	}
	if existing == nil {
		return "", false, nil
	}

	generatedAt := existing.Expiry - int64(c.MFATimeout.Seconds())
	resendFloor := c.clock.Now().Unix() - int64(c.MFAResendDelay.Seconds())
	if generatedAt <= resendFloor {
		return "", false, nil
	}

	remaining := time.Duration(generatedAt-resendFloor) * time.Second
	msg := fmt.Sprintf(
		"A recent MFA token sent via %s is still valid. You can request a new one in %s.",
		existing.Requester, remaining.Round(time.Second),
	)
	return msg, true, nil
}

// Verify implements verify_mfa: TOTP first if a shared secret is
// configured, then a constant-time compare against the stored token. A
// matched stored token is invalidated (single-use).
func (c *Controller) Verify(ctx context.Context, code string) bool {
	if code == "" {
		c.log.Error("no MFA code provided")
		return false
	}

	if c.AuthenticatorSecret != "" && totp.Validate(code, c.AuthenticatorSecret) {
		c.log.Info("MFA code validated via authenticator app")
		return true
	}

	existing, err := c.store.GetToken(ctx, backend.TableMFAToken)
	if err != nil {
		c.log.WithError(err).Error("failed to read stored MFA token")
		return false
	}
	if existing != nil && subtle.ConstantTimeCompare([]byte(code), []byte(existing.Token)) == 1 {
		if _, err := c.store.DeleteToken(ctx, backend.TableMFAToken); err != nil {
			c.log.WithError(err).Error("failed to invalidate consumed MFA token")
		}
		c.log.Info("MFA code validated via stored token")
		return true
	}

	c.log.Error("invalid MFA code provided")
	return false
}

// Invalidate implements delete_mfa: removes the active token, reporting
// whether one existed.
func (c *Controller) Invalidate(ctx context.Context) (bool, error) {
	existed, err := c.store.DeleteToken(ctx, backend.TableMFAToken)
	return existed, trace.Wrap(err)
}
