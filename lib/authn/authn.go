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

// Package authn is the two-tier authentication and abuse-control pipeline:
// bearer-only ("level 1") for read calls, bearer + secondary secret + MFA
// code ("level 2") for mutating/exec calls, with a persistent host-block
// ladder driven by failed-attempt accounting.
package authn

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/thevickypedia/pyninja-go/lib/backend"
	"github.com/thevickypedia/pyninja-go/lib/mfa"
	"github.com/thevickypedia/pyninja-go/lib/session"
)

// blockMinutes is the failure-count -> block-duration (minutes) ladder from
// the spec. Counts outside this table fall back to defaultBlockMinutes.
var blockMinutes = map[int]int{
	4: 5, 5: 10, 6: 20, 7: 40, 8: 80, 9: 160, 10: 220,
}

const (
	defaultBlockMinutes = 60
	softThreshold       = 3  // counter > 3 adds the host to the forbid set
	hardThreshold       = 10 // counter >= 10 forces the 30-day block
	hardBlockSeconds    = 30 * 24 * 60 * 60
)

// Pipeline bundles the collaborators the auth pipeline needs: the
// persistent store, in-memory session state, MFA controller, and the
// static credentials it checks against.
type Pipeline struct {
	Store   *backend.Store
	Session *session.State
	MFA     *mfa.Controller

	APIKey          string
	APISecret       string
	RemoteExecution bool

	Clock clockwork.Clock
	Log   *logrus.Entry
}

// ForbiddenError carries the expiry of a host's active block.
type ForbiddenError struct {
	Host       string
	BlockUntil time.Time
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%q is not allowed until %s", e.Host, e.BlockUntil.Format(time.RFC1123))
}

// now returns the pipeline's clock time, defaulting to wall time.
func (p *Pipeline) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

// checkForbidden implements the forbid check: fast-path set membership,
// then a store read to confirm the block is still live, with lazy expiry
// of stale membership.
func (p *Pipeline) checkForbidden(ctx context.Context, host string) error {
	if !p.Session.IsForbidden(host) {
		return nil
	}
	until, err := p.Store.GetBlockUntil(ctx, host)
	if err != nil {
		return trace.Wrap(err)
	}
	now := p.now().Unix()
	if until > now {
		return &ForbiddenError{Host: host, BlockUntil: time.Unix(until, 0)}
	}
	// Stale: the block has lazily expired. Drop the fast-path membership.
	p.Session.Unforbid(host)
	return nil
}

// normalizeCredential decodes a leading-backslash credential as an escape
// sequence before comparison, matching the source's unicode_escape handling
// for credentials that were themselves backslash-escaped on the wire.
func normalizeCredential(raw string) string {
	if len(raw) == 0 || raw[0] != '\\' {
		return raw
	}
	unquoted, err := strconv.Unquote(`"` + raw + `"`)
	if err != nil {
		return raw
	}
	return unquoted
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Level1 validates the bearer-only tier. On success it logs the connection
// and returns nil. On failure it drives the failure ladder and returns an
// error that the web layer maps to 401/403.
func (p *Pipeline) Level1(ctx context.Context, r *http.Request, bearer string) error {
	host := remoteHost(r)

	if err := p.checkForbidden(ctx, host); err != nil {
		return err
	}

	if constantTimeEqual(normalizeCredential(bearer), p.APIKey) {
		p.Log.WithFields(logrus.Fields{
			"client_host": host,
			"host_header": r.Header.Get("Host"),
			"forwarded":   r.Header.Get("X-Forwarded-For"),
			"user_agent":  r.Header.Get("User-Agent"),
		}).Info("authenticated connection")
		return nil
	}

	if err := p.handleAuthFailure(ctx, host); err != nil {
		return trace.Wrap(err)
	}
	return trace.AccessDenied("Unauthorized")
}

// Level2 validates the bearer + secondary secret + MFA tier.
func (p *Pipeline) Level2(ctx context.Context, r *http.Request, bearer, apiSecret, mfaCode string) error {
	if err := p.Level1(ctx, r, bearer); err != nil {
		return trace.Wrap(err)
	}

	if !p.RemoteExecution || p.APISecret == "" {
		return trace.NotImplemented("Remote execution has been disabled on the server.")
	}

	host := remoteHost(r)
	if constantTimeEqual(apiSecret, p.APISecret) && p.MFA.Verify(ctx, mfaCode) {
		p.Log.WithField("client_host", host).Info("level-2 auth successful")
		return nil
	}

	if err := p.handleAuthFailure(ctx, host); err != nil {
		return trace.Wrap(err)
	}
	return trace.AccessDenied("Unauthorized")
}

// handleAuthFailure implements the failure ladder. It is atomic per host:
// the in-memory counter is incremented first, then the persisted block is
// written (replace semantics), matching the spec exactly, including the
// 30-day hard block at counter >= 10 and the minute table for 4..9 (the
// table's entry for 10 is never reached: the hard block is checked first).
func (p *Pipeline) handleAuthFailure(ctx context.Context, host string) error {
	count := p.Session.IncrementAuthCounter(host)
	now := p.now().Unix()

	switch {
	case count >= hardThreshold:
		until := now + hardBlockSeconds
		p.Session.Forbid(host)
		if err := p.Store.PutBlock(ctx, host, until); err != nil {
			return trace.Wrap(err)
		}
		p.Log.WithField("host", host).Warnf("blocked until %s (30 day hard block)", time.Unix(until, 0).Format(time.RFC1123))
	case count > softThreshold:
		minutes, ok := blockMinutes[count]
		if !ok {
			minutes = defaultBlockMinutes
		}
		until := now + int64(minutes*60)
		p.Session.Forbid(host)
		if err := p.Store.PutBlock(ctx, host, until); err != nil {
			return trace.Wrap(err)
		}
		p.Log.WithField("host", host).Warnf("blocked for %d minutes until %s", minutes, time.Unix(until, 0).Format(time.RFC1123))
	default:
		p.Log.WithField("host", host).Warnf("failed auth, attempt #%d", count)
	}
	return nil
}

// remoteHost is request.client.host: the TCP peer address, never the
// spoofable X-Forwarded-For header. The auth ladder and forbid check key
// on this value exclusively; X-Forwarded-For is only ever logged.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
