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

// Package session holds the process-memory state that is deliberately lost
// on restart: failed-auth counters, the forbid-set fast path, and the live
// websocket session map. None of it is shared across processes.
package session

import (
	"sync"
	"time"

	"github.com/gravitational/ttlmap"
	"github.com/jonboulle/clockwork"
)

// WSSession is a cookie-bound browser UI session, created on /login and
// consulted on every /ws/system tick.
type WSSession struct {
	Host     string
	Username string
	Token    string
	IssuedAt time.Time
}

// forbidEntryTTL bounds how long a fast-path denylist entry survives in
// memory even if nothing ever calls Unforbid — it's a cache of the
// persisted block in lib/backend, not the source of truth, so letting a
// stale entry fall out of the map after the longest possible block
// window is harmless: by then the block it mirrors has expired too. A
// miss is not checked against the persisted store.
const forbidEntryTTL = 30 * 24 * time.Hour

// wsSessionTTL bounds how long a browser UI session can go unused before
// it is evicted from memory, independent of any explicit logout.
const wsSessionTTL = 24 * time.Hour

// State is the single in-memory session object threaded through the
// application context. The forbid set and websocket session map are
// gravitational/ttlmap instances (the same bounded-TTL map the teacher
// uses for connection-rate bookkeeping in lib/limiter) so that entries
// self-evict; authCounters stays a plain mutex-guarded map because its
// lifetime is governed by the failure ladder, not a flat TTL.
type State struct {
	mu           sync.Mutex
	authCounters map[string]int
	forbid       *ttlmap.TtlMap
	wsSessions   *ttlmap.TtlMap // keyed by opaque session token
}

// New returns an empty session State using the real wall clock.
func New() *State {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock is New with an injectable clock, used by tests that need
// to fast-forward past forbid/session TTLs deterministically.
func NewWithClock(clock clockwork.Clock) *State {
	forbid, err := ttlmap.New(10_000, ttlmap.Clock(clock))
	if err != nil {
		panic(err)
	}
	wsSessions, err := ttlmap.New(10_000, ttlmap.Clock(clock))
	if err != nil {
		panic(err)
	}
	return &State{
		authCounters: make(map[string]int),
		forbid:       forbid,
		wsSessions:   wsSessions,
	}
}

// IncrementAuthCounter increments host's failed-attempt tally (creating it
// at 1 if absent) and returns the new value.
func (s *State) IncrementAuthCounter(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCounters[host]++
	return s.authCounters[host]
}

// AuthCounter returns the current tally for host, 0 if none.
func (s *State) AuthCounter(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCounters[host]
}

// ResetAuthCounter clears host's tally. Not called from the success path by
// default — see the Open Question decision recorded in SPEC_FULL.md.
func (s *State) ResetAuthCounter(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authCounters, host)
}

// Forbid adds host to the fast-path denylist.
func (s *State) Forbid(host string) {
	_ = s.forbid.Set(host, struct{}{}, forbidEntryTTL)
}

// Unforbid drops host from the fast-path denylist (used when a persisted
// block has lazily expired).
func (s *State) Unforbid(host string) {
	s.forbid.Remove(host)
}

// IsForbidden reports fast-path denylist membership.
func (s *State) IsForbidden(host string) bool {
	_, ok := s.forbid.Get(host)
	return ok
}

// PutWSSession registers a browser UI session under its opaque token.
func (s *State) PutWSSession(token string, sess WSSession) {
	_ = s.wsSessions.Set(token, sess, wsSessionTTL)
}

// WSSessionByToken looks up a session by its opaque token.
func (s *State) WSSessionByToken(token string) (WSSession, bool) {
	val, ok := s.wsSessions.Get(token)
	if !ok {
		return WSSession{}, false
	}
	sess, ok := val.(WSSession)
	return sess, ok
}

// DeleteWSSession erases a session, e.g. on logout.
func (s *State) DeleteWSSession(token string) {
	s.wsSessions.Remove(token)
}
