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

// Package ratelimit implements a per-identifier fixed-window counter, keyed
// by client IP plus URL path. Multiple Limiters may be chained in front of
// one route; each evaluates independently.
package ratelimit

import (
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// Limiter is one {max_requests, seconds} window.
type Limiter struct {
	MaxRequests int
	Window      time.Duration

	clock clockwork.Clock
	mu    sync.Mutex
	// counts and starts are keyed by identifier so one Limiter instance
	// can be shared across every route it's installed on.
	counts map[string]int
	starts map[string]time.Time
}

// New builds a Limiter allowing maxRequests per window.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		MaxRequests: maxRequests,
		Window:      window,
		clock:       clockwork.NewRealClock(),
		counts:      make(map[string]int),
		starts:      make(map[string]time.Time),
	}
}

// WithClock overrides the clock, for deterministic tests.
func (l *Limiter) WithClock(clock clockwork.Clock) *Limiter {
	l.clock = clock
	return l
}

// Identifier builds the (forwarded-for head or remote host) + ":" + path key.
func Identifier(r *http.Request) string {
	host := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else if h, _, err := splitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return host + ":" + r.URL.Path
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

// Allow evaluates the window for identifier id, advancing/resetting it as
// needed. It returns a non-nil error (carrying Retry-After metadata via
// RetryAfter) when the limit is exceeded.
func (l *Limiter) Allow(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	start, ok := l.starts[id]
	if !ok || now.Sub(start) > l.Window {
		l.counts[id] = 1
		l.starts[id] = now
		return nil
	}

	if l.counts[id] >= l.MaxRequests {
		return trace.LimitExceeded("too many requests")
	}
	l.counts[id]++
	return nil
}

// RetryAfter is the value to place in the Retry-After header on a 429.
func (l *Limiter) RetryAfter() int {
	return int(math.Ceil(l.Window.Seconds()))
}
