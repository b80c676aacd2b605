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

package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/thevickypedia/pyninja-go/lib/session"
)

// pollInterval is the cooperative-poll cadence for inbound control
// messages while a session is running.
const pollInterval = 100 * time.Millisecond

// tickInterval is how often a snapshot (fresh or cached) is re-sent.
const tickInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server runs the live-metrics websocket state machine described in
// spec.md §4.8: cookie-session auth on open, a cooperative read/compose/
// send loop while running, and clean teardown on disconnect, expiry, or
// an unrecognized client message.
type Server struct {
	Sessions   *session.State
	Composer   *Composer
	Clock      clockwork.Clock
	Log        *logrus.Entry
	MonitorTTL time.Duration
	Recorder   *Recorder

	DefaultRefreshInterval time.Duration
	DefaultCPUInterval     time.Duration
}

// NewServer returns a Server with the spec's default cadences (refresh
// every 5s, a 1s CPU sample) and a real clock.
func NewServer(sessions *session.State, composer *Composer, monitorTTL time.Duration, log *logrus.Entry) *Server {
	return &Server{
		Sessions:               sessions,
		Composer:               composer,
		Clock:                  clockwork.NewRealClock(),
		Log:                    log,
		MonitorTTL:             monitorTTL,
		DefaultRefreshInterval: 5 * time.Second,
		DefaultCPUInterval:     1 * time.Second,
	}
}

// Serve upgrades r into a websocket and drives one session's lifetime.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close() //nolint:errcheck

	cookie, err := r.Cookie("session_token")
	if err != nil {
		s.writeText(conn, "Unauthorized")
		return
	}

	sess, ok := s.Sessions.WSSessionByToken(cookie.Value)
	if !ok {
		s.writeText(conn, "Unauthorized")
		return
	}

	if s.Recorder != nil {
		s.Recorder.WebsocketSessions.Inc()
	}
	s.run(r.Context(), conn, sess)
}

func (s *Server) writeText(conn *websocket.Conn, msg string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (s *Server) run(ctx context.Context, conn *websocket.Conn, sess session.WSSession) {
	refreshInterval := s.DefaultRefreshInterval
	cpuInterval := s.DefaultCPUInterval
	sessionStart := sess.IssuedAt
	var lastRefresh, lastTick time.Time
	var cached *Snapshot

	inbound := make(chan string, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case inbound <- string(data):
			case <-closed:
				return
			}
		}
	}()

	// 100ms cooperative poll of inbound control messages; the snapshot is
	// recomputed/sent on its own, coarser one-second cadence below.
	ticker := s.Clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case msg := <-inbound:
			refresh, cpu, ok := parseControlMessage(msg)
			if !ok {
				return
			}
			if refresh > 0 {
				refreshInterval = refresh
			}
			if cpu > 0 {
				cpuInterval = cpu
			}
			continue
		case <-ticker.Chan():
		}

		now := s.Clock.Now()
		if now.Sub(lastTick) < tickInterval {
			continue
		}
		lastTick = now

		if s.MonitorTTL > 0 && now.Sub(sessionStart) > s.MonitorTTL {
			s.writeText(conn, "Session Expired")
			return
		}

		if cached == nil || now.Sub(lastRefresh) > refreshInterval {
			snap, err := s.Composer.Compose(ctx, cpuInterval)
			if err != nil {
				s.Log.WithError(err).Warn("snapshot composition failed")
			} else {
				cached = snap
				lastRefresh = now
			}
		}

		if cached != nil {
			payload, err := json.Marshal(cached)
			if err != nil {
				s.Log.WithError(err).Warn("snapshot marshal failed")
			} else if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// parseControlMessage accepts "refresh_interval:<int>" and
// "cpu_interval:<int>"; anything else is a signal to break the loop,
// matching spec.md §4.8's "Any other inbound message causes the loop to
// break."
func parseControlMessage(msg string) (refresh, cpu time.Duration, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(msg), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	switch strings.TrimSpace(parts[0]) {
	case "refresh_interval":
		return time.Duration(n) * time.Second, 0, true
	case "cpu_interval":
		return 0, time.Duration(n) * time.Second, true
	default:
		return 0, 0, false
	}
}
