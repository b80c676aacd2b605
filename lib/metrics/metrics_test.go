package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/thevickypedia/pyninja-go/lib/session"
)

func dialWS(t *testing.T, srv *httptest.Server, cookie string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/system"
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", "session_token="+cookie)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	return conn
}

func TestServeRejectsMissingSessionCookie(t *testing.T) {
	sessions := session.New()
	s := NewServer(sessions, nil, time.Hour, logrus.NewEntry(logrus.New()))
	srv := httptest.NewServer(http.HandlerFunc(s.Serve))
	defer srv.Close()

	conn := dialWS(t, srv, "")
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "Unauthorized", string(msg))
}

func TestServeRejectsUnknownSessionToken(t *testing.T) {
	sessions := session.New()
	s := NewServer(sessions, nil, time.Hour, logrus.NewEntry(logrus.New()))
	srv := httptest.NewServer(http.HandlerFunc(s.Serve))
	defer srv.Close()

	conn := dialWS(t, srv, "does-not-exist")
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "Unauthorized", string(msg))
}

func TestParseControlMessage(t *testing.T) {
	refresh, cpu, ok := parseControlMessage("refresh_interval:10")
	require.True(t, ok)
	require.Equal(t, 10*time.Second, refresh)
	require.Zero(t, cpu)

	_, cpu, ok = parseControlMessage("cpu_interval:2")
	require.True(t, ok)
	require.Equal(t, 2*time.Second, cpu)

	_, _, ok = parseControlMessage("garbage")
	require.False(t, ok)

	_, _, ok = parseControlMessage("refresh_interval:not-a-number")
	require.False(t, ok)
}
