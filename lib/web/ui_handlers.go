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

package web

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/session"
)

const sessionCookieName = "session_token"

// loginForm answers a bare GET /login with the login state: whether a
// valid session cookie is already present. The UI's static assets render
// the actual form; this handler only reports auth state, matching the
// teacher's preference for JSON-over-the-wire handlers instead of
// server-rendered HTML.
func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if _, ok := h.ctx.Session.WSSessionByToken(cookie.Value); ok {
			return map[string]bool{"authenticated": true}, nil
		}
	}
	return map[string]bool{"authenticated": false}, nil
}

// login validates "Authorization: Basic base64(username:password)" against
// monitor_username/monitor_password, mints an opaque session token, and
// registers it in the in-memory session map. On success the handler
// answers a redirectError so writeError's /login special case turns it
// into {"redirect_url": "/monitor"} JSON rather than a real 307 (the UI's
// AJAX login call expects a body, not a redirect response).
func (h *Handler) login(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	username, password, ok := basicAuth(r)
	if !ok ||
		subtle.ConstantTimeCompare([]byte(username), []byte(h.ctx.Config.MonitorUsername)) != 1 ||
		subtle.ConstantTimeCompare([]byte(password), []byte(h.ctx.Config.MonitorPassword)) != 1 {
		return nil, redirect("/error", "Incorrect username or password")
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	h.ctx.Session.PutWSSession(token, session.WSSession{
		Host:     remoteAddr(r),
		Username: username,
		Token:    token,
		IssuedAt: time.Now(),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	return nil, redirect("/monitor", "")
}

// logout clears the session cookie and its server-side entry.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		h.ctx.Session.DeleteWSSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
	return nil, redirect("/login", "")
}

// monitor is the session-gated landing page for the live-metrics UI.
func (h *Handler) monitor(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, redirect("/login", "")
	}
	sess, ok := h.ctx.Session.WSSessionByToken(cookie.Value)
	if !ok {
		return nil, redirect("/login", "Session Expired")
	}
	return map[string]interface{}{
		"username":                sess.Username,
		"default_refresh_interval": 5,
		"default_cpu_interval":     1,
	}, nil
}

// uiError is the landing spot redirectError points UI failures at; it
// always answers 200 so the browser can render the detail cookie's
// message without following another redirect.
func (h *Handler) uiError(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	detail := "Unauthorized"
	if cookie, err := r.Cookie("detail"); err == nil {
		detail = cookie.Value
	}
	return map[string]string{"detail": detail}, nil
}

func (h *Handler) docs(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"docs": "see /health for liveness; full Swagger generation is a packaging-time step"}) //nolint:errcheck
	return nil, nil
}

func basicAuth(r *http.Request) (username, password string, ok bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, prefix))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func newSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
