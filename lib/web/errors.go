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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/authn"
	"github.com/thevickypedia/pyninja-go/lib/exec"
	"github.com/thevickypedia/pyninja-go/lib/mfa"
)

// decodeJSON reads and decodes r's body into v, wrapping decode failures
// as a bad-parameter error so writeError reports 400.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return trace.BadParameter("invalid request body: %v", err)
	}
	return nil
}

// redirectError is the normal return channel for UI handlers that need the
// browser to land somewhere else: /login on a bad credential, /monitor on
// a fresh one. A non-empty Detail is surfaced as the "detail" cookie.
type redirectError struct {
	Location string
	Detail   string
}

func (e *redirectError) Error() string { return "redirect to " + e.Location }

func redirect(location, detail string) error {
	return &redirectError{Location: location, Detail: detail}
}

// OK is the uniform success body for mutating endpoints that have nothing
// richer to report (start-service, stop-service, delete-content, ...).
type OK struct {
	Message string `json:"message"`
}

func ok(msg string) OK { return OK{Message: msg} }

// handlerFunc is the shape every route handler in this package implements.
// Returning (payload, nil) marshals payload as the 200 body; returning
// (nil, err) routes err through wrap's status mapping.
type handlerFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error)

// wrap adapts a handlerFunc into an httprouter.Handle: marshal-on-success,
// status-from-error-kind on failure. A handler that already wrote the
// response body itself (file downloads, command streaming) signals that by
// returning (nil, nil).
func wrap(h handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		payload, err := h(w, r, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if payload == nil {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			return
		}
	}
}

// writeError converts err into a response. *redirectError becomes a JSON
// {"redirect_url":...} for the login endpoint or a true 307 elsewhere, with
// Detail (if set) attached as an HTTP-only, strict-same-site cookie. A
// *authn.ForbiddenError or anything trace-wrapped is mapped by kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var redir *redirectError
	if re, ok := err.(*redirectError); ok {
		redir = re
	}
	if redir != nil {
		if redir.Detail != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     "detail",
				Value:    redir.Detail,
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
				Path:     "/",
			})
		}
		if r.URL.Path == "/login" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"redirect_url": redir.Location}) //nolint:errcheck
			return
		}
		http.Redirect(w, r, redir.Location, http.StatusTemporaryRedirect)
		return
	}

	status, detail := statusOf(err)
	http.Error(w, detail, status)
}

// statusOf implements spec.md §7's taxonomy. Precedence matches how the
// pipeline actually raises these: a forbid-ladder block is checked before
// falling back to the generic trace-kind mapping. Level2 returns Level1's
// error through trace.Wrap, which boxes it in *trace.TraceErr, so both
// sentinel kinds below are unwrapped with errors.As rather than a direct
// type assertion.
func statusOf(err error) (int, string) {
	var fe *authn.ForbiddenError
	if errors.As(err, &fe) {
		return http.StatusForbidden, fe.Error()
	}

	var te *exec.TimeoutError
	if errors.As(err, &te) {
		return http.StatusRequestTimeout, te.Error()
	}

	if errors.Is(err, mfa.ErrTeapot) {
		return http.StatusTeapot, err.Error()
	}

	switch {
	case trace.IsAccessDenied(err):
		return http.StatusUnauthorized, "Unauthorized"
	case trace.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case trace.IsBadParameter(err):
		return http.StatusBadRequest, err.Error()
	case trace.IsLimitExceeded(err):
		return http.StatusTooManyRequests, err.Error()
	case trace.IsNotImplemented(err):
		return http.StatusNotImplemented, err.Error()
	case trace.IsConnectionProblem(err):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
