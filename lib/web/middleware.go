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
	"net/http"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/ratelimit"
)

// bearerToken pulls the credential out of "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return auth
}

// level1 wraps a handler behind bearer-only auth.
func (h *Handler) level1(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
		if err := h.ctx.Auth.Level1(r.Context(), r, bearerToken(r)); err != nil {
			h.recorder.AuthFailures.WithLabelValues("level1").Inc()
			return nil, err
		}
		return next(w, r, p)
	}
}

// level2 wraps a handler behind bearer + secondary secret + MFA auth. The
// secondary secret travels in the "token" header and the MFA code in
// "mfa-code", mirroring the original agent's header-based secondary
// credential (apikey stays in the standard Authorization header).
func (h *Handler) level2(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
		apiSecret := r.Header.Get("token")
		mfaCode := r.Header.Get("mfa-code")
		if err := h.ctx.Auth.Level2(r.Context(), r, bearerToken(r), apiSecret, mfaCode); err != nil {
			h.recorder.AuthFailures.WithLabelValues("level2").Inc()
			return nil, err
		}
		return next(w, r, p)
	}
}

// rateLimited evaluates every configured limiter for the request's
// identifier before calling next; any tripped limiter short-circuits with
// 429 and a Retry-After header, per spec.md §4.4.
func (h *Handler) rateLimited(next handlerFunc) handlerFunc {
	if len(h.ctx.Limiters) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
		id := ratelimit.Identifier(r)
		for _, limiter := range h.ctx.Limiters {
			if err := limiter.Allow(id); err != nil {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter()))
				return nil, trace.Wrap(err)
			}
		}
		return next(w, r, p)
	}
}
