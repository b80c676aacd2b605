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

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
)

// issueMFA implements get_mfa: channel comes from the query string on GET,
// the JSON body on POST (the form the teacher's addMFADeviceHandle uses
// for its own request shape).
func (h *Handler) issueMFA(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	channel := r.URL.Query().Get("channel")
	if channel == "" && r.Method == http.MethodPost {
		var body struct {
			Channel string `json:"channel"`
		}
		if err := decodeJSON(r, &body); err == nil {
			channel = body.Channel
		}
	}
	if channel == "" {
		return nil, trace.BadParameter("channel is required")
	}

	msg, err := h.ctx.MFA.Issue(r.Context(), channel)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(msg), nil
}

// invalidateMFA implements delete_mfa.
func (h *Handler) invalidateMFA(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	existed, err := h.ctx.MFA.Invalidate(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !existed {
		return nil, trace.NotFound("no active MFA token")
	}
	return ok("MFA token invalidated"), nil
}
