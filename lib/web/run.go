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
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/exec"
)

// runCommandRequest is the JSON body for /run-command.
type runCommandRequest struct {
	Command       string  `json:"command"`
	Timeout       float64 `json:"timeout"`
	Stream        bool    `json:"stream"`
	StreamTimeout float64 `json:"stream_timeout"`
	Shell         bool    `json:"shell"`
}

func (h *Handler) runCommand(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	var req runCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		return nil, trace.BadParameter("command is required")
	}
	if req.Timeout <= 0 {
		req.Timeout = 3
	}

	if req.Stream {
		streamTimeout := time.Duration(req.StreamTimeout * float64(time.Second))
		if streamTimeout <= 0 {
			streamTimeout = h.ctx.Config.MFATimeoutDuration()
		}
		if streamTimeout > h.ctx.Config.MFATimeoutDuration() {
			return nil, trace.BadParameter("stream_timeout must not exceed mfa_timeout")
		}
		if err := exec.Stream(r.Context(), req.Command, streamTimeout, req.Shell, w); err != nil {
			return nil, trace.Wrap(err)
		}
		return nil, nil
	}

	timeout := time.Duration(req.Timeout * float64(time.Second))
	result, err := exec.Run(r.Context(), req.Command, timeout, req.Shell, false)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result, nil
}
