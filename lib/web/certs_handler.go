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
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/portability"
)

// certificates reports the host's TLS certificate inventory via certbot.
// ListCertificates already folds every failure mode (Windows host, missing
// host_password, missing certbot, parse failure) into a status code of its
// own choosing (403/417/204/200/206) that doesn't map onto a single trace
// kind, so this handler writes the response directly instead of routing
// through the generic error taxonomy.
func (h *Handler) certificates(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	wsStream := r.URL.Query().Get("stream") == "true"
	status := portability.ListCertificates(h.ctx.OS, h.ctx.Config.CertbotPath, h.ctx.Config.HostPassword, wsStream)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status.StatusCode)
	json.NewEncoder(w).Encode(status) //nolint:errcheck
	return nil, nil
}
