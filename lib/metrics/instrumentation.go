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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the process-wide Prometheus counters the agent exposes at
// /metrics, alongside the per-request JSON the live websocket already
// carries. These are cheap to export and answer the operational question
// the websocket snapshot doesn't: trends over the life of the process
// rather than the current instant.
type Recorder struct {
	registry          *prometheus.Registry
	AuthFailures      *prometheus.CounterVec
	UploadBytesTotal  prometheus.Counter
	WebsocketSessions prometheus.Counter
}

// NewRecorder builds a Recorder with its own registry, so tests can spin up
// isolated Recorders without colliding on the global default registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		AuthFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ninjad",
			Name:      "auth_failures_total",
			Help:      "Authentication ladder rejections, labeled by stage.",
		}, []string{"stage"}),
		UploadBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ninjad",
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted across all chunked and single-shot uploads.",
		}),
		WebsocketSessions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ninjad",
			Name:      "websocket_sessions_total",
			Help:      "Live-metrics websocket connections accepted.",
		}),
	}
	return r
}

// Handler exposes the registry in the standard text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
