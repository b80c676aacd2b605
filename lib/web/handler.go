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

// Package web registers the HTTP surface described in spec.md §6 on a
// httprouter.Router: portability-layer reads, docker and service control,
// command execution, file transfer, certificates, MFA, the session-cookie
// UI routes, and the live-metrics websocket. Every handler has the shape
// func(w, r, p) (interface{}, error); the wrap adapter turns that into an
// httprouter.Handle, matching the teacher's own preference for explicit
// returns over writing the response body inline.
package web

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/thevickypedia/pyninja-go/lib/metrics"
	"github.com/thevickypedia/pyninja-go/lib/ninjacontext"
	"github.com/thevickypedia/pyninja-go/lib/portability"
	"github.com/thevickypedia/pyninja-go/lib/transfer"
)

// Handler holds the application context plus the handful of collaborators
// that don't belong in ninjacontext.Context because they're specific to
// the HTTP layer (the chunked-upload tracker, the metrics websocket
// server, and its Prometheus recorder). Docker clients are built per call.
type Handler struct {
	ctx      *ninjacontext.Context
	uploader *transfer.Uploader
	metrics  *metrics.Server
	recorder *metrics.Recorder
	log      *logrus.Entry
}

// NewHandler builds a Handler from an already-wired application context.
func NewHandler(appCtx *ninjacontext.Context) *Handler {
	composer := &metrics.Composer{
		HostOS:         appCtx.OS,
		ServiceLib:     appCtx.Config.ServiceLib,
		WatchServices:  appCtx.Config.Services,
		WatchProcesses: appCtx.Config.Processes,
		ProcessLookup:  processLookup,
	}
	recorder := metrics.NewRecorder()
	server := metrics.NewServer(appCtx.Session, composer, appCtx.Config.MonitorSessionDuration(), appCtx.Log.WithField("component", "metrics"))
	server.Recorder = recorder
	return &Handler{
		ctx:      appCtx,
		uploader: transfer.NewUploader(),
		metrics:  server,
		recorder: recorder,
		log:      appCtx.Log.WithField("component", "web"),
	}
}

// dockerController lazily constructs a DockerController per call; the
// docker daemon may not be running on a given host and every docker-backed
// route must fail with a clean 503 rather than panicking a long-lived
// client at startup.
func (h *Handler) dockerController() (*portability.DockerController, error) {
	return portability.NewDockerController()
}

// Routes returns a router with every endpoint from spec.md §6 registered.
func (h *Handler) Routes() *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(h.health))
	router.GET("/docs", wrap(h.docs))
	router.GET("/metrics", h.prometheusMetrics)

	router.GET("/get-ip", wrap(h.rateLimited(h.level1(h.getIP))))
	router.GET("/get-cpu", wrap(h.rateLimited(h.level1(h.getCPU))))
	router.GET("/get-cpu-load", wrap(h.rateLimited(h.level1(h.getCPULoad))))
	router.GET("/get-memory", wrap(h.rateLimited(h.level1(h.getMemory))))
	router.GET("/get-disk", wrap(h.rateLimited(h.level1(h.getDisk))))
	router.GET("/get-all-disks", wrap(h.rateLimited(h.level1(h.getAllDisks))))
	router.GET("/get-processor", wrap(h.rateLimited(h.level1(h.getProcessor))))

	router.GET("/service-status", wrap(h.rateLimited(h.level1(h.serviceStatus))))
	router.GET("/process-status", wrap(h.rateLimited(h.level1(h.processStatus))))
	router.GET("/service-usage", wrap(h.rateLimited(h.level1(h.serviceUsage))))
	router.GET("/process-usage", wrap(h.rateLimited(h.level1(h.processUsage))))
	router.POST("/start-service", wrap(h.rateLimited(h.level2(h.startService))))
	router.POST("/stop-service", wrap(h.rateLimited(h.level2(h.stopService))))

	router.GET("/docker-container", wrap(h.rateLimited(h.level1(h.dockerContainers))))
	router.GET("/docker-image", wrap(h.rateLimited(h.level1(h.dockerImages))))
	router.GET("/docker-volume", wrap(h.rateLimited(h.level1(h.dockerVolumes))))
	router.GET("/docker-stats", wrap(h.rateLimited(h.level1(h.dockerStats))))
	router.POST("/start-docker-container", wrap(h.rateLimited(h.level2(h.startDockerContainer))))
	router.POST("/stop-docker-container", wrap(h.rateLimited(h.level2(h.stopDockerContainer))))

	router.POST("/run-command", wrap(h.rateLimited(h.level2(h.runCommand))))

	router.POST("/list-files", wrap(h.rateLimited(h.level2(h.listFiles))))
	router.POST("/get-file", wrap(h.rateLimited(h.level2(h.getFile))))
	router.POST("/delete-content", wrap(h.rateLimited(h.level2(h.deleteContent))))
	router.PUT("/put-file", wrap(h.rateLimited(h.level2(h.putFile))))
	router.PUT("/put-large-file", wrap(h.rateLimited(h.level2(h.putLargeFile))))
	router.GET("/get-large-file", wrap(h.rateLimited(h.level2(h.getLargeFile))))

	router.GET("/certificates", wrap(h.rateLimited(h.level1(h.certificates))))

	router.GET("/mfa", wrap(h.rateLimited(h.level1(h.issueMFA))))
	router.POST("/mfa", wrap(h.rateLimited(h.level1(h.issueMFA))))
	router.DELETE("/mfa", wrap(h.rateLimited(h.level1(h.invalidateMFA))))

	router.GET("/login", wrap(h.loginForm))
	router.POST("/login", wrap(h.login))
	router.GET("/logout", wrap(h.logout))
	router.GET("/monitor", wrap(h.monitor))
	router.GET("/error", wrap(h.uiError))

	router.GET("/ws/system", adaptWS(h.metrics))

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	return ok("healthy"), nil
}

// prometheusMetrics exposes the process-wide counters in the standard text
// exposition format; it bypasses wrap since promhttp's handler owns the
// response itself.
func (h *Handler) prometheusMetrics(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	h.recorder.Handler().ServeHTTP(w, r)
}

// adaptWS lets metrics.Server.Serve (a plain http.HandlerFunc; the upgrade
// itself doesn't use any httprouter.Params) sit in the same router as
// everything else.
func adaptWS(s *metrics.Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.Serve(w, r)
	}
}
