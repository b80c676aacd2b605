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

	"github.com/thevickypedia/pyninja-go/lib/portability"
)

func (h *Handler) startService(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("service_name")
	if name == "" {
		return nil, trace.BadParameter("service_name is required")
	}
	controller := portability.NewServiceController(h.ctx.OS, h.ctx.Config.ServiceLib)
	if err := controller.Start(name); err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(name + " started"), nil
}

func (h *Handler) stopService(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("service_name")
	if name == "" {
		return nil, trace.BadParameter("service_name is required")
	}
	controller := portability.NewServiceController(h.ctx.OS, h.ctx.Config.ServiceLib)
	if err := controller.Stop(name); err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(name + " stopped"), nil
}

func (h *Handler) dockerContainers(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	d, err := h.dockerController()
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	all := r.URL.Query().Get("all") == "true"
	containers, err := d.Containers(r.Context(), all)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return containers, nil
}

func (h *Handler) dockerImages(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	d, err := h.dockerController()
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	images, err := d.Images(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return images, nil
}

func (h *Handler) dockerVolumes(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	d, err := h.dockerController()
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	volumes, err := d.Volumes(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return volumes, nil
}

func (h *Handler) dockerStats(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	stats, err := portability.Stats(r.Context())
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	return stats, nil
}

func (h *Handler) startDockerContainer(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("container_name")
	if name == "" {
		return nil, trace.BadParameter("container_name is required")
	}
	d, err := h.dockerController()
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	if err := d.StartContainer(r.Context(), name); err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(name + " started"), nil
}

func (h *Handler) stopDockerContainer(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("container_name")
	if name == "" {
		return nil, trace.BadParameter("container_name is required")
	}
	d, err := h.dockerController()
	if err != nil {
		return nil, trace.ConnectionProblem(err, "docker daemon unavailable")
	}
	if err := d.StopContainer(r.Context(), name); err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(name + " stopped"), nil
}
