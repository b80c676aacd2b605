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

package portability

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/gravitational/trace"
)

// DockerController wraps the docker engine client for the handful of
// read/control operations the agent exposes: container/image/volume
// listing, start/stop, and a live `docker stats` snapshot, grounded on
// the agent's original dockerized.py (docker-py's from_env().api.*).
type DockerController struct {
	cli *client.Client
}

// NewDockerController dials the local docker engine the same way
// docker.from_env() does: respecting DOCKER_HOST and friends.
func NewDockerController() (*DockerController, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, trace.Wrap(err, "connecting to docker engine")
	}
	return &DockerController{cli: cli}, nil
}

// Containers lists containers through the engine API: all=true lists every
// container, all=false only running ones (the engine filters), matching the original's get_all_containers/get_running_containers
// split which both call the same underlying listing.
func (d *DockerController) Containers(ctx context.Context, all bool) ([]types.Container, error) {
	list, err := d.cli.ContainerList(ctx, types.ContainerListOptions{All: all})
	if err != nil {
		return nil, trace.Wrap(err, "listing containers")
	}
	return list, nil
}

// ContainerStatus finds the first container whose name or image contains
// the given substring and renders a one-line status string.
func (d *DockerController) ContainerStatus(ctx context.Context, name string) (string, error) {
	containers, err := d.Containers(ctx, true)
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		if strings.Contains(c.Image, name) || containsName(c.Names, name) {
			id := c.ID
			if len(id) > 12 {
				id = id[:12]
			}
			return id + " - " + strings.Join(c.Names, ",") + " - " + c.State + " - " + c.Status, nil
		}
	}
	return "", trace.NotFound("no container matching %q", name)
}

func containsName(names []string, needle string) bool {
	for _, n := range names {
		if strings.Contains(n, needle) {
			return true
		}
	}
	return false
}

// StartContainer and StopContainer resolve the container the same way
// ContainerStatus does, by name-or-image substring match, before issuing
// the engine call — the original CLI accepts container_name loosely too.
func (d *DockerController) StartContainer(ctx context.Context, name string) error {
	id, err := d.resolveContainerID(ctx, name, true)
	if err != nil {
		return err
	}
	return trace.Wrap(d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}))
}

func (d *DockerController) StopContainer(ctx context.Context, name string) error {
	id, err := d.resolveContainerID(ctx, name, false)
	if err != nil {
		return err
	}
	return trace.Wrap(d.cli.ContainerStop(ctx, id, nil))
}

func (d *DockerController) resolveContainerID(ctx context.Context, name string, all bool) (string, error) {
	containers, err := d.Containers(ctx, all)
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		if strings.Contains(c.Image, name) || containsName(c.Names, name) {
			return c.ID, nil
		}
	}
	return "", trace.NotFound("container %q not found", name)
}

// Images lists every image known to the engine.
func (d *DockerController) Images(ctx context.Context) ([]types.ImageSummary, error) {
	list, err := d.cli.ImageList(ctx, types.ImageListOptions{All: true})
	if err != nil {
		return nil, trace.Wrap(err, "listing images")
	}
	return list, nil
}

// Volumes lists every docker volume.
func (d *DockerController) Volumes(ctx context.Context) ([]*volume.Volume, error) {
	resp, err := d.cli.VolumeList(ctx, filters.Args{})
	if err != nil {
		return nil, trace.Wrap(err, "listing volumes")
	}
	return resp.Volumes, nil
}

// Stats shells out to `docker stats --no-stream --format json`, matching
// the original's asyncio.create_subprocess_shell invocation exactly
// (the CLI's one-shot stats snapshot is not exposed over the engine API
// in the same shape, so this stays a subprocess call rather than a
// client.ContainerStats loop).
func Stats(ctx context.Context) ([]map[string]string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", `docker stats --no-stream --format "{{json .}}"`)
	out, err := cmd.Output()
	if err != nil {
		return nil, trace.Wrap(err, "docker stats")
	}
	var rows []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		var row map[string]string
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
