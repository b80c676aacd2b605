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

// Package metrics composes and streams live host telemetry over a
// websocket: per-core CPU, memory, swap, disk, load averages, docker
// stats, and watched service/process state.
package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/thevickypedia/pyninja-go/lib/portability"
)

// Snapshot is one websocket tick's worth of composed telemetry.
type Snapshot struct {
	CPUPercent   []float64              `json:"cpu_percent"`
	Memory       *mem.VirtualMemoryStat `json:"memory_info"`
	Swap         *mem.SwapMemoryStat    `json:"swap_info"`
	Disk         *disk.UsageStat        `json:"disk_info"`
	LoadAverages LoadAverages           `json:"load_averages"`
	DockerStats  []map[string]string    `json:"docker_stats"`
	ServiceStats []ServiceStat          `json:"service_stats"`
	ProcessStats []ProcessStat          `json:"process_stats"`
}

// LoadAverages mirrors os.getloadavg()'s three figures.
type LoadAverages struct {
	M1  float64 `json:"m1"`
	M5  float64 `json:"m5"`
	M15 float64 `json:"m15"`
}

// ServiceStat is one watched service's reported status.
type ServiceStat struct {
	Name        string `json:"name"`
	StatusCode  int    `json:"status_code"`
	Description string `json:"description"`
}

// ProcessStat is one watched process's reported resource usage.
type ProcessStat struct {
	Name   string  `json:"name"`
	PID    int32   `json:"pid"`
	CPU    float64 `json:"cpu_percent"`
	Memory float64 `json:"memory_percent"`
	Found  bool    `json:"found"`
}

// Composer gathers everything a Snapshot needs. It is the collaborator a
// websocket session closes over. ProcessLookup is injected by the caller;
// docker stats and service status are always read from the host.
type Composer struct {
	HostOS         portability.OS
	ServiceLib     string
	WatchServices  []string
	WatchProcesses []string
	ProcessLookup  func(ctx context.Context, name string) (ProcessStat, bool)
}

// Compose runs the memory, swap, disk, load-average, docker, service and
// process lookups concurrently via errgroup, then blocks on the CPU-percent sample for cpuInterval — this
// call's total latency is therefore at least cpuInterval, matching the
// source's synchronous psutil.cpu_percent(interval=...) call.
func (c *Composer) Compose(ctx context.Context, cpuInterval time.Duration) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m, err := mem.VirtualMemoryWithContext(gctx)
		if err != nil {
			return err
		}
		snap.Memory = m
		return nil
	})
	g.Go(func() error {
		s, err := mem.SwapMemoryWithContext(gctx)
		if err != nil {
			return err
		}
		snap.Swap = s
		return nil
	})
	g.Go(func() error {
		d, err := disk.UsageWithContext(gctx, "/")
		if err != nil {
			return err
		}
		snap.Disk = d
		return nil
	})
	g.Go(func() error {
		avg, err := load.AvgWithContext(gctx)
		if err != nil {
			return err
		}
		snap.LoadAverages = LoadAverages{M1: avg.Load1, M5: avg.Load5, M15: avg.Load15}
		return nil
	})
	g.Go(func() error {
		rows, err := portability.Stats(gctx)
		if err != nil {
			snap.DockerStats = nil
			return nil // docker absence is not a snapshot-fatal error
		}
		snap.DockerStats = rows
		return nil
	})
	g.Go(func() error {
		snap.ServiceStats = c.serviceStats()
		return nil
	})
	g.Go(func() error {
		snap.ProcessStats = c.processStats(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	percents, err := cpu.PercentWithContext(ctx, cpuInterval, true)
	if err != nil {
		return nil, err
	}
	snap.CPUPercent = percents
	return snap, nil
}

func (c *Composer) serviceStats() []ServiceStat {
	if len(c.WatchServices) == 0 {
		return nil
	}
	controller := portability.NewServiceController(c.HostOS, c.ServiceLib)
	stats := make([]ServiceStat, 0, len(c.WatchServices))
	for _, name := range c.WatchServices {
		status := controller.Status(name)
		stats = append(stats, ServiceStat{Name: name, StatusCode: status.StatusCode, Description: status.Description})
	}
	return stats
}

func (c *Composer) processStats(ctx context.Context) []ProcessStat {
	if len(c.WatchProcesses) == 0 || c.ProcessLookup == nil {
		return nil
	}
	stats := make([]ProcessStat, 0, len(c.WatchProcesses))
	for _, name := range c.WatchProcesses {
		stat, found := c.ProcessLookup(ctx, name)
		stat.Name = name
		stat.Found = found
		stats = append(stats, stat)
	}
	return stats
}
