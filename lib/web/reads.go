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
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/thevickypedia/pyninja-go/lib/metrics"
	"github.com/thevickypedia/pyninja-go/lib/portability"
)

var ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// publicIPMirrors is tried in order until one answers; grounded on the
// agent's own fallback chain for the same call.
var publicIPMirrors = []string{
	"https://checkip.amazonaws.com/",
	"https://api.ipify.org/",
	"https://ipinfo.io/ip/",
	"https://v4.ident.me/",
}

func (h *Handler) getIP(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	if r.URL.Query().Get("public") == "true" {
		ip, err := publicIP(r.Context())
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return map[string]string{"ip_address": ip}, nil
	}
	ip, err := privateIP()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]string{"ip_address": ip}, nil
}

func privateIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", trace.ConnectionProblem(err, "unable to determine private IP")
	}
	defer conn.Close() //nolint:errcheck
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func publicIP(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for _, url := range publicIPMirrors {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close() //nolint:errcheck
		if err != nil {
			lastErr = err
			continue
		}
		if match := ipPattern.FindString(string(body)); match != "" {
			return match, nil
		}
	}
	return "", trace.ConnectionProblem(lastErr, "no public IP mirror responded")
}

func (h *Handler) getCPU(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	interval := queryDuration(r, "interval", 2*time.Second)
	perCPU := r.URL.Query().Get("per_cpu") != "false"
	percents, err := cpu.PercentWithContext(r.Context(), interval, perCPU)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]interface{}{"cpu_percent": percents}, nil
}

func (h *Handler) getCPULoad(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	avg, err := load.AvgWithContext(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]float64{"m1": avg.Load1, "m5": avg.Load5, "m15": avg.Load15}, nil
}

func (h *Handler) getMemory(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	m, err := mem.VirtualMemoryWithContext(r.Context())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return m, nil
}

func (h *Handler) getDisk(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	usage, err := disk.UsageWithContext(r.Context(), "/")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]string{
		"total": portability.HumanSize(int64(usage.Total)),
		"used":  portability.HumanSize(int64(usage.Used)),
		"free":  portability.HumanSize(int64(usage.Free)),
	}, nil
}

func (h *Handler) getAllDisks(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	lister := portability.NewDiskLister(h.ctx.OS, h.ctx.Config.DiskLib, h.log)
	return lister.AllDisks(), nil
}

func (h *Handler) getProcessor(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := portability.CPUName(h.ctx.OS, h.ctx.Config.ProcessorLib, h.log)
	return map[string]string{"processor": name}, nil
}

func (h *Handler) serviceStatus(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("service_name")
	if name == "" {
		return nil, trace.BadParameter("service_name is required")
	}
	controller := portability.NewServiceController(h.ctx.OS, h.ctx.Config.ServiceLib)
	return controller.Status(name), nil
}

func (h *Handler) serviceUsage(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	names := splitCSV(r.URL.Query().Get("service_name"))
	if len(names) == 0 {
		return nil, trace.BadParameter("service_name is required")
	}
	controller := portability.NewServiceController(h.ctx.OS, h.ctx.Config.ServiceLib)
	statuses := make([]portability.ServiceStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, controller.Status(name))
	}
	if len(statuses) == 1 && statuses[0].StatusCode == http.StatusNotFound {
		return nil, trace.NotFound("service %q not found", names[0])
	}
	return statuses, nil
}

func (h *Handler) processStatus(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	name := r.URL.Query().Get("process_name")
	if name == "" {
		return nil, trace.BadParameter("process_name is required")
	}
	stat, found := processLookup(r.Context(), name)
	if !found {
		return nil, trace.NotFound("process %q not found", name)
	}
	return stat, nil
}

func (h *Handler) processUsage(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	names := splitCSV(r.URL.Query().Get("process_name"))
	if len(names) == 0 {
		return nil, trace.BadParameter("process_name is required")
	}
	stats := make([]metrics.ProcessStat, 0, len(names))
	for _, name := range names {
		stat, found := processLookup(r.Context(), name)
		stat.Name = name
		stat.Found = found
		stats = append(stats, stat)
	}
	if len(stats) == 1 && !stats[0].Found {
		return nil, trace.NotFound("process %q not found", names[0])
	}
	return stats, nil
}

// processLookup walks the live process table for the first process whose
// name matches, reporting its CPU/memory share. It is also handed to the
// live-metrics Composer so /ws/system and /process-status agree on what
// "found" means.
func processLookup(ctx context.Context, name string) (metrics.ProcessStat, bool) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return metrics.ProcessStat{}, false
	}
	for _, proc := range procs {
		pname, err := proc.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		cpuPercent, _ := proc.CPUPercentWithContext(ctx)
		memPercent, _ := proc.MemoryPercentWithContext(ctx)
		return metrics.ProcessStat{
			PID:    proc.Pid,
			CPU:    cpuPercent,
			Memory: float64(memPercent),
		}, true
	}
	return metrics.ProcessStat{}, false
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func queryDuration(r *http.Request, key string, fallback time.Duration) time.Duration {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
