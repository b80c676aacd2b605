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
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// GPU is the normalized view of one graphics adapter. Not every field is
// populated on every platform: cores/memory only ever come from macOS.
type GPU struct {
	Model  string
	Vendor string
	Cores  string
	Memory string
}

// GPUList enumerates graphics adapters, grounded on the agent's original
// per-OS GPU lookups: `system_profiler SPDisplaysDataType -json` on macOS,
// `lspci` grepped for VGA controllers on Linux, and a WMIC CSV query on
// Windows.
func GPUList(hostOS OS, toolPath string, log *logrus.Entry) []GPU {
	switch hostOS {
	case Darwin:
		return gpuDarwin(defaultOr(toolPath, "system_profiler"), log)
	case Linux:
		return gpuLinux(defaultOr(toolPath, "lspci"), log)
	case Windows:
		return gpuWindows(defaultOr(toolPath, "wmic"), log)
	default:
		return nil
	}
}

type spDisplays struct {
	SPDisplaysDataType []map[string]string `json:"SPDisplaysDataType"`
}

func gpuDarwin(tool string, log *logrus.Entry) []GPU {
	out, err := exec.Command(tool, "SPDisplaysDataType", "-json").Output()
	if err != nil {
		log.WithError(err).Debug("system_profiler gpu lookup failed")
		return nil
	}
	var parsed spDisplays
	if err := json.Unmarshal(out, &parsed); err != nil {
		log.WithError(err).Debug("parsing system_profiler JSON failed")
		return nil
	}
	var gpus []GPU
	for _, display := range parsed.SPDisplaysDataType {
		model, ok := display["sppci_model"]
		if !ok {
			continue
		}
		memory := display["sppci_vram"]
		if memory == "" {
			memory = display["spdisplays_vram"]
		}
		if memory == "" {
			memory = "N/A"
		}
		cores := display["sppci_cores"]
		if cores == "" {
			cores = "N/A"
		}
		vendor := display["sppci_vendor"]
		if vendor == "" {
			vendor = "N/A"
		}
		gpus = append(gpus, GPU{Model: model, Cores: cores, Memory: memory, Vendor: vendor})
	}
	return gpus
}

func gpuLinux(tool string, log *logrus.Entry) []GPU {
	out, err := exec.Command(tool).Output()
	if err != nil {
		log.WithError(err).Debug("lspci gpu lookup failed")
		return nil
	}
	var gpus []GPU
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "VGA") {
			continue
		}
		fields := strings.Split(line, ":")
		model := strings.TrimSpace(fields[len(fields)-1])
		gpus = append(gpus, GPU{Model: model})
	}
	return gpus
}

func gpuWindows(tool string, log *logrus.Entry) []GPU {
	out, err := exec.Command(tool, "path", "win32_videocontroller", "get", "Name,AdapterCompatibility", "/format:csv").Output()
	if err != nil {
		log.WithError(err).Debug("wmic gpu lookup failed")
		return nil
	}
	var rows []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, line)
		}
	}
	if len(rows) < 2 {
		return nil
	}
	header := strings.Split(rows[0], ",")
	var gpus []GPU
	for _, row := range rows[1:] {
		values := strings.Split(row, ",")
		if len(values) < len(header) {
			continue
		}
		gpu := GPU{}
		for i, key := range header {
			switch strings.TrimSpace(key) {
			case "Name":
				gpu.Model = strings.TrimSpace(values[i])
			case "AdapterCompatibility":
				gpu.Vendor = strings.TrimSpace(values[i])
			}
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}
