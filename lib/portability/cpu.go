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
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// CPUName reports the processor's marketing name, grounded on the
// agent's original per-OS processor-name lookups: sysctl on macOS, the
// "model name" line of /proc/cpuinfo on Linux, and "wmic cpu get name"
// on Windows.
func CPUName(hostOS OS, toolPath string, log *logrus.Entry) string {
	switch hostOS {
	case Darwin:
		out, err := exec.Command(defaultOr(toolPath, "sysctl"), "-n", "machdep.cpu.brand_string").Output()
		if err != nil {
			log.WithError(err).Debug("sysctl cpu lookup failed")
			return ""
		}
		return strings.TrimSpace(string(out))
	case Linux:
		path := defaultOr(toolPath, "/proc/cpuinfo")
		data, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).Debug("reading /proc/cpuinfo failed")
			return ""
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, "model name") {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					return strings.TrimSpace(parts[1])
				}
			}
		}
		return ""
	case Windows:
		out, err := exec.Command(defaultOr(toolPath, "wmic"), "cpu", "get", "name").CombinedOutput()
		if err != nil {
			log.WithError(err).Debug("wmic cpu lookup failed")
			return ""
		}
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if len(lines) >= 2 {
			return strings.TrimSpace(lines[1])
		}
		return ""
	default:
		return ""
	}
}
