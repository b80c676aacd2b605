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
	"os/exec"
	"strings"

	"github.com/gravitational/trace"
)

// ServiceStatus mirrors the agent's original HTTP status vocabulary for
// service state: 200 running, 501 stopped, 503 unknown, 404 not found.
type ServiceStatus struct {
	StatusCode  int
	Description string
}

func running(name string) ServiceStatus {
	return ServiceStatus{StatusCode: 200, Description: name + " is running"}
}

func stopped(name string) ServiceStatus {
	return ServiceStatus{StatusCode: 501, Description: name + " has been stopped"}
}

func unknownStatus(name, detail string) ServiceStatus {
	if detail == "" {
		detail = "status unknown"
	}
	return ServiceStatus{StatusCode: 503, Description: name + " - " + detail}
}

func unavailable(name string) ServiceStatus {
	return ServiceStatus{StatusCode: 404, Description: name + " - not found"}
}

// ServiceController queries and controls named OS services through the
// platform's native service manager: systemctl on Linux, launchctl on
// macOS, sc.exe on Windows.
type ServiceController struct {
	os   OS
	tool string
}

// NewServiceController picks the platform default for an empty toolPath:
// systemctl / launchctl / sc.
func NewServiceController(os OS, toolPath string) *ServiceController {
	var def string
	switch os {
	case Linux:
		def = "systemctl"
	case Darwin:
		def = "launchctl"
	case Windows:
		def = "sc"
	}
	return &ServiceController{os: os, tool: defaultOr(toolPath, def)}
}

// Status reports whether the named service is active.
func (s *ServiceController) Status(name string) ServiceStatus {
	switch s.os {
	case Linux:
		return s.statusLinux(name)
	case Darwin:
		return s.statusDarwin(name)
	case Windows:
		return s.statusWindows(name)
	default:
		return unavailable(name)
	}
}

func (s *ServiceController) statusLinux(name string) ServiceStatus {
	out, err := exec.Command(s.tool, "is-active", name).Output()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 3 {
			return stopped(name)
		}
		return unavailable(name)
	}
	switch output {
	case "active":
		return running(name)
	case "inactive":
		return stopped(name)
	default:
		return ServiceStatus{StatusCode: 501, Description: name + " - " + output}
	}
}

func (s *ServiceController) statusDarwin(name string) ServiceStatus {
	out, err := exec.Command(s.tool, "list").Output()
	if err != nil {
		return unavailable(name)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, name) {
			return running(name)
		}
	}
	return stopped(name)
}

func (s *ServiceController) statusWindows(name string) ServiceStatus {
	out, err := exec.Command(s.tool, "query", name).Output()
	if err != nil {
		return unavailable(name)
	}
	output := string(out)
	switch {
	case strings.Contains(output, "RUNNING"):
		return running(name)
	case strings.Contains(output, "STOPPED"):
		return stopped(name)
	default:
		return unknownStatus(name, "")
	}
}

// Start and Stop are used by the management endpoints that enable/disable
// a service outright, as opposed to just reporting its current state.
func (s *ServiceController) Start(name string) error {
	return s.control(name, "start")
}

func (s *ServiceController) Stop(name string) error {
	return s.control(name, "stop")
}

func (s *ServiceController) control(name, action string) error {
	var args []string
	switch s.os {
	case Linux:
		args = []string{action, name}
	case Darwin:
		if action == "start" {
			args = []string{"load", name}
		} else {
			args = []string{"unload", name}
		}
	case Windows:
		args = []string{action, name}
	default:
		return trace.BadParameter("unsupported operating system for service control")
	}
	if out, err := exec.Command(s.tool, args...).CombinedOutput(); err != nil {
		return trace.Wrap(err, "%s %s failed: %s", action, name, strings.TrimSpace(string(out)))
	}
	return nil
}
