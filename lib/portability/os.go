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

// Package portability turns OS-specific subprocess output into uniform
// records consumed by the rest of the agent: service/process discovery,
// disk enumeration, CPU/GPU identification, and TLS certificate listing.
package portability

import (
	"runtime"

	"github.com/gravitational/trace"
)

// OS is a sealed enum of the three supported host platforms. There is
// deliberately no "other" variant: Current refuses to construct one.
type OS int

const (
	Linux OS = iota
	Darwin
	Windows
)

func (o OS) String() string {
	switch o {
	case Linux:
		return "linux"
	case Darwin:
		return "darwin"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// Current returns the running host's OS, or an error if it is anything
// other than linux/darwin/windows — the process must refuse to start in
// that case, per spec.md §4.1.
func Current() (OS, error) {
	switch runtime.GOOS {
	case "linux":
		return Linux, nil
	case "darwin":
		return Darwin, nil
	case "windows":
		return Windows, nil
	default:
		return 0, trace.BadParameter("unsupported operating system %q", runtime.GOOS)
	}
}
