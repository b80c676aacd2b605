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

// linuxDiskLister shells out to lsblk in JSON mode and walks the resulting
// blockdevices tree, grounded on the lsblk parsing the agent's original
// Linux disk-discovery feature performs.
type linuxDiskLister struct {
	tool string
	log  *logrus.Entry
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Size       string        `json:"size"`
	Type       string        `json:"type"`
	Model      string        `json:"model"`
	Mountpoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

func (l *linuxDiskLister) AllDisks() []Disk {
	out, err := exec.Command(l.tool, "-o", "NAME,SIZE,TYPE,MODEL,MOUNTPOINT", "-J").Output()
	if err != nil {
		l.log.WithError(err).Warn("lsblk -J failed")
		return nil
	}

	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		l.log.WithError(err).Warn("failed to parse lsblk JSON output")
		return nil
	}

	var disks []Disk
	for _, dev := range parsed.BlockDevices {
		if dev.Type != "disk" {
			continue
		}
		var mountpoints []string
		for _, part := range dev.Children {
			if part.Mountpoint != "" {
				mountpoints = append(mountpoints, part.Mountpoint)
			}
		}
		if len(mountpoints) == 0 && dev.Mountpoint != "" {
			mountpoints = append(mountpoints, dev.Mountpoint)
		}

		joined := "Not Mounted"
		if len(mountpoints) > 0 {
			joined = strings.Join(mountpoints, ", ")
		}

		name := dev.Model
		if name == "" {
			name = "Unknown"
		}

		disks = append(disks, Disk{
			DeviceID:    dev.Name,
			Size:        dev.Size,
			Name:        name,
			Mountpoints: joined,
		})
	}
	return disks
}
