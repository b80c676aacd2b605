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
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// macDiskLister shells out to `diskutil info -all` and parses its
// colon-delimited block format, grounded on the agent's original macOS
// disk-discovery feature (parse_diskutil_output / drive_info).
type macDiskLister struct {
	tool string
	log  *logrus.Entry
}

var apfsSizePattern = regexp.MustCompile(`\((\d+) Bytes\)`)

// parseDiskutilBlocks splits `diskutil info -all` output into per-device
// field maps, delimited by lines equal to "**********".
func parseDiskutilBlocks(stdout string) []map[string]string {
	var blocks []map[string]string
	current := map[string]string{}
	for _, rawLine := range strings.Split(stdout, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if line == "**********" {
			if len(current) > 0 {
				blocks = append(blocks, current)
			}
			current = map[string]string{}
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		current[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func parseAPFSSizeBytes(s string) int64 {
	m := apfsSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.ParseInt(m[1], 10, 64)
	return n
}

func (m *macDiskLister) AllDisks() []Disk {
	out, err := exec.Command(m.tool, "info", "-all").Output()
	if err != nil {
		m.log.WithError(err).Warn("diskutil info -all failed")
		return nil
	}

	blocks := parseDiskutilBlocks(string(out))

	type physical struct {
		name, size, deviceID string
	}
	var physicals []physical
	mountpoints := map[string][]string{}

	for _, b := range blocks {
		if b["Virtual"] == "No" {
			id := b["Device Identifier"]
			physicals = append(physicals, physical{
				name:     b["Device / Media Name"],
				size:     HumanSize(parseAPFSSizeBytes(b["Disk Size"])),
				deviceID: id,
			})
			if _, ok := mountpoints[id]; !ok {
				mountpoints[id] = nil
			}
		}
	}

	for _, b := range blocks {
		partOfWhole := b["Part of Whole"]
		apfsStore := b["APFS Physical Store"]
		mountPoint := b["Mount Point"]
		readOnly := strings.Contains(b["Volume Read-Only"], "Yes")

		if mountPoint == "" || strings.HasPrefix(mountPoint, "/System/Volumes/") {
			continue
		}
		if _, ok := mountpoints[partOfWhole]; ok {
			mountpoints[partOfWhole] = append(mountpoints[partOfWhole], mountPoint)
			continue
		}
		if readOnly && apfsStore != "" {
			for deviceID := range mountpoints {
				if strings.HasPrefix(apfsStore, deviceID) {
					mountpoints[deviceID] = append(mountpoints[deviceID], mountPoint)
				}
			}
		}
	}

	disks := make([]Disk, 0, len(physicals))
	for _, p := range physicals {
		mps := mountpoints[p.deviceID]
		joined := "Not Mounted"
		if len(mps) > 0 {
			joined = strings.Join(mps, ", ")
		}
		disks = append(disks, Disk{
			DeviceID:    p.deviceID,
			Size:        p.size,
			Name:        p.name,
			Mountpoints: joined,
		})
	}
	return disks
}
