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
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// windowsDiskLister drives two PowerShell queries: Win32_DiskDrive for the
// physical disk inventory, and a Get-PhysicalDisk/Get-Partition/Get-Volume
// pipeline for drive-letter mountpoints, grounded on the agent's original
// Windows disk-discovery feature (get_drives / get_physical_disks_and_partitions).
type windowsDiskLister struct {
	tool string
	log  *logrus.Entry
}

type win32DiskDrive struct {
	Caption    string      `json:"Caption"`
	DeviceID   string      `json:"DeviceID"`
	Model      string      `json:"Model"`
	Partitions int         `json:"Partitions"`
	Size       json.Number `json:"Size"`
}

func (w *windowsDiskLister) queryDrives() ([]win32DiskDrive, error) {
	const psCommand = "Get-CimInstance Win32_DiskDrive | Select-Object Caption, DeviceID, Model, Partitions, Size | ConvertTo-Json"
	out, err := exec.Command(w.tool, "-Command", psCommand).Output()
	if err != nil {
		return nil, fmt.Errorf("powershell disk query: %w", err)
	}
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []win32DiskDrive
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var single win32DiskDrive
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, err
	}
	return []win32DiskDrive{single}, nil
}

// queryMountpoints returns DeviceID (last character of the PhysicalDriveN
// path, matching reformat_windows) -> mount paths.
func (w *windowsDiskLister) queryMountpoints() map[string][]string {
	const psScript = `
Get-PhysicalDisk | ForEach-Object {
    $disk = $_
    $partitions = Get-Partition -DiskNumber $disk.DeviceID
    $partitions | ForEach-Object {
        [PSCustomObject]@{
            DiskNumber = $disk.DeviceID
            Partition = $_.PartitionNumber
            DriveLetter = (Get-Volume -Partition $_).DriveLetter
        }
    }
}
`
	out, err := exec.Command(w.tool, "-Command", psScript).Output()
	if err != nil {
		w.log.WithError(err).Warn("powershell partition query failed")
		return nil
	}

	mounts := map[string][]string{}
	for _, rawLine := range strings.Split(string(out), "\n") {
		line := strings.TrimSpace(stripANSI(rawLine))
		if line == "" || strings.HasPrefix(line, "DiskNumber") || strings.HasPrefix(line, "-") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		diskNumber := parts[0]
		driveLetter := parts[2]
		mounts[diskNumber] = append(mounts[diskNumber], driveLetter+":\\")
	}
	return mounts
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inEscape {
			if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				inEscape = false
			}
			continue
		}
		if c == 0x1b {
			inEscape = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (w *windowsDiskLister) AllDisks() []Disk {
	drives, err := w.queryDrives()
	if err != nil {
		w.log.WithError(err).Warn("failed to list Win32_DiskDrive entries")
		return nil
	}
	mounts := w.queryMountpoints()

	disks := make([]Disk, 0, len(drives))
	for _, d := range drives {
		deviceID := strings.NewReplacer("\\", "", ".", "").Replace(d.DeviceID)
		id := ""
		if len(d.DeviceID) > 0 {
			id = d.DeviceID[len(d.DeviceID)-1:]
		}

		var sizeBytes int64
		if n, err := strconv.ParseInt(d.Size.String(), 10, 64); err == nil {
			sizeBytes = n
		}

		joined := "Not Mounted"
		if mps, ok := mounts[id]; ok && len(mps) > 0 {
			joined = strings.Join(mps, ", ")
		}

		disks = append(disks, Disk{
			DeviceID:    deviceID,
			Size:        HumanSize(sizeBytes),
			Name:        d.Model,
			Mountpoints: joined,
		})
	}
	return disks
}
