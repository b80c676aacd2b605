package portability

import (
	"github.com/sirupsen/logrus"
)

// Disk is the normalized, portable view of one physical block device.
type Disk struct {
	DeviceID    string
	Size        string // HumanSize on macOS/Windows; on Linux, lsblk's own size string (e.g. "20G")
	Name        string
	Mountpoints string // comma-joined, or "Not Mounted"
}

// DiskLister enumerates the physical disks attached to the host. Each OS
// gets its own implementation shelling out to the platform's disk tool;
// failures are logged and reported as an empty list, never partial data.
type DiskLister interface {
	AllDisks() []Disk
}

// NewDiskLister selects the DiskLister for the given OS and the path to
// its backing tool (disk_lib config key; empty uses the platform default).
func NewDiskLister(os OS, toolPath string, log *logrus.Entry) DiskLister {
	switch os {
	case Darwin:
		return &macDiskLister{tool: defaultOr(toolPath, "diskutil"), log: log}
	case Linux:
		return &linuxDiskLister{tool: defaultOr(toolPath, "lsblk"), log: log}
	case Windows:
		return &windowsDiskLister{tool: defaultOr(toolPath, "powershell"), log: log}
	default:
		return noopDiskLister{}
	}
}

func defaultOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type noopDiskLister struct{}

func (noopDiskLister) AllDisks() []Disk { return nil }
