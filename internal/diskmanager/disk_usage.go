// disk_usage.go - free space probing for the output directory

package diskmanager

import (
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/voicerec/internal/errors"
)

const bytesPerMB = 1024 * 1024

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	UsedPercent float64
	Fstype      string
}

// FreeMB returns the free space in whole megabytes.
func (d DiskSpaceInfo) FreeMB() uint64 {
	return d.FreeBytes / bytesPerMB
}

// GetDetailedDiskUsage returns usage of the filesystem holding path.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	start := time.Now()
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskUsage).
			Context("path", path).
			Context("operation", "disk_usage").
			Timing("disk_usage_check", time.Since(start)).
			Build()
	}
	return DiskSpaceInfo{
		TotalBytes:  usage.Total,
		UsedBytes:   usage.Used,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
		Fstype:      usage.Fstype,
	}, nil
}

// GetDiskUsage returns the disk usage percentage for the given path
func GetDiskUsage(path string) (float64, error) {
	info, err := GetDetailedDiskUsage(path)
	if err != nil {
		return 0, err
	}
	return info.UsedPercent, nil
}
