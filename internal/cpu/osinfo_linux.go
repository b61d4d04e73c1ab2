//go:build linux

package cpu

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

type systemOSInfo struct {
	procPath string
	sysPath  string
}

// NewSystemOSInfo returns the /proc/cpuinfo-backed description of CPU 0.
func NewSystemOSInfo() OSInfoSource {
	return systemOSInfo{procPath: procfs.DefaultMountPoint, sysPath: sysfs.DefaultMountPoint}
}

func (s systemOSInfo) Info() (OSInfo, error) {
	fs, err := procfs.NewFS(s.procPath)
	if err != nil {
		return OSInfo{}, fmt.Errorf("%w: open procfs: %v", ErrOSInfo, err)
	}
	cpus, err := fs.CPUInfo()
	if err != nil {
		return OSInfo{}, fmt.Errorf("%w: read cpuinfo: %v", ErrOSInfo, err)
	}
	if len(cpus) == 0 {
		return OSInfo{}, fmt.Errorf("%w: cpuinfo lists no processors", ErrOSInfo)
	}

	c := cpus[0]
	info := OSInfo{
		Name:   strings.TrimSpace(c.ModelName),
		Vendor: strings.TrimSpace(c.VendorID),
	}
	// cpu MHz is the current clock; base_frequency, when the driver exposes
	// it, is the nominal one.
	if khz, ok := s.baseFrequencyKHz(); ok {
		info.BaseMHz = uint32(khz / 1000)
	} else if c.CPUMHz > 0 {
		info.BaseMHz = uint32(c.CPUMHz)
	}
	return info, nil
}

func (s systemOSInfo) baseFrequencyKHz() (uint64, bool) {
	raw, err := os.ReadFile(filepath.Join(s.sysPath, "devices/system/cpu/cpu0/cpufreq/base_frequency"))
	if err != nil {
		return 0, false
	}
	khz, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || khz == 0 {
		return 0, false
	}
	return khz, true
}
