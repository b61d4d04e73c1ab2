//go:build windows

package cpu

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const centralProcessorKey = `HARDWARE\DESCRIPTION\System\CentralProcessor\0`

type systemOSInfo struct{}

// NewSystemOSInfo returns the registry-backed description of CPU 0.
func NewSystemOSInfo() OSInfoSource { return systemOSInfo{} }

func (systemOSInfo) Info() (OSInfo, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, centralProcessorKey, registry.QUERY_VALUE)
	if err != nil {
		return OSInfo{}, fmt.Errorf("%w: open HKLM\\%s: %v", ErrOSInfo, centralProcessorKey, err)
	}
	defer k.Close()

	var info OSInfo
	if mhz, _, err := k.GetIntegerValue("~MHz"); err == nil {
		info.BaseMHz = uint32(mhz)
	}
	if name, _, err := k.GetStringValue("ProcessorNameString"); err == nil {
		info.Name = strings.TrimSpace(name)
	}
	if vendor, _, err := k.GetStringValue("VendorIdentifier"); err == nil {
		info.Vendor = strings.TrimSpace(vendor)
	}
	return info, nil
}
