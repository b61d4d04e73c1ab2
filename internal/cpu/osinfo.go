package cpu

import (
	"errors"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// OSInfo is what the operating system reports about logical processor 0.
type OSInfo struct {
	Name    string
	Vendor  string
	BaseMHz uint32
}

// complete reports whether every field is known.
func (i OSInfo) complete() bool {
	return i.Name != "" && i.Vendor != "" && i.BaseMHz != 0
}

// fill copies the fields of o into the empty fields of i.
func (i OSInfo) fill(o OSInfo) OSInfo {
	if i.Name == "" {
		i.Name = o.Name
	}
	if i.Vendor == "" {
		i.Vendor = o.Vendor
	}
	if i.BaseMHz == 0 {
		i.BaseMHz = o.BaseMHz
	}
	return i
}

// OSInfoSource reads the processor name, vendor and base clock.
type OSInfoSource interface {
	Info() (OSInfo, error)
}

// OSInfoFunc adapts a function to OSInfoSource.
type OSInfoFunc func() (OSInfo, error)

func (f OSInfoFunc) Info() (OSInfo, error) { return f() }

// ErrOSInfo wraps failures to read the processor description from the OS.
var ErrOSInfo = errors.New("processor description is unavailable")

// CPUIDInfo reads the processor description straight from the CPUID
// instruction. It never fails; fields the CPU does not report stay empty.
func CPUIDInfo() (OSInfo, error) {
	info := OSInfo{
		Name:   strings.TrimSpace(cpuid.CPU.BrandName),
		Vendor: cpuid.CPU.VendorString,
	}
	if cpuid.CPU.Hz > 0 {
		info.BaseMHz = uint32(cpuid.CPU.Hz / 1_000_000)
	}
	return info, nil
}
