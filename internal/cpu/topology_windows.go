//go:build windows

package cpu

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32                          = windows.NewLazySystemDLL("kernel32.dll")
	procGetLogicalProcessorInformationEx = modkernel32.NewProc("GetLogicalProcessorInformationEx")
)

type systemTopology struct{}

// NewSystemTopology returns the topology source of the running system.
func NewSystemTopology() TopologySource { return systemTopology{} }

// Relationships calls GetLogicalProcessorInformationEx(RelationAll) twice:
// once to size the buffer and once to fill it.
func (systemTopology) Relationships() ([]Relationship, error) {
	var length uint32
	procGetLogicalProcessorInformationEx.Call(uintptr(RelationAll), 0, uintptr(unsafe.Pointer(&length)))
	if length == 0 {
		return nil, fmt.Errorf("%w: GetLogicalProcessorInformationEx(RelationAll, NULL, &length) failed", ErrTopology)
	}

	buf := make([]byte, length)
	r1, _, err := procGetLogicalProcessorInformationEx.Call(
		uintptr(RelationAll),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&length)),
	)
	if r1 == 0 {
		return nil, fmt.Errorf("%w: GetLogicalProcessorInformationEx(RelationAll, buf, &length): %v", ErrTopology, err)
	}

	rels, perr := ParseProcessorInformationEx(buf[:length])
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopology, perr)
	}
	return rels, nil
}
