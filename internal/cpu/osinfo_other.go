//go:build !windows && !linux

package cpu

// NewSystemOSInfo returns the CPUID-backed description of the running CPU.
func NewSystemOSInfo() OSInfoSource { return OSInfoFunc(CPUIDInfo) }
