//go:build !windows && !linux

package cpu

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
	"github.com/tklauser/numcpus"
)

type systemTopology struct{}

// NewSystemTopology returns the topology source of the running system.
func NewSystemTopology() TopologySource { return systemTopology{} }

// Relationships reports one core entry per physical core known to CPUID and a
// single group entry with the online and configured CPU counts.
func (systemTopology) Relationships() ([]Relationship, error) {
	online, err := numcpus.GetOnline()
	if err != nil {
		return nil, fmt.Errorf("%w: online cpus: %v", ErrTopology, err)
	}
	configured, err := numcpus.GetConfigured()
	if err != nil {
		configured = online
	}

	cores := cpuid.CPU.PhysicalCores
	if cores <= 0 {
		cores = online
	}
	rels := make([]Relationship, 0, cores+1)
	for i := 0; i < cores; i++ {
		rels = append(rels, Relationship{Kind: RelationProcessorCore})
	}
	rels = append(rels, Relationship{
		Kind:    RelationGroup,
		Active:  uint32(online),
		Maximum: uint32(configured),
	})
	return rels, nil
}
