//go:build linux

package cpu

import (
	"fmt"

	"github.com/prometheus/procfs/sysfs"
	"github.com/tklauser/numcpus"
)

type systemTopology struct {
	sysPath string
}

// NewSystemTopology returns the topology source of the running system.
func NewSystemTopology() TopologySource { return systemTopology{sysPath: sysfs.DefaultMountPoint} }

// Relationships synthesises the Windows-style relationship list from sysfs:
// one core entry per distinct (package, core) pair and a single group entry
// holding the online and present CPU counts.
func (s systemTopology) Relationships() ([]Relationship, error) {
	fs, err := sysfs.NewFS(s.sysPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sysfs: %v", ErrTopology, err)
	}
	cpus, err := fs.CPUs()
	if err != nil {
		return nil, fmt.Errorf("%w: list cpus: %v", ErrTopology, err)
	}

	type coreKey struct{ pkg, core string }
	seen := make(map[coreKey]struct{}, len(cpus))
	var rels []Relationship
	for _, c := range cpus {
		topo, err := c.Topology()
		if err != nil {
			// Offline CPUs have no topology directory.
			continue
		}
		k := coreKey{topo.PhysicalPackageID, topo.CoreID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		rels = append(rels, Relationship{Kind: RelationProcessorCore})
	}

	online, err := numcpus.GetOnline()
	if err != nil {
		return nil, fmt.Errorf("%w: online cpus: %v", ErrTopology, err)
	}
	present, err := numcpus.GetPresent()
	if err != nil {
		present = len(cpus)
	}
	rels = append(rels, Relationship{
		Kind:    RelationGroup,
		Active:  uint32(online),
		Maximum: uint32(present),
	})
	return rels, nil
}
