package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// RelationKind mirrors LOGICAL_PROCESSOR_RELATIONSHIP.
type RelationKind uint32

const (
	RelationProcessorCore    RelationKind = 0
	RelationNumaNode         RelationKind = 1
	RelationCache            RelationKind = 2
	RelationProcessorPackage RelationKind = 3
	RelationGroup            RelationKind = 4
	RelationAll              RelationKind = 0xFFFF
)

// Relationship is one processor relationship entry reported by the OS. Active
// and Maximum are only meaningful for RelationGroup.
type Relationship struct {
	Kind    RelationKind
	Active  uint32
	Maximum uint32
}

// Topology holds the core counts derived from the relationship entries.
type Topology struct {
	CoresPhysical uint32
	CoresOnline   uint32
	CoresLogical  uint32
}

// Tally counts one physical core per core entry and sums the active and
// maximum processor counts of every group entry.
func Tally(rels []Relationship) Topology {
	var t Topology
	for _, r := range rels {
		switch r.Kind {
		case RelationProcessorCore:
			t.CoresPhysical++
		case RelationGroup:
			t.CoresOnline += r.Active
			t.CoresLogical += r.Maximum
		}
	}
	return t
}

// TopologySource enumerates the processor relationships of the running
// system.
type TopologySource interface {
	Relationships() ([]Relationship, error)
}

// TopologyFunc adapts a function to TopologySource.
type TopologyFunc func() ([]Relationship, error)

func (f TopologyFunc) Relationships() ([]Relationship, error) { return f() }

// ErrTopology wraps every topology enumeration failure.
var ErrTopology = errors.New("processor topology query failed")

// Layout of SYSTEM_LOGICAL_PROCESSOR_INFORMATION_EX and GROUP_RELATIONSHIP.
const (
	slpiHeaderLen        = 8  // Relationship, Size
	groupActiveCountOff  = 10 // ActiveGroupCount
	groupInfoOff         = 32 // GroupInfo[0]
	groupInfoFixedLen    = 40 // Maximum, Active, Reserved[38]
	groupInfoMaxCountOff = 0
	groupInfoActiveOff   = 1
)

// groupInfoLen is sizeof(PROCESSOR_GROUP_INFO): the fixed part plus a
// KAFFINITY mask.
var groupInfoLen = groupInfoFixedLen + int(unsafe.Sizeof(uintptr(0)))

// ParseProcessorInformationEx decodes a buffer filled by
// GetLogicalProcessorInformationEx. Entries are variable-length and chained
// by their Size field.
func ParseProcessorInformationEx(buf []byte) ([]Relationship, error) {
	var rels []Relationship
	for off := 0; off < len(buf); {
		if len(buf)-off < slpiHeaderLen {
			return nil, fmt.Errorf("truncated entry header at offset %d", off)
		}
		kind := RelationKind(binary.LittleEndian.Uint32(buf[off:]))
		size := int(binary.LittleEndian.Uint32(buf[off+4:]))
		if size < slpiHeaderLen || off+size > len(buf) {
			return nil, fmt.Errorf("entry at offset %d declares size %d", off, size)
		}
		entry := buf[off : off+size]

		switch kind {
		case RelationGroup:
			groups, err := parseGroupRelationship(entry)
			if err != nil {
				return nil, fmt.Errorf("group entry at offset %d: %w", off, err)
			}
			rels = append(rels, groups...)
		default:
			rels = append(rels, Relationship{Kind: kind})
		}
		off += size
	}
	return rels, nil
}

func parseGroupRelationship(entry []byte) ([]Relationship, error) {
	if len(entry) < groupInfoOff {
		return nil, fmt.Errorf("entry is %d bytes", len(entry))
	}
	n := int(binary.LittleEndian.Uint16(entry[groupActiveCountOff:]))
	rels := make([]Relationship, 0, n)
	for i := 0; i < n; i++ {
		start := groupInfoOff + i*groupInfoLen
		if start+groupInfoFixedLen > len(entry) {
			return nil, fmt.Errorf("group %d of %d lies outside the entry", i, n)
		}
		rels = append(rels, Relationship{
			Kind:    RelationGroup,
			Maximum: uint32(entry[start+groupInfoMaxCountOff]),
			Active:  uint32(entry[start+groupInfoActiveOff]),
		})
	}
	return rels, nil
}
