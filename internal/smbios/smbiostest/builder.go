// Package smbiostest builds synthetic SMBIOS structure tables for tests.
package smbiostest

import (
	"encoding/binary"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/smbios"
)

// Builder appends structures to a table buffer.
type Builder struct {
	buf    []byte
	handle uint16
}

// New returns an empty builder.
func New() *Builder { return &Builder{} }

// Raw appends a structure whose formatted area (after the header) is body.
// The declared length is 4+len(body).
func (b *Builder) Raw(typ uint8, body []byte, strs ...string) *Builder {
	return b.RawLength(typ, uint8(4+len(body)), body, strs...)
}

// RawLength appends a structure with an explicit declared length. The
// declared length is written as given even when it disagrees with body.
func (b *Builder) RawLength(typ, length uint8, body []byte, strs ...string) *Builder {
	hdr := []byte{typ, length, 0, 0}
	binary.LittleEndian.PutUint16(hdr[2:], b.handle)
	b.handle++
	b.buf = append(b.buf, hdr...)
	b.buf = append(b.buf, body...)
	if len(strs) == 0 {
		b.buf = append(b.buf, 0, 0)
		return b
	}
	for _, s := range strs {
		b.buf = append(b.buf, s...)
		b.buf = append(b.buf, 0)
	}
	b.buf = append(b.buf, 0)
	return b
}

// Processor appends a processor information structure.
func (b *Builder) Processor(p Processor) *Builder {
	body, strs := p.encode()
	return b.Raw(smbios.TypeProcessorInformation, body, strs...)
}

// End appends the End-of-Table structure.
func (b *Builder) End() *Builder {
	return b.Raw(smbios.TypeEndOfTable, nil)
}

// Bytes returns the table bytes built so far.
func (b *Builder) Bytes() []byte { return append([]byte(nil), b.buf...) }

// Table wraps the built bytes as an SMBIOS 3.6 table.
func (b *Builder) Table() *smbios.Table {
	return smbios.NewTable(b.Bytes(), smbios.Version{Major: 3, Minor: 6})
}

// Processor describes a type 4 structure. Length selects how many bytes of
// the formatted area are emitted (including the header); zero means the full
// 3.6 layout (0x32 bytes).
type Processor struct {
	Length          int
	Socket          string
	Type            uint8
	Family          uint8
	Manufacturer    string
	Version         string
	MaxSpeed        uint16
	CurrentSpeed    uint16
	Status          uint8
	Serial          string
	CoreCount       uint8
	CoreEnabled     uint8
	ThreadCount     uint8
	Characteristics uint16
	Family2         uint16
	CoreCount2      uint16
	ThreadCount2    uint16
}

func (p Processor) encode() ([]byte, []string) {
	full := make([]byte, 0x32)
	var strs []string
	ref := func(s string) byte {
		if s == "" {
			return 0
		}
		strs = append(strs, s)
		return byte(len(strs))
	}

	full[0x04] = ref(p.Socket)
	full[0x05] = p.Type
	full[0x06] = p.Family
	full[0x07] = ref(p.Manufacturer)
	full[0x10] = ref(p.Version)
	binary.LittleEndian.PutUint16(full[0x14:], p.MaxSpeed)
	binary.LittleEndian.PutUint16(full[0x16:], p.CurrentSpeed)
	full[0x18] = p.Status
	full[0x20] = ref(p.Serial)
	full[0x23] = p.CoreCount
	full[0x24] = p.CoreEnabled
	full[0x25] = p.ThreadCount
	binary.LittleEndian.PutUint16(full[0x26:], p.Characteristics)
	binary.LittleEndian.PutUint16(full[0x28:], p.Family2)
	binary.LittleEndian.PutUint16(full[0x2A:], p.CoreCount2)
	binary.LittleEndian.PutUint16(full[0x2E:], p.ThreadCount2)

	n := p.Length
	if n == 0 {
		n = len(full)
	}
	return full[4:n], strs
}
