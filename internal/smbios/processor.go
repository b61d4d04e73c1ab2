package smbios

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNoProcessor is returned when the table has no processor structure.
	ErrNoProcessor = errors.New("processor information is not found in SMBIOS data")
	// ErrNoActiveProcessor is returned when no processor structure describes
	// an enabled central processor.
	ErrNoActiveProcessor = errors.New("no active CPU is found in SMBIOS data")
)

// Offsets into the processor information structure (DSP0134 7.5).
const (
	offSocketDesignation = 0x04
	offProcessorType     = 0x05
	offFamily            = 0x06
	offManufacturer      = 0x07
	offID                = 0x08
	offVersion           = 0x10
	offVoltage           = 0x11
	offExternalClock     = 0x12
	offMaxSpeed          = 0x14
	offCurrentSpeed      = 0x16
	offStatus            = 0x18
	offUpgrade           = 0x19
	offL1CacheHandle     = 0x1A // 2.1+
	offL2CacheHandle     = 0x1C
	offL3CacheHandle     = 0x1E
	offSerialNumber      = 0x20 // 2.3+
	offAssetTag          = 0x21
	offPartNumber        = 0x22
	offCoreCount         = 0x23 // 2.5+
	offCoreEnabled       = 0x24
	offThreadCount       = 0x25
	offCharacteristics   = 0x26
	offFamily2           = 0x28 // 2.6+
	offCoreCount2        = 0x2A // 3.0+
	offCoreEnabled2      = 0x2C
	offThreadCount2      = 0x2E
	offThreadEnabled     = 0x30 // 3.6+
)

// ProcessorType is the processor type enumeration.
type ProcessorType uint8

const (
	ProcessorTypeOther            ProcessorType = 0x01
	ProcessorTypeUnknown          ProcessorType = 0x02
	ProcessorTypeCentralProcessor ProcessorType = 0x03
	ProcessorTypeMathProcessor    ProcessorType = 0x04
	ProcessorTypeDSPProcessor     ProcessorType = 0x05
	ProcessorTypeVideoProcessor   ProcessorType = 0x06
)

var processorTypeNames = map[ProcessorType]string{
	ProcessorTypeOther:            "Other",
	ProcessorTypeUnknown:          "Unknown",
	ProcessorTypeCentralProcessor: "Central Processor",
	ProcessorTypeMathProcessor:    "Math Processor",
	ProcessorTypeDSPProcessor:     "DSP Processor",
	ProcessorTypeVideoProcessor:   "Video Processor",
}

func (t ProcessorType) String() string {
	if s, ok := processorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("%#02x", uint8(t))
}

// ProcessorStatus is the status byte: bit 6 reports a populated socket and
// bits 0-2 the CPU state.
type ProcessorStatus uint8

// CPU states held in the low three status bits.
const (
	CPUStatusUnknown         = 0
	CPUStatusEnabled         = 1
	CPUStatusDisabledByUser  = 2
	CPUStatusDisabledByBIOS  = 3
	CPUStatusIdle            = 4
	CPUStatusOther           = 7
	cpuStatusMask            = 0b0000_0111
	statusSocketPopulatedBit = 1 << 6
)

// SocketPopulated reports whether a processor is installed in the socket.
func (s ProcessorStatus) SocketPopulated() bool { return s&statusSocketPopulatedBit != 0 }

// CPUStatus returns the low three bits of the status byte.
func (s ProcessorStatus) CPUStatus() uint8 { return uint8(s) & cpuStatusMask }

// Enabled reports whether the CPU state is "Enabled".
func (s ProcessorStatus) Enabled() bool { return s.CPUStatus() == CPUStatusEnabled }

func (s ProcessorStatus) String() string {
	switch s.CPUStatus() {
	case CPUStatusEnabled:
		return "Enabled"
	case CPUStatusDisabledByUser:
		return "Disabled By User"
	case CPUStatusDisabledByBIOS:
		return "Disabled By BIOS"
	case CPUStatusIdle:
		return "Idle"
	case CPUStatusOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// ProcessorCharacteristics is the 2.5+ characteristics bit field.
type ProcessorCharacteristics uint16

func (c ProcessorCharacteristics) has(bit uint) bool { return c&(1<<bit) != 0 }

func (c ProcessorCharacteristics) Capable64Bit() bool           { return c.has(2) }
func (c ProcessorCharacteristics) MultiCore() bool              { return c.has(3) }
func (c ProcessorCharacteristics) HardwareThread() bool         { return c.has(4) }
func (c ProcessorCharacteristics) ExecuteProtection() bool      { return c.has(5) }
func (c ProcessorCharacteristics) EnhancedVirtualization() bool { return c.has(6) }
func (c ProcessorCharacteristics) PowerPerformanceControl() bool {
	return c.has(7)
}
func (c ProcessorCharacteristics) Capable128Bit() bool { return c.has(8) }

// Names lists the characteristics that are set.
func (c ProcessorCharacteristics) Names() []string {
	var out []string
	for _, f := range []struct {
		ok   bool
		name string
	}{
		{c.Capable64Bit(), "64-bit capable"},
		{c.MultiCore(), "Multi-Core"},
		{c.HardwareThread(), "Hardware Thread"},
		{c.ExecuteProtection(), "Execute Protection"},
		{c.EnhancedVirtualization(), "Enhanced Virtualization"},
		{c.PowerPerformanceControl(), "Power/Performance Control"},
		{c.Capable128Bit(), "128-bit Capable"},
	} {
		if f.ok {
			out = append(out, f.name)
		}
	}
	return out
}

// Processor is a view over a processor information record. Every accessor
// returns the zero value when the record is too short to contain the field.
type Processor struct {
	rec Record
}

// DecodeProcessor returns a processor view over rec.
func DecodeProcessor(rec Record) (Processor, error) {
	if rec.Type != TypeProcessorInformation {
		return Processor{}, fmt.Errorf("structure type %d is not processor information", rec.Type)
	}
	return Processor{rec: rec}, nil
}

// Record returns the underlying record.
func (p Processor) Record() Record { return p.rec }

// Has reports whether the size bytes at off lie inside the declared length.
func (p Processor) Has(off, size int) bool {
	return off+size <= int(p.rec.Length) && off+size <= len(p.rec.data)
}

func (p Processor) u8(off int) uint8 {
	if !p.Has(off, 1) {
		return 0
	}
	return p.rec.data[off]
}

func (p Processor) u16(off int) uint16 {
	if !p.Has(off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(p.rec.data[off:])
}

func (p Processor) u64(off int) uint64 {
	if !p.Has(off, 8) {
		return 0
	}
	return binary.LittleEndian.Uint64(p.rec.data[off:])
}

func (p Processor) str(off int) string {
	return p.rec.String(p.u8(off))
}

// Field groups added by successive SMBIOS versions.
func (p Processor) HasCacheHandles() bool  { return p.Has(offL3CacheHandle, 2) }
func (p Processor) HasAssetStrings() bool  { return p.Has(offPartNumber, 1) }
func (p Processor) HasCoreCounts() bool    { return p.Has(offCharacteristics, 2) }
func (p Processor) HasFamily2() bool       { return p.Has(offFamily2, 2) }
func (p Processor) HasCoreCounts2() bool   { return p.Has(offThreadCount2, 2) }
func (p Processor) HasThreadEnabled() bool { return p.Has(offThreadEnabled, 2) }

func (p Processor) SocketDesignation() string { return p.str(offSocketDesignation) }
func (p Processor) ProcessorType() ProcessorType {
	return ProcessorType(p.u8(offProcessorType))
}
func (p Processor) Manufacturer() string { return p.str(offManufacturer) }
func (p Processor) ID() uint64           { return p.u64(offID) }
func (p Processor) Version() string      { return p.str(offVersion) }

// Family returns the processor family, taking the 2.6+ wide value when the
// legacy byte says to.
func (p Processor) Family() uint16 {
	f := p.u8(offFamily)
	if f == 0xFE && p.HasFamily2() {
		return p.u16(offFamily2)
	}
	return uint16(f)
}

// Voltage returns the processor voltage in volts, or 0 when unknown.
func (p Processor) Voltage() float64 {
	v := p.u8(offVoltage)
	if v&0x80 != 0 {
		return float64(v&0x7F) / 10
	}
	switch {
	case v&0x01 != 0:
		return 5.0
	case v&0x02 != 0:
		return 3.3
	case v&0x04 != 0:
		return 2.9
	}
	return 0
}

// ExternalClock, MaxSpeed and CurrentSpeed are in MHz; 0 means unknown.
func (p Processor) ExternalClock() uint16 { return p.u16(offExternalClock) }
func (p Processor) MaxSpeed() uint16      { return p.u16(offMaxSpeed) }
func (p Processor) CurrentSpeed() uint16  { return p.u16(offCurrentSpeed) }

func (p Processor) Status() ProcessorStatus { return ProcessorStatus(p.u8(offStatus)) }
func (p Processor) Upgrade() uint8          { return p.u8(offUpgrade) }

func (p Processor) L1CacheHandle() uint16 { return p.u16(offL1CacheHandle) }
func (p Processor) L2CacheHandle() uint16 { return p.u16(offL2CacheHandle) }
func (p Processor) L3CacheHandle() uint16 { return p.u16(offL3CacheHandle) }

func (p Processor) SerialNumber() string { return p.str(offSerialNumber) }
func (p Processor) AssetTag() string     { return p.str(offAssetTag) }
func (p Processor) PartNumber() string   { return p.str(offPartNumber) }

// wide returns the 3.0+ 16-bit value when the 8-bit one overflowed.
func (p Processor) wide(narrowOff, wideOff int) uint16 {
	n := p.u8(narrowOff)
	if n == 0xFF && p.HasCoreCounts2() {
		return p.u16(wideOff)
	}
	return uint16(n)
}

func (p Processor) CoreCount() uint16   { return p.wide(offCoreCount, offCoreCount2) }
func (p Processor) CoreEnabled() uint16 { return p.wide(offCoreEnabled, offCoreEnabled2) }
func (p Processor) ThreadCount() uint16 { return p.wide(offThreadCount, offThreadCount2) }
func (p Processor) ThreadEnabled() uint16 {
	return p.u16(offThreadEnabled)
}

func (p Processor) Characteristics() ProcessorCharacteristics {
	return ProcessorCharacteristics(p.u16(offCharacteristics))
}

// IsActiveCPU reports whether the record describes an enabled central
// processor.
func (p Processor) IsActiveCPU() bool {
	return p.ProcessorType() == ProcessorTypeCentralProcessor && p.Status().Enabled()
}

// ProcessorInfo is a plain copy of the decoded fields.
type ProcessorInfo struct {
	Handle            uint16   `json:"handle"`
	SocketDesignation string   `json:"socket_designation,omitempty"`
	Type              string   `json:"type"`
	Family            uint16   `json:"family"`
	Manufacturer      string   `json:"manufacturer,omitempty"`
	Version           string   `json:"version,omitempty"`
	Voltage           float64  `json:"voltage,omitempty"`
	ExternalClockMHz  uint16   `json:"external_clock_mhz,omitempty"`
	MaxSpeedMHz       uint16   `json:"max_speed_mhz,omitempty"`
	CurrentSpeedMHz   uint16   `json:"current_speed_mhz,omitempty"`
	Status            string   `json:"status"`
	SocketPopulated   bool     `json:"socket_populated"`
	SerialNumber      string   `json:"serial_number,omitempty"`
	AssetTag          string   `json:"asset_tag,omitempty"`
	PartNumber        string   `json:"part_number,omitempty"`
	CoreCount         uint16   `json:"core_count,omitempty"`
	CoreEnabled       uint16   `json:"core_enabled,omitempty"`
	ThreadCount       uint16   `json:"thread_count,omitempty"`
	ThreadEnabled     uint16   `json:"thread_enabled,omitempty"`
	Characteristics   []string `json:"characteristics,omitempty"`
}

// Info copies the decoded fields into a ProcessorInfo.
func (p Processor) Info() ProcessorInfo {
	return ProcessorInfo{
		Handle:            p.rec.Handle,
		SocketDesignation: p.SocketDesignation(),
		Type:              p.ProcessorType().String(),
		Family:            p.Family(),
		Manufacturer:      p.Manufacturer(),
		Version:           p.Version(),
		Voltage:           p.Voltage(),
		ExternalClockMHz:  p.ExternalClock(),
		MaxSpeedMHz:       p.MaxSpeed(),
		CurrentSpeedMHz:   p.CurrentSpeed(),
		Status:            p.Status().String(),
		SocketPopulated:   p.Status().SocketPopulated(),
		SerialNumber:      p.SerialNumber(),
		AssetTag:          p.AssetTag(),
		PartNumber:        p.PartNumber(),
		CoreCount:         p.CoreCount(),
		CoreEnabled:       p.CoreEnabled(),
		ThreadCount:       p.ThreadCount(),
		ThreadEnabled:     p.ThreadEnabled(),
		Characteristics:   p.Characteristics().Names(),
	}
}

// Processors decodes every processor information record of the table.
func (t *Table) Processors() ([]Processor, error) {
	recs, err := t.All(TypeProcessorInformation)
	procs := make([]Processor, 0, len(recs))
	for _, r := range recs {
		procs = append(procs, Processor{rec: r})
	}
	return procs, err
}

// SelectActiveProcessor returns the first record, in table order, that
// describes an enabled central processor.
func SelectActiveProcessor(t *Table) (Processor, error) {
	seen := false
	w := t.Walker()
	for w.Next() {
		rec := w.Record()
		if rec.Type != TypeProcessorInformation {
			continue
		}
		seen = true
		if p := (Processor{rec: rec}); p.IsActiveCPU() {
			return p, nil
		}
	}
	if err := w.Err(); err != nil {
		return Processor{}, err
	}
	if !seen {
		return Processor{}, ErrNoProcessor
	}
	return Processor{}, ErrNoActiveProcessor
}
