package cpu

// maxPlausibleMHz bounds firmware-reported maximum speeds. Some hypervisors
// (VMware among them) fill the field with nonsense.
const maxPlausibleMHz = 30000

// Frequency is a min/max clock pair in GHz.
type Frequency struct {
	Min float64
	Max float64
}

// Resolve merges the OS-reported base clock with the firmware maximum and
// current speeds, all in MHz. The OS value seeds both bounds; firmware can
// only raise Max.
func Resolve(osMHz, fwMaxMHz, fwCurrentMHz uint32) Frequency {
	var f Frequency
	if osMHz > 0 {
		f.Min = float64(osMHz) / 1000
		f.Max = f.Min
	}
	return f.Merge(fwMaxMHz, fwCurrentMHz)
}

// Merge raises Max to the firmware speed when that is strictly higher. The
// maximum speed is preferred when plausible, otherwise the current speed is
// used. Min is never touched.
func (f Frequency) Merge(fwMaxMHz, fwCurrentMHz uint32) Frequency {
	speed := fwCurrentMHz
	if fwMaxMHz > 0 && fwMaxMHz < maxPlausibleMHz {
		speed = fwMaxMHz
	}
	if ghz := float64(speed) / 1000; f.Max < ghz {
		f.Max = ghz
	}
	return f
}
