package cpu

import "github.com/go-tangra/go-tangra-cpuinfo/internal/smbios"

// Result is the outcome of one detection. Empty strings and zero values mean
// "not detected"; Warnings lists every best-effort stage that failed.
type Result struct {
	Name          string                `json:"name"`
	Vendor        string                `json:"vendor"`
	FrequencyMin  float64               `json:"frequency_min"`
	FrequencyMax  float64               `json:"frequency_max"`
	CoresPhysical uint32                `json:"cores_physical"`
	CoresLogical  uint32                `json:"cores_logical"`
	CoresOnline   uint32                `json:"cores_online"`
	Temperature   *float64              `json:"temperature,omitempty"`
	Processor     *smbios.ProcessorInfo `json:"processor,omitempty"`
	SMBIOSVersion string                `json:"smbios_version,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
}

func (r *Result) setFrequency(f Frequency) {
	r.FrequencyMin = f.Min
	r.FrequencyMax = f.Max
}

func (r *Result) frequency() Frequency {
	return Frequency{Min: r.FrequencyMin, Max: r.FrequencyMax}
}
