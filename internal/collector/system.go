package collector

import (
	sidero "github.com/siderolabs/go-smbios/smbios"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
)

// SystemInfoFrom returns a reader of the system information structure
// (type 1) for manufacturer, product, serial number and UUID. It decodes the
// table held by src, so system identity and the CPU stage share one load of
// the firmware table.
func SystemInfoFrom(src cpu.FirmwareSource) func() (SystemInfo, error) {
	return func() (SystemInfo, error) {
		t, err := src.Table()
		if err != nil {
			return SystemInfo{}, err
		}

		v := t.Version()
		s, err := sidero.Decode(t.Reader(), sidero.Version{Major: v.Major, Minor: v.Minor, Revision: v.Revision})
		if err != nil {
			return SystemInfo{}, err
		}

		si := s.SystemInformation
		return SystemInfo{
			Manufacturer:  si.Manufacturer,
			ProductName:   si.ProductName,
			Version:       si.Version,
			SerialNumber:  si.SerialNumber,
			UUID:          si.UUID,
			SKUNumber:     si.SKUNumber,
			Family:        si.Family,
			SMBIOSVersion: v.String(),
		}, nil
	}
}
