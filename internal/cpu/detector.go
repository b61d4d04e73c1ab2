// Package cpu identifies the host processor. Topology and the OS description
// are required; firmware (SMBIOS) data and sensor readings refine the result
// when they are available.
package cpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/smbios"
)

// FirmwareSource returns the SMBIOS table.
type FirmwareSource interface {
	Table() (*smbios.Table, error)
}

// Options selects optional detection stages.
type Options struct {
	Temperature bool
}

// Detector runs the detection stages against pluggable sources.
type Detector struct {
	Topology    TopologySource
	OS          OSInfoSource
	Fallback    OSInfoSource
	Firmware    FirmwareSource
	Temperature TemperatureSource
	Logger      *slog.Logger
}

// NewDetector wires the sources of the running system and the process-wide
// SMBIOS table cache.
func NewDetector() *Detector {
	return &Detector{
		Topology:    NewSystemTopology(),
		OS:          NewSystemOSInfo(),
		Fallback:    OSInfoFunc(CPUIDInfo),
		Firmware:    smbios.Default(),
		Temperature: host.SensorsTemperatures,
		Logger:      slog.Default(),
	}
}

// Detect runs every stage and returns the merged result. Only topology and
// OS description failures are returned as errors; everything else becomes a
// warning on the result.
func (d *Detector) Detect(opts Options) (*Result, error) {
	res := &Result{}

	rels, err := d.Topology.Relationships()
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	topo := Tally(rels)
	res.CoresPhysical = topo.CoresPhysical
	res.CoresOnline = topo.CoresOnline
	res.CoresLogical = topo.CoresLogical

	info, err := d.osInfo(res)
	if err != nil {
		return nil, fmt.Errorf("os info: %w", err)
	}
	res.Name = info.Name
	res.Vendor = info.Vendor
	res.setFrequency(Resolve(info.BaseMHz, 0, 0))

	if opts.Temperature {
		d.detectTemperature(res)
	}

	d.detectFirmware(res)

	return res, nil
}

// osInfo reads the OS description and fills the gaps from the fallback. A
// failing OS source is survivable as long as the fallback yields a name.
func (d *Detector) osInfo(res *Result) (OSInfo, error) {
	var (
		info  OSInfo
		osErr error
	)
	if d.OS != nil {
		info, osErr = d.OS.Info()
	} else {
		osErr = ErrOSInfo
	}
	if info.complete() || d.Fallback == nil {
		return info, osErr
	}

	fb, err := d.Fallback.Info()
	if err != nil {
		if osErr != nil {
			return OSInfo{}, errors.Join(osErr, err)
		}
		d.warn(res, "cpuid fallback", err)
		return info, nil
	}
	if osErr != nil {
		if fb.Name == "" {
			return OSInfo{}, osErr
		}
		d.warn(res, "os info", osErr)
		return fb, nil
	}
	return info.fill(fb), nil
}

func (d *Detector) detectTemperature(res *Result) {
	if d.Temperature == nil {
		d.warn(res, "temperature", ErrNoTemperature)
		return
	}
	temp, err := HottestCPU(d.Temperature())
	if err != nil {
		d.warn(res, "temperature", err)
		return
	}
	res.Temperature = &temp
}

func (d *Detector) detectFirmware(res *Result) {
	if d.Firmware == nil {
		d.warn(res, "smbios", smbios.ErrUnavailable)
		return
	}
	t, err := d.Firmware.Table()
	if err != nil {
		d.warn(res, "smbios", err)
		return
	}
	res.SMBIOSVersion = t.Version().String()

	p, err := smbios.SelectActiveProcessor(t)
	if err != nil {
		d.warn(res, "smbios", err)
		return
	}
	res.setFrequency(res.frequency().Merge(uint32(p.MaxSpeed()), uint32(p.CurrentSpeed())))
	info := p.Info()
	res.Processor = &info
}

func (d *Detector) warn(res *Result, stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, err)
	res.Warnings = append(res.Warnings, msg)
	if d.Logger != nil {
		d.Logger.Debug("cpu detection stage skipped", "stage", stage, "error", err)
	}
}
