package collector

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
)

// Options selects optional collection stages.
type Options struct {
	Temperature bool
}

// Collector assembles snapshots of the local host.
type Collector struct {
	Detector *cpu.Detector
	System   func() (SystemInfo, error)
	Hostname func() (string, error)
	Now      func() time.Time
}

// New returns a collector backed by the running system.
func New() *Collector {
	d := cpu.NewDetector()
	return &Collector{
		Detector: d,
		System:   SystemInfoFrom(d.Firmware),
		Hostname: os.Hostname,
		Now:      time.Now,
	}
}

// Collect gathers a CPU snapshot of the local host with the default collector.
func Collect(opts Options) (*Snapshot, error) {
	return New().Collect(opts)
}

// Collect attempts all sections and returns partial results alongside any
// errors. Section errors are also recorded in the snapshot warnings so that a
// partial snapshot explains itself once stored.
func (c *Collector) Collect(opts Options) (*Snapshot, error) {
	hostname, _ := c.Hostname()

	snap := &Snapshot{
		ID:          uuid.NewString(),
		CollectedAt: c.Now().UTC(),
		Hostname:    hostname,
	}

	var errs []error

	sys, err := c.System()
	if err != nil {
		errs = append(errs, fmt.Errorf("system: %w", err))
	}
	snap.System = sys

	res, err := c.Detector.Detect(cpu.Options{Temperature: opts.Temperature})
	if err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	snap.CPU = res

	for _, e := range errs {
		snap.Warnings = append(snap.Warnings, e.Error())
	}
	if len(errs) > 0 {
		return snap, fmt.Errorf("collection errors: %w", errors.Join(errs...))
	}
	return snap, nil
}
