package cpu

import (
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// ErrNoTemperature is reported when no CPU sensor could be read.
var ErrNoTemperature = errors.New("no CPU temperature sensor found")

// TemperatureSource returns the raw sensor readings of the host.
type TemperatureSource func() ([]host.TemperatureStat, error)

// cpuSensorKeys are the substrings that identify CPU package or core sensors
// across hwmon drivers and platforms.
var cpuSensorKeys = []string{"coretemp", "k10temp", "zenpower", "cpu", "package", "tctl", "tdie"}

// thermalZoneKeys identify ACPI thermal zones. Windows reports nothing else
// (MSAcpi_ThermalZoneTemperature instance names such as
// ACPI\ThermalZone\TZ00_0); they are used only when no CPU sensor is present.
var thermalZoneKeys = []string{"thermalzone", "acpitz"}

func keyMatches(key string, keys []string) bool {
	key = strings.ToLower(key)
	for _, k := range keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

func hottest(stats []host.TemperatureStat, keys []string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, s := range stats {
		if !keyMatches(s.SensorKey, keys) || s.Temperature <= 0 || s.Temperature > 150 {
			continue
		}
		if !found || s.Temperature > best {
			best, found = s.Temperature, true
		}
	}
	return best, found
}

// HottestCPU picks the highest plausible CPU reading in °C, falling back to
// the ACPI thermal zones. Sensor drivers frequently return partial results
// together with an error, so readings win over the error when there are any.
func HottestCPU(stats []host.TemperatureStat, readErr error) (float64, error) {
	if t, ok := hottest(stats, cpuSensorKeys); ok {
		return t, nil
	}
	if t, ok := hottest(stats, thermalZoneKeys); ok {
		return t, nil
	}
	if readErr != nil {
		return 0, errors.Join(ErrNoTemperature, readErr)
	}
	return 0, ErrNoTemperature
}
