package collector

import (
	"time"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
)

// Snapshot is one CPU identification of a host, as submitted to a collector.
type Snapshot struct {
	ID          string      `json:"id"`
	CollectedAt time.Time   `json:"collected_at"`
	Hostname    string      `json:"hostname"`
	System      SystemInfo  `json:"system"`
	CPU         *cpu.Result `json:"cpu"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// SystemInfo identifies the machine the snapshot was taken on.
type SystemInfo struct {
	Manufacturer  string `json:"manufacturer"`
	ProductName   string `json:"product_name"`
	Version       string `json:"version,omitempty"`
	SerialNumber  string `json:"serial_number"`
	UUID          string `json:"uuid"`
	SKUNumber     string `json:"sku_number,omitempty"`
	Family        string `json:"family,omitempty"`
	SMBIOSVersion string `json:"smbios_version,omitempty"`
}
