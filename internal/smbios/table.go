// Package smbios reads the raw SMBIOS/DMI firmware table and walks the
// structures it contains. Only the processor information structure
// (type 4) is decoded field by field; every other structure is exposed as a
// header, its formatted bytes and its string set.
package smbios

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	dosmbios "github.com/digitalocean/go-smbios/smbios"
)

var (
	// ErrUnavailable is returned when the firmware table cannot be loaded.
	ErrUnavailable = errors.New("smbios table unavailable")
	// ErrMalformed is returned when a structure does not fit in the table.
	ErrMalformed = errors.New("malformed smbios structure")
)

// Version is the SMBIOS version declared by the entry point.
type Version struct {
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Revision int `json:"revision"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// Table is an immutable copy of the SMBIOS structure table.
type Table struct {
	data    []byte
	version Version
}

// NewTable wraps raw structure-table bytes. The slice is not copied and must
// not be modified afterwards.
func NewTable(data []byte, v Version) *Table {
	return &Table{data: data, version: v}
}

// Len returns the table size in bytes.
func (t *Table) Len() int { return len(t.data) }

// Version returns the SMBIOS version of the table.
func (t *Table) Version() Version { return t.version }

// Reader returns a reader over the raw structure table, for decoders that
// consume the table as a stream.
func (t *Table) Reader() *bytes.Reader { return bytes.NewReader(t.data) }

// LoadFunc loads the raw structure table from the platform.
type LoadFunc func() (*Table, error)

// Provider loads the table at most once and hands out the cached result
// (or the cached failure) afterwards.
type Provider struct {
	load  LoadFunc
	once  sync.Once
	table *Table
	err   error
}

// NewProvider returns a Provider backed by load.
func NewProvider(load LoadFunc) *Provider {
	return &Provider{load: load}
}

var defaultProvider = NewProvider(LoadFirmware)

// Default returns the process-wide provider reading the platform firmware.
func Default() *Provider { return defaultProvider }

// Table returns the cached table, loading it on first use.
func (p *Provider) Table() (*Table, error) {
	p.once.Do(func() {
		p.table, p.err = p.load()
		if p.err == nil && p.table == nil {
			p.err = ErrUnavailable
		}
	})
	return p.table, p.err
}

// LoadFirmware reads the structure table from the operating system.
func LoadFirmware() (*Table, error) {
	rc, ep, err := dosmbios.Stream()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", ErrUnavailable, err)
	}
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: table is %d bytes", ErrUnavailable, len(data))
	}

	major, minor, rev := ep.Version()
	return NewTable(data, Version{Major: major, Minor: minor, Revision: rev}), nil
}
