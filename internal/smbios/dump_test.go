package smbios_test

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/smbios"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/smbios/smbiostest"
)

func TestDump(t *testing.T) {
	table := smbiostest.New().
		Raw(smbios.TypeSystemInformation, make([]byte, 4), "Dell Inc.", "PowerEdge R640").
		Processor(smbiostest.Processor{Type: uint8(smbios.ProcessorTypeCentralProcessor), Status: 0x41, Socket: "CPU1"}).
		Raw(0xC0, nil).
		End().
		Table()

	var buf bytes.Buffer
	require.NoError(t, smbios.Dump(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "SMBIOS 3.6.0, "+strconv.Itoa(table.Len())+" bytes", lines[0])
	assert.Contains(t, lines[2], "System Information")
	assert.Contains(t, lines[3], "Processor Information")
	assert.Contains(t, lines[4], "OEM-specific")
	assert.Contains(t, lines[5], "End of Table")
}

func TestDumpMalformed(t *testing.T) {
	raw := smbiostest.New().Raw(smbios.TypeSystemInformation, make([]byte, 4), "x").Bytes()
	raw = append(raw, 0x04, 0x30) // truncated header
	var buf bytes.Buffer
	err := smbios.Dump(&buf, smbios.NewTable(raw, smbios.Version{Major: 2, Minor: 8}))
	assert.ErrorIs(t, err, smbios.ErrMalformed)
	assert.Contains(t, buf.String(), "System Information")
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "Processor Information", smbios.TypeName(4))
	assert.Equal(t, "Unknown", smbios.TypeName(99))
	assert.Equal(t, "OEM-specific", smbios.TypeName(200))
}
