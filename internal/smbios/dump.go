package smbios

import (
	"fmt"
	"io"
	"text/tabwriter"
)

var typeNames = map[uint8]string{
	0:   "BIOS Information",
	1:   "System Information",
	2:   "Baseboard Information",
	3:   "System Enclosure",
	4:   "Processor Information",
	7:   "Cache Information",
	8:   "Port Connector Information",
	9:   "System Slots",
	11:  "OEM Strings",
	13:  "BIOS Language Information",
	16:  "Physical Memory Array",
	17:  "Memory Device",
	19:  "Memory Array Mapped Address",
	32:  "System Boot Information",
	127: "End of Table",
}

// TypeName returns the name of a structure type.
func TypeName(typ uint8) string {
	if n, ok := typeNames[typ]; ok {
		return n
	}
	if typ >= 128 {
		return "OEM-specific"
	}
	return "Unknown"
}

// Dump writes one line per structure: offset, handle, type, length and the
// number of attached strings. A malformed table is listed up to the first
// bad structure and the error is returned.
func Dump(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SMBIOS %s, %d bytes\n", t.Version(), t.Len())
	fmt.Fprintln(tw, "OFFSET\tHANDLE\tTYPE\tNAME\tLENGTH\tSTRINGS")

	wk := t.Walker()
	for wk.Next() {
		r := wk.Record()
		fmt.Fprintf(tw, "%#06x\t%#06x\t%d\t%s\t%d\t%d\n",
			r.Offset, r.Handle, r.Type, TypeName(r.Type), r.Length, len(r.Strings()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return wk.Err()
}
