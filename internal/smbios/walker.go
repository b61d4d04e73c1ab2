package smbios

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

const headerLen = 4

// Structure types referenced by this package.
const (
	TypeSystemInformation    uint8 = 1
	TypeProcessorInformation uint8 = 4
	TypeEndOfTable           uint8 = 127
)

// Header is the fixed header of every SMBIOS structure.
type Header struct {
	Type   uint8  `json:"type"`
	Length uint8  `json:"length"`
	Handle uint16 `json:"handle"`
}

// Record is one structure of the table. Data covers exactly Length bytes
// (header included); the string set follows it in the table.
type Record struct {
	Header
	Offset  int
	data    []byte
	strings []string
}

// Data returns the formatted area of the record, header included.
func (r Record) Data() []byte { return r.data }

// Strings returns the string set attached to the record.
func (r Record) Strings() []string { return r.strings }

// String returns the string referenced by a 1-based index. Index 0 means
// "no string" and out-of-range indexes resolve to "".
func (r Record) String(index uint8) string {
	if index == 0 || int(index) > len(r.strings) {
		return ""
	}
	return r.strings[index-1]
}

// Next reads the record starting at offset and returns it together with the
// offset of the following record. io.EOF is returned once offset reaches the
// end of the table or the previous record was the End-of-Table marker.
func (t *Table) Next(offset int) (Record, int, error) {
	if offset < 0 || offset >= len(t.data) {
		return Record{}, len(t.data), io.EOF
	}
	if len(t.data)-offset < headerLen {
		return Record{}, len(t.data), fmt.Errorf("%w: truncated header at offset %#x", ErrMalformed, offset)
	}

	h := Header{
		Type:   t.data[offset],
		Length: t.data[offset+1],
		Handle: binary.LittleEndian.Uint16(t.data[offset+2 : offset+4]),
	}
	if int(h.Length) < headerLen {
		return Record{}, len(t.data), fmt.Errorf("%w: handle %#04x declares length %d", ErrMalformed, h.Handle, h.Length)
	}

	end := offset + int(h.Length)
	if end > len(t.data) {
		return Record{}, len(t.data), fmt.Errorf("%w: handle %#04x overruns table at offset %#x", ErrMalformed, h.Handle, offset)
	}

	// The string set always ends with a double NUL, even when it is empty.
	term := bytes.Index(t.data[end:], []byte{0, 0})
	if term < 0 {
		return Record{}, len(t.data), fmt.Errorf("%w: handle %#04x has no string terminator", ErrMalformed, h.Handle)
	}
	next := end + term + 2

	rec := Record{
		Header:  h,
		Offset:  offset,
		data:    t.data[offset:end],
		strings: splitStrings(t.data[end : end+term]),
	}
	if h.Type == TypeEndOfTable {
		next = len(t.data)
	}
	return rec, next, nil
}

func splitStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.Split(b, []byte{0})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(string(p)))
	}
	return out
}

// Walker iterates the records of a table in order.
//
//	w := t.Walker()
//	for w.Next() {
//		rec := w.Record()
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	t      *Table
	offset int
	rec    Record
	err    error
	done   bool
}

// Walker returns a walker positioned before the first record.
func (t *Table) Walker() *Walker {
	return &Walker{t: t}
}

// Next advances to the next record. It returns false at the end of the table
// or on error.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	rec, next, err := w.t.Next(w.offset)
	if err != nil {
		w.done = true
		if err != io.EOF {
			w.err = err
		}
		return false
	}
	w.rec = rec
	w.offset = next
	return true
}

// Record returns the current record.
func (w *Walker) Record() Record { return w.rec }

// Err returns the first non-EOF error met by Next.
func (w *Walker) Err() error { return w.err }

// Reset rewinds the walker to the start of the table.
func (w *Walker) Reset() {
	*w = Walker{t: w.t}
}

// All returns every record of type typ in table order.
func (t *Table) All(typ uint8) ([]Record, error) {
	var out []Record
	w := t.Walker()
	for w.Next() {
		if w.Record().Type == typ {
			out = append(out, w.Record())
		}
	}
	return out, w.Err()
}

// Find returns the first record of type typ.
func (t *Table) Find(typ uint8) (Record, bool, error) {
	w := t.Walker()
	for w.Next() {
		if w.Record().Type == typ {
			return w.Record(), true, nil
		}
	}
	return Record{}, false, w.Err()
}
