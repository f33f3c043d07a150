package batch

import (
	"fmt"

	"github.com/kmatov/barcache/internal/model"
)

// buffer is one accumulation window in either layout. Zero-value-unsafe;
// use newBuffer.
type buffer struct {
	layout Layout
	fields []string // column mode: fixed on first record
	cols   map[string][]any
	rows   []model.Record
	count  int
}

func newBuffer(layout Layout) *buffer {
	return &buffer{layout: layout}
}

// append adds one record. In column mode, every record must carry the same
// field names in the same order as the first one; a mismatch is an error,
// not a silent coercion.
func (b *buffer) append(rec model.Record) error {
	if b.layout == LayoutRow {
		b.rows = append(b.rows, rec.Clone())
		b.count++
		return nil
	}

	if b.count == 0 {
		b.fields = rec.Fields()
		b.cols = make(map[string][]any, len(b.fields))
	} else if !fieldsMatch(b.fields, rec) {
		return fmt.Errorf("record fields %v do not match buffer columns %v", rec.Fields(), b.fields)
	}

	for _, f := range b.fields {
		v, _ := rec.Get(f)
		b.cols[f] = append(b.cols[f], v)
	}
	b.count++
	return nil
}

func (b *buffer) len() int {
	return b.count
}

// event materializes an owned snapshot; the buffer can be mutated or reset
// afterwards without aliasing into the emitted data.
func (b *buffer) event(typ EventType) Event {
	ev := Event{Type: typ, Layout: b.layout}

	if b.layout == LayoutRow {
		ev.Rows = make([]model.Record, 0, len(b.rows))
		for _, r := range b.rows {
			ev.Rows = append(ev.Rows, r.Clone())
		}
		return ev
	}

	ev.Columns = ColumnData{
		Fields: append([]string(nil), b.fields...),
		Values: make(map[string][]any, len(b.fields)),
	}
	for _, f := range b.fields {
		ev.Columns.Values[f] = append([]any(nil), b.cols[f]...)
	}
	return ev
}

func fieldsMatch(fields []string, rec model.Record) bool {
	got := rec.Fields()
	if len(got) != len(fields) {
		return false
	}
	for i, f := range fields {
		if got[i] != f {
			return false
		}
	}
	return true
}
