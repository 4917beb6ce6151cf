// SPDX-License-Identifier: Apache-2.0

package table

import "fmt"

const (
	idKey     = "id"
	numberKey = "#"
	// reservedPrefix renames cells whose header collides with id or #.
	reservedPrefix = "source_"
)

// RowRecord is one normalized row keyed by header, as consumed by grids and
// entity payload builders. ID is "row-<index>" and is only stable within one
// normalization pass.
type RowRecord struct {
	ID     string
	Number int
	Cells  Object
}

// Lookup returns the cell stored under header.
func (r RowRecord) Lookup(header string) (any, bool) {
	return r.Cells.Get(header)
}

// Get returns the cell stored under header, or "" when absent.
func (r RowRecord) Get(header string) any {
	if v, ok := r.Cells.Get(header); ok {
		return v
	}
	return ""
}

// MarshalJSON flattens the record to {"id": ..., "#": ..., <header>: <cell>, ...}.
// A cell named id or # is emitted as source_id or source_#, suffixed
// " (2)", " (3)", ... if the record already has a cell by that name.
func (r RowRecord) MarshalJSON() ([]byte, error) {
	used := make(map[string]bool, len(r.Cells)+2)
	used[idKey], used[numberKey] = true, true
	for _, c := range r.Cells {
		if c.Key != idKey && c.Key != numberKey {
			used[c.Key] = true
		}
	}

	flat := make(Object, 0, len(r.Cells)+2)
	flat = append(flat, Field{Key: idKey, Value: r.ID}, Field{Key: numberKey, Value: r.Number})
	for _, c := range r.Cells {
		key := c.Key
		if key == idKey || key == numberKey {
			key = reservedPrefix + c.Key
			for i := 2; used[key]; i++ {
				key = fmt.Sprintf("%s%s (%d)", reservedPrefix, c.Key, i)
			}
			used[key] = true
		}
		flat = append(flat, Field{Key: key, Value: c.Value})
	}
	return flat.MarshalJSON()
}

// ToRowObjects projects every row of t into a RowRecord. Missing cells read as "".
func ToRowObjects(t Table) []RowRecord {
	records := make([]RowRecord, len(t.Rows))
	for i, row := range t.Rows {
		cells := make(Object, len(t.Headers))
		for j, h := range t.Headers {
			var v any = ""
			if j < len(row) {
				v = row[j]
			}
			cells[j] = Field{Key: h, Value: v}
		}
		records[i] = RowRecord{
			ID:     fmt.Sprintf("row-%d", i),
			Number: i + 1,
			Cells:  cells,
		}
	}
	return records
}
