// SPDX-License-Identifier: Apache-2.0

package table

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table is the canonical row-based representation every consumer works from.
// Rows[i][j] belongs to Headers[j].
type Table struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

func emptyTable() Table {
	return Table{Headers: []string{}, Rows: [][]any{}}
}

// Empty reports whether the table has neither headers nor rows.
func (t Table) Empty() bool {
	return len(t.Headers) == 0 && len(t.Rows) == 0
}

// UnmarshalJSON keeps object cells ordered and numbers exact, matching Decode.
func (t *Table) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("decode table: expected object, got %T", v)
	}

	out := emptyTable()
	if raw, ok := obj.Get("headers"); ok {
		headers, _ := asArray(raw)
		for _, h := range headers {
			out.Headers = append(out.Headers, stringify(h))
		}
	}
	if raw, ok := obj.Get("rows"); ok {
		rows, _ := asArray(raw)
		for i, r := range rows {
			cells, ok := asArray(r)
			if !ok {
				return fmt.Errorf("decode table: row %d is not an array", i)
			}
			out.Rows = append(out.Rows, cells)
		}
	}
	*t = out
	return nil
}

// ValidationError lists the rows whose length differs from the header count.
type ValidationError struct {
	Expected int
	Rows     []int
}

func (e *ValidationError) Error() string {
	idx := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		idx[i] = fmt.Sprint(r)
	}
	return fmt.Sprintf("rows [%s] do not have %d cells", strings.Join(idx, ", "), e.Expected)
}

// Validate is the strict check for callers that refuse ragged tables.
// Normalize never produces one, but tables built elsewhere can.
func Validate(t Table) error {
	var bad []int
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			bad = append(bad, i)
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Expected: len(t.Headers), Rows: bad}
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return fmt.Sprint(v)
}
