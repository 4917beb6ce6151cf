// SPDX-License-Identifier: Apache-2.0

package table

import (
	"fmt"
	"strings"
)

// DefaultTransposeAllowList holds header names that mark a square matrix as a
// genuine entity table, which is then left untransposed.
var DefaultTransposeAllowList = []string{"Team", "Player", "League", "City", "State", "Stadium", "Home Stadium"}

// maxRecursion bounds JSON-string and meta-wrapper unwrapping.
const maxRecursion = 8

// Result is a normalized table plus what the normalizer had to do to get there.
type Result struct {
	Table      Table
	Shape      ShapeKind
	Transposed bool
	// Adjusted lists rows that were padded or truncated to the header count.
	Adjusted []int
}

// Normalizer converts any supported shape into a Table. It is safe for
// concurrent use and never mutates its input.
type Normalizer struct {
	allow map[string]struct{}
}

// NewNormalizer builds a normalizer whose transposition check ignores tables
// carrying any of the allow-listed headers (compared case-insensitively).
func NewNormalizer(allowList []string) *Normalizer {
	allow := make(map[string]struct{}, len(allowList))
	for _, h := range allowList {
		allow[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return &Normalizer{allow: allow}
}

var defaultNormalizer = NewNormalizer(DefaultTransposeAllowList)

// Normalize converts data with the default allow-list.
func Normalize(data any) Table {
	return defaultNormalizer.Normalize(data).Table
}

// Normalize converts data into a Table.
func (n *Normalizer) Normalize(data any) Result {
	return n.normalize(data, 0)
}

func (n *Normalizer) normalize(data any, depth int) Result {
	shape := DetectShape(data)
	if depth > maxRecursion {
		return emptyResult(shape.Kind)
	}

	switch shape.Kind {
	case ShapeTable:
		return n.fromTable(shape.Table)
	case ShapeDatabase:
		return n.fromDatabase(shape, depth)
	case ShapeStandard:
		return n.fromStandard(shape)
	case ShapeArrayOfObjects:
		return n.fromObjects(shape.Rows)
	case ShapeColumnOriented:
		return n.fromColumns(shape.Columns)
	case ShapeSingleObject:
		return n.fromSingle(shape.Object)
	case ShapeJSONString:
		return n.fromString(shape.Text, depth)
	case ShapeUnknown:
		return emptyResult(ShapeUnknown)
	}
	panic(fmt.Sprintf("table: unhandled shape %d", shape.Kind))
}

func (n *Normalizer) fromTable(t Table) Result {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = append([]any(nil), r...)
	}
	return finish(ShapeTable, append([]string(nil), t.Headers...), rows, false)
}

func (n *Normalizer) fromDatabase(s Shape, depth int) Result {
	names := headerNames(s.Headers)

	// Some producers wrap a whole {headers, rows} payload in a database envelope.
	if len(names) == 2 && names[0] == "headers" && names[1] == "rows" {
		var inner any = s.Rows
		if len(s.Rows) > 0 {
			if obj, ok := asObject(s.Rows[0]); ok && obj.Has("headers") && obj.Has("rows") {
				inner = obj
			}
		}
		r := n.normalize(inner, depth+1)
		r.Shape = ShapeDatabase
		return r
	}

	rows := make([][]any, len(s.Rows))
	for i, row := range s.Rows {
		rows[i] = toRow(row, names)
	}
	return finish(ShapeDatabase, names, rows, false)
}

func (n *Normalizer) fromStandard(s Shape) Result {
	names := headerNames(s.Headers)
	rows := make([][]any, len(s.Rows))
	for i, row := range s.Rows {
		rows[i] = toRow(row, names)
	}

	transposed := false
	if len(s.Rows) > 0 && isArray(s.Rows[0]) && n.shouldTranspose(names, rows) {
		rows = transpose(rows)
		transposed = true
	}
	return finish(ShapeStandard, names, rows, transposed)
}

func (n *Normalizer) fromObjects(items []any) Result {
	first, _ := asObject(items[0])
	var names []string
	for _, k := range first.Keys() {
		if !strings.HasPrefix(k, "_") {
			names = append(names, k)
		}
	}

	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = toRow(item, names)
	}
	return finish(ShapeArrayOfObjects, names, rows, false)
}

func (n *Normalizer) fromColumns(cols []any) Result {
	names := make([]string, len(cols))
	values := make([][]any, len(cols))
	longest := 0

	for i, c := range cols {
		if obj, ok := asObject(c); ok {
			if h, ok := obj.Get("header"); ok {
				names[i] = stringify(h)
			}
			if raw, ok := obj.Get("values"); ok {
				values[i], _ = asArray(raw)
			}
		}
		if names[i] == "" {
			names[i] = fmt.Sprintf("Column %d", i+1)
		}
		if len(values[i]) > longest {
			longest = len(values[i])
		}
	}

	rows := make([][]any, longest)
	for r := 0; r < longest; r++ {
		row := make([]any, len(cols))
		for c := range cols {
			row[c] = ""
			if r < len(values[c]) && values[c][r] != nil {
				row[c] = values[c][r]
			}
		}
		rows[r] = row
	}
	return finish(ShapeColumnOriented, names, rows, false)
}

func (n *Normalizer) fromSingle(obj Object) Result {
	var names []string
	for _, k := range obj.Keys() {
		switch {
		case strings.HasPrefix(k, "_"), k == "headers", k == "rows", k == "columns":
			continue
		}
		names = append(names, k)
	}
	if len(names) == 0 {
		return emptyResult(ShapeSingleObject)
	}
	return finish(ShapeSingleObject, names, [][]any{toRow(obj, names)}, false)
}

func (n *Normalizer) fromString(text string, depth int) Result {
	v, err := Decode([]byte(strings.TrimSpace(text)))
	if err != nil {
		return finish(ShapeJSONString, []string{"Value"}, [][]any{{text}}, false)
	}
	r := n.normalize(v, depth+1)
	r.Shape = ShapeJSONString
	return r
}

// shouldTranspose accepts only a strictly square matrix larger than 1x1.
// Ragged rows are left in place so finish can report them.
func (n *Normalizer) shouldTranspose(headers []string, rows [][]any) bool {
	size := len(rows)
	if size < 2 || size != len(headers) {
		return false
	}
	for _, row := range rows {
		if len(row) != size {
			return false
		}
	}
	for _, h := range headers {
		if _, ok := n.allow[strings.ToLower(strings.TrimSpace(h))]; ok {
			return false
		}
	}
	return true
}

// transpose swaps the axes of a square matrix.
func transpose(rows [][]any) [][]any {
	size := len(rows)
	out := make([][]any, size)
	for i := 0; i < size; i++ {
		out[i] = make([]any, size)
		for j := 0; j < size; j++ {
			out[i][j] = rows[j][i]
		}
	}
	return out
}

// toRow turns one raw row into cells: arrays are copied, objects projected
// through headers, scalars become a single cell.
func toRow(row any, headers []string) []any {
	if arr, ok := asArray(row); ok {
		return append([]any(nil), arr...)
	}
	if obj, ok := asObject(row); ok {
		cells := make([]any, len(headers))
		for i, h := range headers {
			v, ok := obj.Get(h)
			if !ok || v == nil {
				v = ""
			}
			cells[i] = v
		}
		return cells
	}
	return []any{row}
}

func headerNames(raw []any) []string {
	names := make([]string, len(raw))
	for i, h := range raw {
		names[i] = stringify(h)
	}
	return names
}

// uniqueHeaders fills blanks with "Column n" and suffixes repeats with " (2)", " (3)", ...
func uniqueHeaders(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		candidate := name
		for seen[candidate] > 0 {
			seen[name]++
			candidate = fmt.Sprintf("%s (%d)", name, seen[name])
		}
		seen[candidate]++
		out[i] = candidate
	}
	return out
}

func finish(kind ShapeKind, names []string, rows [][]any, transposed bool) Result {
	headers := uniqueHeaders(names)
	var adjusted []int
	for i, row := range rows {
		switch {
		case len(row) < len(headers):
			padded := make([]any, len(headers))
			copy(padded, row)
			for j := len(row); j < len(headers); j++ {
				padded[j] = ""
			}
			rows[i] = padded
			adjusted = append(adjusted, i)
		case len(row) > len(headers):
			rows[i] = row[:len(headers):len(headers)]
			adjusted = append(adjusted, i)
		}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return Result{
		Table:      Table{Headers: headers, Rows: rows},
		Shape:      kind,
		Transposed: transposed,
		Adjusted:   adjusted,
	}
}

func emptyResult(kind ShapeKind) Result {
	return Result{Table: emptyTable(), Shape: kind}
}
