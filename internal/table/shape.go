// SPDX-License-Identifier: Apache-2.0

package table

// ShapeKind names the layouts the normalizer understands. DetectShape is the
// only place that inspects raw payloads; everything else switches on the kind.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	// ShapeTable is an already-normalized Table.
	ShapeTable
	// ShapeDatabase is {column_order: [...], rows: [...]}.
	ShapeDatabase
	// ShapeStandard is {headers: [...], rows: [...]}.
	ShapeStandard
	// ShapeArrayOfObjects is [{...}, {...}] or {rows: [{...}]} without headers.
	ShapeArrayOfObjects
	// ShapeColumnOriented is {columns: [{header, values}]}.
	ShapeColumnOriented
	// ShapeSingleObject is one flat record.
	ShapeSingleObject
	// ShapeJSONString is a string that may hold any of the above.
	ShapeJSONString
)

var shapeNames = map[ShapeKind]string{
	ShapeUnknown:        "unknown",
	ShapeTable:          "table",
	ShapeDatabase:       "database",
	ShapeStandard:       "standard",
	ShapeArrayOfObjects: "array_of_objects",
	ShapeColumnOriented: "column_oriented",
	ShapeSingleObject:   "single_object",
	ShapeJSONString:     "json_string",
}

func (k ShapeKind) String() string {
	if name, ok := shapeNames[k]; ok {
		return name
	}
	return "unknown"
}

// Shape is the detected layout together with the parts of the payload each
// kind needs.
type Shape struct {
	Kind ShapeKind

	Headers []any  // database: column_order, standard: headers
	Rows    []any  // database, standard, array of objects
	Columns []any  // column oriented
	Object  Object // single object
	Text    string // json string
	Table   Table  // already normalized
}

// DetectShape classifies data. The checks run in priority order and the
// first match wins.
func DetectShape(data any) Shape {
	switch v := data.(type) {
	case nil:
		return Shape{Kind: ShapeUnknown}
	case Table:
		return Shape{Kind: ShapeTable, Table: v}
	case *Table:
		if v == nil {
			return Shape{Kind: ShapeUnknown}
		}
		return Shape{Kind: ShapeTable, Table: *v}
	case string:
		return Shape{Kind: ShapeJSONString, Text: v}
	}

	if arr, ok := asArray(data); ok {
		if len(arr) > 0 && isObject(arr[0]) {
			return Shape{Kind: ShapeArrayOfObjects, Rows: arr}
		}
		return Shape{Kind: ShapeUnknown}
	}

	obj, ok := asObject(data)
	if !ok {
		return Shape{Kind: ShapeUnknown}
	}

	rows, hasRows := arrayField(obj, "rows")
	if order, ok := arrayField(obj, "column_order"); ok && hasRows {
		return Shape{Kind: ShapeDatabase, Headers: order, Rows: rows}
	}
	if headers, ok := arrayField(obj, "headers"); ok && hasRows {
		return Shape{Kind: ShapeStandard, Headers: headers, Rows: rows}
	}
	if hasRows && !obj.Has("headers") && !obj.Has("column_order") && len(rows) > 0 && isObject(rows[0]) {
		return Shape{Kind: ShapeArrayOfObjects, Rows: rows}
	}
	if cols, ok := arrayField(obj, "columns"); ok {
		return Shape{Kind: ShapeColumnOriented, Columns: cols}
	}
	if len(obj) > 0 && !obj.Has("headers") && !obj.Has("rows") && !obj.Has("columns") {
		return Shape{Kind: ShapeSingleObject, Object: obj}
	}
	return Shape{Kind: ShapeUnknown}
}

func arrayField(obj Object, key string) ([]any, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return nil, false
	}
	return asArray(v)
}
