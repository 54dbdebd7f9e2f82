package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Table is a labeled 2-D structure: named columns sharing a row index.
// Data is row-major (Data[row][col] matches Columns[col]), mirroring the
// persisted split layout. Each column carries its own dtype.
type Table struct {
	Index   []any
	Columns []string
	Dtypes  map[string]Dtype
	Data    [][]any
}

// NewTable builds a table, coercing every cell to its column dtype up front.
func NewTable(index []any, columns []string, dtypes map[string]Dtype, data [][]any) (*Table, error) {
	if len(index) != len(data) {
		return nil, &Error{Op: "encode", Kind: KindTable,
			Msg: "index and data have different row counts"}
	}
	for _, col := range columns {
		if _, ok := dtypes[col]; !ok {
			return nil, &Error{Op: "encode", Kind: KindTable, Column: col, Msg: "missing dtype"}
		}
	}
	rows := make([][]any, len(data))
	for r, row := range data {
		if len(row) != len(columns) {
			return nil, &Error{Op: "encode", Kind: KindTable,
				Msg: fmt.Sprintf("row %d has %d cells, want %d", r, len(row), len(columns))}
		}
		cells := make([]any, len(row))
		for c, v := range row {
			col := columns[c]
			coerced, err := coerce(v, dtypes[col])
			if err != nil {
				return nil, &Error{Op: "encode", Kind: KindTable, Column: col, Err: err}
			}
			cells[c] = coerced
		}
		rows[r] = cells
	}
	dt := make(map[string]Dtype, len(dtypes))
	for k, v := range dtypes {
		dt[k] = v
	}
	return &Table{
		Index:   append([]any(nil), index...),
		Columns: append([]string(nil), columns...),
		Dtypes:  dt,
		Data:    rows,
	}, nil
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Data) }

// Column returns the values of one column in row order.
func (t *Table) Column(name string) ([]any, error) {
	for c, col := range t.Columns {
		if col == name {
			out := make([]any, len(t.Data))
			for r, row := range t.Data {
				out[r] = row[c]
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("table: no column %q", name)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	dt := make(map[string]Dtype, len(t.Dtypes))
	for k, v := range t.Dtypes {
		dt[k] = v
	}
	rows := make([][]any, len(t.Data))
	for r, row := range t.Data {
		rows[r] = append([]any(nil), row...)
	}
	return &Table{
		Index:   append([]any(nil), t.Index...),
		Columns: append([]string(nil), t.Columns...),
		Dtypes:  dt,
		Data:    rows,
	}
}

// Equal reports whether two tables have identical layout, dtypes, and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Index) != len(o.Index) || len(t.Columns) != len(o.Columns) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
		if t.Dtypes[t.Columns[i]] != o.Dtypes[o.Columns[i]] {
			return false
		}
	}
	for i := range t.Index {
		if !jsonScalarEqual(t.Index[i], o.Index[i]) {
			return false
		}
	}
	for r := range t.Data {
		if len(t.Data[r]) != len(o.Data[r]) {
			return false
		}
		for c := range t.Data[r] {
			if !jsonScalarEqual(t.Data[r][c], o.Data[r][c]) {
				return false
			}
		}
	}
	return true
}

// tablePayload is the JSON split layout for a persisted table.
type tablePayload struct {
	Index   []any    `json:"index"`
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

func encodeTable(t *Table) (Encoded, error) {
	if t == nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindTable, Msg: "nil table"}
	}
	for _, col := range t.Columns {
		if _, ok := t.Dtypes[col]; !ok {
			return Encoded{}, &Error{Op: "encode", Kind: KindTable, Column: col, Msg: "missing dtype"}
		}
	}
	payload, err := json.Marshal(tablePayload{Index: t.Index, Columns: t.Columns, Data: t.Data})
	if err != nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindTable, Err: err}
	}
	dt := make(map[string]Dtype, len(t.Dtypes))
	for k, v := range t.Dtypes {
		dt[k] = v
	}
	return Encoded{Kind: KindTable, Payload: payload, ColumnDtypes: dt}, nil
}

func decodeTable(e Encoded) (any, error) {
	var p tablePayload
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, &Error{Op: "decode", Kind: KindTable, Err: err}
	}
	if len(p.Index) != len(p.Data) {
		return nil, &Error{Op: "decode", Kind: KindTable,
			Msg: "index and data have different row counts"}
	}
	rows := make([][]any, len(p.Data))
	for r, row := range p.Data {
		if len(row) != len(p.Columns) {
			return nil, &Error{Op: "decode", Kind: KindTable,
				Msg: fmt.Sprintf("row %d has %d cells, want %d", r, len(row), len(p.Columns))}
		}
		cells := make([]any, len(row))
		for c, v := range row {
			col := p.Columns[c]
			dtype, ok := e.ColumnDtypes[col]
			if !ok {
				return nil, &Error{Op: "decode", Kind: KindTable, Column: col, Msg: "missing dtype"}
			}
			coerced, err := coerce(v, dtype)
			if err != nil {
				return nil, &Error{Op: "decode", Kind: KindTable, Column: col, Err: err}
			}
			cells[c] = coerced
		}
		rows[r] = cells
	}
	dt := make(map[string]Dtype, len(e.ColumnDtypes))
	for k, v := range e.ColumnDtypes {
		dt[k] = v
	}
	return &Table{
		Index:   normalizeLabels(p.Index),
		Columns: append([]string(nil), p.Columns...),
		Dtypes:  dt,
		Data:    rows,
	}, nil
}
