// Package codec encodes and decodes trajectory values for persistence.
// Four value kinds are supported: json (anything JSON-serializable),
// ndarray (homogeneous numeric arrays), series (labeled 1-D sequences),
// and table (labeled 2-D structures). The kind is recorded explicitly
// alongside the payload and is never re-derived by inspecting the payload,
// so dtype information survives a round trip exactly.
package codec

import (
	"encoding/json"
	"fmt"
)

// Kind identifies how a value is encoded.
type Kind string

const (
	KindJSON    Kind = "json"
	KindNDArray Kind = "ndarray"
	KindSeries  Kind = "series"
	KindTable   Kind = "table"
)

// Valid returns true if the kind is a recognized value.
func (k Kind) Valid() bool {
	switch k {
	case KindJSON, KindNDArray, KindSeries, KindTable:
		return true
	}
	return false
}

// Dtype identifies the element type of an ndarray, series, or table column.
type Dtype string

const (
	Float64 Dtype = "float64"
	Float32 Dtype = "float32"
	Int64   Dtype = "int64"
	Int32   Dtype = "int32"
	Int16   Dtype = "int16"
	Int8    Dtype = "int8"
	Uint8   Dtype = "uint8"
	String  Dtype = "string"
	Bool    Dtype = "bool"
)

// Size returns the element size in bytes for numeric dtypes, or 0 for
// dtypes that have no fixed binary width (string, bool).
func (d Dtype) Size() int {
	switch d {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Int16:
		return 2
	case Int8, Uint8:
		return 1
	}
	return 0
}

// Numeric returns true if the dtype is valid as an ndarray element type.
func (d Dtype) Numeric() bool {
	return d.Size() > 0
}

// Error reports an encode or decode failure.
type Error struct {
	Op     string // "encode" or "decode"
	Kind   Kind
	Column string // offending table column, if any
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("codec: %s %s", e.Op, e.Kind)
	if e.Column != "" {
		s += fmt.Sprintf(" column %q", e.Column)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Encoded is the self-describing persisted representation of a value.
// Payload holds JSON text for the json, series, and table kinds and a raw
// little-endian buffer for ndarray. Shape and Dtype are sibling metadata,
// never inferred from the buffer.
type Encoded struct {
	Kind         Kind             `json:"kind"`
	Payload      []byte           `json:"payload"`
	Dtype        Dtype            `json:"dtype,omitempty"`
	Shape        []int            `json:"shape,omitempty"`
	ColumnDtypes map[string]Dtype `json:"column_dtypes,omitempty"`
}

// Encode converts a value into its persisted representation. The kind is
// chosen from the value's runtime type; anything that is not an NDArray,
// Series, or Table must be JSON-serializable.
func Encode(value any) (Encoded, error) {
	switch v := value.(type) {
	case *NDArray:
		return encodeNDArray(v)
	case *Series:
		return encodeSeries(v)
	case *Table:
		return encodeTable(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return Encoded{}, &Error{Op: "encode", Kind: KindJSON, Err: err}
		}
		return Encoded{Kind: KindJSON, Payload: payload}, nil
	}
}

// Decode reconstructs a value from its persisted representation using the
// recorded kind. JSON values come back as encoding/json would produce them
// (numbers as float64); the other kinds restore their recorded dtypes.
func Decode(e Encoded) (any, error) {
	switch e.Kind {
	case KindJSON:
		var v any
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, &Error{Op: "decode", Kind: KindJSON, Err: err}
		}
		return v, nil
	case KindNDArray:
		return decodeNDArray(e)
	case KindSeries:
		return decodeSeries(e)
	case KindTable:
		return decodeTable(e)
	default:
		return nil, &Error{Op: "decode", Kind: e.Kind, Msg: "unknown kind"}
	}
}

// coerce converts a value decoded from JSON (or supplied by a caller) to the
// Go representation of the given dtype. json.Number inputs preserve the
// int/float distinction the JSON text carried.
func coerce(v any, d Dtype) (any, error) {
	switch d {
	case Int64:
		switch n := v.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("value %v is not an integer", n)
			}
			return i, nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			i := int64(n)
			if float64(i) != n {
				return nil, fmt.Errorf("value %v is not an integer", n)
			}
			return i, nil
		}
	case Float64:
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("value %v is not a number", n)
			}
			return f, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", d)
	}
	return nil, fmt.Errorf("value %v (%T) is not coercible to %s", v, v, d)
}
