package codec

import (
	"bytes"
	"encoding/json"
)

// Series is a labeled 1-D sequence with an explicit element dtype.
// Index labels are arbitrary JSON-compatible values; elements are held in the
// Go representation of the dtype (int64, float64, string, or bool).
type Series struct {
	Name   string
	Dtype  Dtype
	Index  []any
	Values []any
}

// NewSeries builds a series, coercing every value to the dtype up front so a
// Series in memory is always internally consistent.
func NewSeries(name string, dtype Dtype, index []any, values []any) (*Series, error) {
	if len(index) != len(values) {
		return nil, &Error{Op: "encode", Kind: KindSeries,
			Msg: "index and values have different lengths"}
	}
	coerced := make([]any, len(values))
	for i, v := range values {
		c, err := coerce(v, dtype)
		if err != nil {
			return nil, &Error{Op: "encode", Kind: KindSeries, Err: err}
		}
		coerced[i] = c
	}
	return &Series{Name: name, Dtype: dtype, Index: append([]any(nil), index...), Values: coerced}, nil
}

// Len returns the element count.
func (s *Series) Len() int { return len(s.Values) }

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	return &Series{
		Name:   s.Name,
		Dtype:  s.Dtype,
		Index:  append([]any(nil), s.Index...),
		Values: append([]any(nil), s.Values...),
	}
}

// Equal reports whether two series have identical name, dtype, labels, and values.
func (s *Series) Equal(o *Series) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Name != o.Name || s.Dtype != o.Dtype || len(s.Index) != len(o.Index) || len(s.Values) != len(o.Values) {
		return false
	}
	for i := range s.Index {
		if !jsonScalarEqual(s.Index[i], o.Index[i]) {
			return false
		}
	}
	for i := range s.Values {
		if !jsonScalarEqual(s.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

// seriesPayload is the JSON split layout for a persisted series.
type seriesPayload struct {
	Name  string `json:"name,omitempty"`
	Index []any  `json:"index"`
	Data  []any  `json:"data"`
}

func encodeSeries(s *Series) (Encoded, error) {
	if s == nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindSeries, Msg: "nil series"}
	}
	if len(s.Index) != len(s.Values) {
		return Encoded{}, &Error{Op: "encode", Kind: KindSeries,
			Msg: "index and values have different lengths"}
	}
	payload, err := json.Marshal(seriesPayload{Name: s.Name, Index: s.Index, Data: s.Values})
	if err != nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindSeries, Err: err}
	}
	return Encoded{Kind: KindSeries, Payload: payload, Dtype: s.Dtype}, nil
}

func decodeSeries(e Encoded) (any, error) {
	var p seriesPayload
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, &Error{Op: "decode", Kind: KindSeries, Err: err}
	}
	if len(p.Index) != len(p.Data) {
		return nil, &Error{Op: "decode", Kind: KindSeries,
			Msg: "index and data have different lengths"}
	}
	values := make([]any, len(p.Data))
	for i, v := range p.Data {
		c, err := coerce(v, e.Dtype)
		if err != nil {
			return nil, &Error{Op: "decode", Kind: KindSeries, Err: err}
		}
		values[i] = c
	}
	return &Series{
		Name:   p.Name,
		Dtype:  e.Dtype,
		Index:  normalizeLabels(p.Index),
		Values: values,
	}, nil
}

// normalizeLabels converts json.Number index labels to int64 when integral
// and float64 otherwise, so decoded labels compare equal to the originals.
func normalizeLabels(labels []any) []any {
	out := make([]any, len(labels))
	for i, l := range labels {
		if n, ok := l.(json.Number); ok {
			if v, err := n.Int64(); err == nil {
				out[i] = v
				continue
			}
			if f, err := n.Float64(); err == nil {
				out[i] = f
				continue
			}
		}
		out[i] = l
	}
	return out
}

// jsonScalarEqual compares two scalar values with numeric tolerance across
// int/int64/float64 representations.
func jsonScalarEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
