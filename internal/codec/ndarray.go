package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// NDArray is a homogeneous, rectangular numeric array. Data is stored as a
// raw little-endian buffer; shape and dtype are carried explicitly so the
// array round-trips through storage without losing element type.
type NDArray struct {
	dtype Dtype
	shape []int
	data  []byte
}

// NewNDArray builds an array from a raw buffer, validating that the buffer
// length matches product(shape) * element size.
func NewNDArray(dtype Dtype, shape []int, data []byte) (*NDArray, error) {
	n, err := checkShape(dtype, shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n*dtype.Size() {
		return nil, fmt.Errorf("ndarray: buffer length %d does not match shape %v with dtype %s (want %d)",
			len(data), shape, dtype, n*dtype.Size())
	}
	return &NDArray{dtype: dtype, shape: append([]int(nil), shape...), data: data}, nil
}

// FromFloat64s builds a float64 array from a flat value slice in row-major order.
func FromFloat64s(shape []int, values []float64) (*NDArray, error) {
	n, err := checkShape(Float64, shape)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("ndarray: %d values do not fill shape %v", len(values), shape)
	}
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return &NDArray{dtype: Float64, shape: append([]int(nil), shape...), data: buf}, nil
}

// FromInt64s builds an int64 array from a flat value slice in row-major order.
func FromInt64s(shape []int, values []int64) (*NDArray, error) {
	n, err := checkShape(Int64, shape)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("ndarray: %d values do not fill shape %v", len(values), shape)
	}
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return &NDArray{dtype: Int64, shape: append([]int(nil), shape...), data: buf}, nil
}

// FromInt32s builds an int32 array from a flat value slice in row-major order.
func FromInt32s(shape []int, values []int32) (*NDArray, error) {
	n, err := checkShape(Int32, shape)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("ndarray: %d values do not fill shape %v", len(values), shape)
	}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return &NDArray{dtype: Int32, shape: append([]int(nil), shape...), data: buf}, nil
}

// Dtype returns the element type.
func (a *NDArray) Dtype() Dtype { return a.dtype }

// Shape returns a copy of the array's dimensions.
func (a *NDArray) Shape() []int { return append([]int(nil), a.shape...) }

// Len returns the total element count.
func (a *NDArray) Len() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// Data returns the raw little-endian buffer. Callers must not mutate it.
func (a *NDArray) Data() []byte { return a.data }

// Float64s returns the elements as float64 in row-major order.
// Fails unless the dtype is float64.
func (a *NDArray) Float64s() ([]float64, error) {
	if a.dtype != Float64 {
		return nil, fmt.Errorf("ndarray: dtype is %s, not float64", a.dtype)
	}
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.data[i*8:]))
	}
	return out, nil
}

// Int64s returns the elements as int64 in row-major order.
// Fails unless the dtype is int64.
func (a *NDArray) Int64s() ([]int64, error) {
	if a.dtype != Int64 {
		return nil, fmt.Errorf("ndarray: dtype is %s, not int64", a.dtype)
	}
	out := make([]int64, a.Len())
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(a.data[i*8:]))
	}
	return out, nil
}

// Int32s returns the elements as int32 in row-major order.
// Fails unless the dtype is int32.
func (a *NDArray) Int32s() ([]int32, error) {
	if a.dtype != Int32 {
		return nil, fmt.Errorf("ndarray: dtype is %s, not int32", a.dtype)
	}
	out := make([]int32, a.Len())
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(a.data[i*4:]))
	}
	return out, nil
}

// Equal reports whether two arrays have identical dtype, shape, and data.
func (a *NDArray) Equal(b *NDArray) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.data, b.data)
}

// Clone returns a deep copy.
func (a *NDArray) Clone() *NDArray {
	if a == nil {
		return nil
	}
	return &NDArray{
		dtype: a.dtype,
		shape: append([]int(nil), a.shape...),
		data:  append([]byte(nil), a.data...),
	}
}

// checkShape validates a shape for the given dtype and returns the element count.
// Zero-length dimensions are allowed (empty arrays); negative dimensions and
// zero-dimensional shapes are not.
func checkShape(dtype Dtype, shape []int) (int, error) {
	if !dtype.Numeric() {
		return 0, fmt.Errorf("ndarray: dtype %q is not a numeric element type", dtype)
	}
	if len(shape) == 0 {
		return 0, fmt.Errorf("ndarray: shape must have at least one dimension")
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("ndarray: negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	return n, nil
}

func encodeNDArray(a *NDArray) (Encoded, error) {
	if a == nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindNDArray, Msg: "nil array"}
	}
	if _, err := checkShape(a.dtype, a.shape); err != nil {
		return Encoded{}, &Error{Op: "encode", Kind: KindNDArray, Err: err}
	}
	return Encoded{
		Kind:    KindNDArray,
		Payload: a.data,
		Dtype:   a.dtype,
		Shape:   a.Shape(),
	}, nil
}

func decodeNDArray(e Encoded) (any, error) {
	n, err := checkShape(e.Dtype, e.Shape)
	if err != nil {
		return nil, &Error{Op: "decode", Kind: KindNDArray, Err: err}
	}
	if want := n * e.Dtype.Size(); len(e.Payload) != want {
		return nil, &Error{
			Op:   "decode",
			Kind: KindNDArray,
			Msg:  fmt.Sprintf("payload length %d does not match shape %v with dtype %s (want %d)", len(e.Payload), e.Shape, e.Dtype, want),
		}
	}
	return &NDArray{
		dtype: e.Dtype,
		shape: append([]int(nil), e.Shape...),
		data:  append([]byte(nil), e.Payload...),
	}, nil
}
