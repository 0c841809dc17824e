package tensor

import "fmt"

// DType identifies the element type of a buffer.
type DType string

const (
	Int8    DType = "XINT8"
	Int16   DType = "XINT16"
	Int32   DType = "XINT32"
	Float32 DType = "FLOAT32"
)

// ParseDType maps attribute strings to a DType.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case Int8, Int16, Int32, Float32:
		return DType(s), nil
	}
	switch s {
	case "INT8", "int8":
		return Int8, nil
	case "INT16", "int16":
		return Int16, nil
	case "INT32", "int32":
		return Int32, nil
	case "FLOAT", "float32":
		return Float32, nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// Bits returns the bit width of the element type.
func (t DType) Bits() int {
	switch t {
	case Int8:
		return 8
	case Int16:
		return 16
	case Int32, Float32:
		return 32
	}
	return 0
}

// Tensor is a caller-owned buffer with shape and element type.
//
// Data holds a []int8, []int16, []int32 or []float32 matching DType.
type Tensor struct {
	Map   FMap
	DType DType
	Data  any
}

// New allocates a zeroed tensor.
func New(t DType, m FMap) Tensor {
	out := Tensor{Map: m, DType: t}
	switch t {
	case Int8:
		out.Data = make([]int8, m.Num())
	case Int16:
		out.Data = make([]int16, m.Num())
	case Int32:
		out.Data = make([]int32, m.Num())
	case Float32:
		out.Data = make([]float32, m.Num())
	default:
		panic(fmt.Sprintf("tensor: unknown dtype %q", t))
	}
	return out
}

// Wrap builds a tensor around an existing slice.
func Wrap[T Elem](data []T, m FMap) Tensor {
	var zero T
	var t DType
	switch any(zero).(type) {
	case int8:
		t = Int8
	case int16:
		t = Int16
	case int32:
		t = Int32
	case float32:
		t = Float32
	}
	return Tensor{Map: m, DType: t, Data: data}
}

// Data returns the typed slice held by t.
//
// Fails if the element type does not match or the buffer is shorter
// than the shape.
func Data[T Elem](t Tensor) ([]T, error) {
	data, ok := t.Data.([]T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("tensor %v holds %T, want []%T", t.Map, t.Data, zero)
	}
	if len(data) < t.Map.Num() {
		return nil, fmt.Errorf("tensor %v: buffer has %d elements, want %d", t.Map, len(data), t.Map.Num())
	}
	return data[:t.Map.Num()], nil
}
