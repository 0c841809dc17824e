package tensor

import "fmt"

// Elem is the set of element types a DPU buffer can hold.
type Elem interface {
	~int8 | ~int16 | ~int32 | ~float32
}

// View is a bounds-checked window over a caller-owned buffer.
type View[T Elem] struct {
	data []T
	m    FMap
}

// NewView wraps data with shape m.
//
// Panics if the buffer is shorter than the shape.
func NewView[T Elem](data []T, m FMap) View[T] {
	if len(data) < m.Num() {
		panic(fmt.Sprintf("tensor: buffer of %d elements is too small for %v", len(data), m))
	}
	return View[T]{data: data[:m.Num()], m: m}
}

// Map returns the view's shape.
func (v View[T]) Map() FMap { return v.m }

// Data returns the underlying slice, trimmed to the shape.
func (v View[T]) Data() []T { return v.data }

// At reads element (n, h, w, d, c).
func (v View[T]) At(n, h, w, d, c int) T {
	return v.data[v.m.Offset(n, h, w, d, c)]
}

// Set writes element (n, h, w, d, c).
func (v View[T]) Set(n, h, w, d, c int, x T) {
	v.data[v.m.Offset(n, h, w, d, c)] = x
}

// Batch returns the sub-slice for batch n.
func (v View[T]) Batch(n int) []T {
	if n < 0 || n >= v.m.N {
		panic(fmt.Sprintf("tensor: batch %d out of range for %v", n, v.m))
	}
	size := v.m.BatchSize()
	return v.data[n*size : (n+1)*size]
}
