package tensor

import (
	"fmt"
	"strings"
)

// Desc is an N-dimensional shape with row-major strides.
//
// Desc is immutable after construction.
type Desc struct {
	dims  []int
	codes []int
	num   int
}

// NewDesc builds a descriptor from dims.
//
// Panics if dims is empty or any dimension is not positive. Shapes reach
// this point only after validation, so a bad dim is a programming error.
func NewDesc(dims ...int) Desc {
	if len(dims) == 0 {
		panic("tensor: descriptor needs at least one dimension")
	}
	d := Desc{
		dims:  append([]int(nil), dims...),
		codes: make([]int, len(dims)),
	}
	code := 1
	for i := len(dims) - 1; i >= 0; i-- {
		if dims[i] <= 0 {
			panic(fmt.Sprintf("tensor: dimension %d is %d, must be positive", i, dims[i]))
		}
		d.codes[i] = code
		code *= dims[i]
	}
	d.num = code
	return d
}

// Rank returns the number of dimensions.
func (d Desc) Rank() int { return len(d.dims) }

// Num returns the number of elements.
func (d Desc) Num() int { return d.num }

// Dim returns the size of axis i.
func (d Desc) Dim(i int) int { return d.dims[i] }

// Code returns the stride of axis i.
func (d Desc) Code(i int) int { return d.codes[i] }

// Dims returns a copy of the dimensions.
func (d Desc) Dims() []int { return append([]int(nil), d.dims...) }

// Offset converts a coordinate to a flat offset.
//
// Panics if the coordinate has the wrong rank or is out of range.
func (d Desc) Offset(coord ...int) int {
	if len(coord) != len(d.dims) {
		panic(fmt.Sprintf("tensor: coordinate rank %d, descriptor rank %d", len(coord), len(d.dims)))
	}
	off := 0
	for i, c := range coord {
		if c < 0 || c >= d.dims[i] {
			panic(fmt.Sprintf("tensor: coordinate %v out of range for %v", coord, d.dims))
		}
		off += c * d.codes[i]
	}
	return off
}

// Coord converts a flat offset to a coordinate.
//
// Panics if off is outside [0, Num()).
func (d Desc) Coord(off int) []int {
	if off < 0 || off >= d.num {
		panic(fmt.Sprintf("tensor: offset %d out of range [0, %d)", off, d.num))
	}
	coord := make([]int, len(d.dims))
	for i, code := range d.codes {
		coord[i] = off / code
		off %= code
	}
	return coord
}

// Equal reports whether two descriptors have the same dimensions.
func (d Desc) Equal(o Desc) bool {
	if len(d.dims) != len(o.dims) {
		return false
	}
	for i := range d.dims {
		if d.dims[i] != o.dims[i] {
			return false
		}
	}
	return true
}

func (d Desc) String() string {
	parts := make([]string, len(d.dims))
	for i, v := range d.dims {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
