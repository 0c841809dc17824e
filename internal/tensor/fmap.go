package tensor

import "fmt"

// FMap is the 5-D feature map shape used throughout the DPU: batch, height,
// width, depth and channel, channel fastest. 2-D maps use D = 1.
type FMap struct {
	N, H, W, D, C int
}

// NHWC returns a 2-D feature map shape (D = 1).
func NHWC(n, h, w, c int) FMap {
	return FMap{N: n, H: h, W: w, D: 1, C: c}
}

// Valid reports whether every dimension is positive.
func (f FMap) Valid() bool {
	return f.N > 0 && f.H > 0 && f.W > 0 && f.D > 0 && f.C > 0
}

// Num returns the number of elements.
func (f FMap) Num() int { return f.N * f.H * f.W * f.D * f.C }

// BatchSize returns the number of elements in one batch.
func (f FMap) BatchSize() int { return f.H * f.W * f.D * f.C }

// Axis codes.
func (f FMap) DCode() int { return f.C }
func (f FMap) WCode() int { return f.D * f.C }
func (f FMap) HCode() int { return f.W * f.D * f.C }
func (f FMap) NCode() int { return f.H * f.W * f.D * f.C }

// Offset returns the flat offset of (n, h, w, d, c).
//
// Panics if any index is out of range.
func (f FMap) Offset(n, h, w, d, c int) int {
	if n < 0 || n >= f.N || h < 0 || h >= f.H || w < 0 || w >= f.W ||
		d < 0 || d >= f.D || c < 0 || c >= f.C {
		panic(fmt.Sprintf("tensor: (%d,%d,%d,%d,%d) out of range for %v", n, h, w, d, c, f))
	}
	return n*f.NCode() + h*f.HCode() + w*f.WCode() + d*f.DCode() + c
}

// Contains reports whether (h, w, d) lies inside the spatial extent.
func (f FMap) Contains(h, w, d int) bool {
	return h >= 0 && h < f.H && w >= 0 && w < f.W && d >= 0 && d < f.D
}

// Coord splits a flat offset into (n, h, w, d, c).
func (f FMap) Coord(off int) (n, h, w, d, c int) {
	if off < 0 || off >= f.Num() {
		panic(fmt.Sprintf("tensor: offset %d out of range for %v", off, f))
	}
	n = off / f.NCode()
	off %= f.NCode()
	h = off / f.HCode()
	off %= f.HCode()
	w = off / f.WCode()
	off %= f.WCode()
	d = off / f.DCode()
	c = off % f.DCode()
	return
}

// Desc returns the equivalent generalized descriptor.
func (f FMap) Desc() Desc {
	return NewDesc(f.N, f.H, f.W, f.D, f.C)
}

func (f FMap) String() string {
	if f.D == 1 {
		return fmt.Sprintf("[%d,%d,%d,%d]", f.N, f.H, f.W, f.C)
	}
	return fmt.Sprintf("[%d,%d,%d,%d,%d]", f.N, f.H, f.W, f.D, f.C)
}
