package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesc_Codes(t *testing.T) {
	d := NewDesc(2, 3, 4, 5)
	assert.Equal(t, 120, d.Num())
	assert.Equal(t, 60, d.Code(0))
	assert.Equal(t, 20, d.Code(1))
	assert.Equal(t, 5, d.Code(2))
	assert.Equal(t, 1, d.Code(3))
}

func TestDesc_OffsetCoordBijection(t *testing.T) {
	d := NewDesc(3, 1, 4, 2)
	seen := make(map[int]bool)
	for off := 0; off < d.Num(); off++ {
		coord := d.Coord(off)
		back := d.Offset(coord...)
		assert.Equal(t, off, back)
		seen[back] = true
	}
	assert.Len(t, seen, d.Num())
}

func TestDesc_PanicsOnBadDims(t *testing.T) {
	assert.Panics(t, func() { NewDesc() })
	assert.Panics(t, func() { NewDesc(2, 0, 3) })
	assert.Panics(t, func() { NewDesc(-1) })
}

func TestDesc_OffsetOutOfRangePanics(t *testing.T) {
	d := NewDesc(2, 2)
	assert.Panics(t, func() { d.Offset(2, 0) })
	assert.Panics(t, func() { d.Offset(0) })
	assert.Panics(t, func() { d.Coord(4) })
}

func TestFMap_MatchesDesc(t *testing.T) {
	m := FMap{N: 2, H: 3, W: 4, D: 2, C: 5}
	d := m.Desc()
	require.Equal(t, d.Num(), m.Num())

	for off := 0; off < m.Num(); off++ {
		n, h, w, dd, c := m.Coord(off)
		assert.Equal(t, []int{n, h, w, dd, c}, d.Coord(off))
		assert.Equal(t, off, m.Offset(n, h, w, dd, c))
	}
	assert.Equal(t, m.NCode(), d.Code(0))
	assert.Equal(t, m.HCode(), d.Code(1))
	assert.Equal(t, m.WCode(), d.Code(2))
	assert.Equal(t, m.DCode(), d.Code(3))
}

func TestView_BoundsChecked(t *testing.T) {
	buf := make([]int8, 12)
	v := NewView(buf, NHWC(1, 2, 2, 3))

	v.Set(0, 1, 1, 0, 2, 7)
	assert.Equal(t, int8(7), buf[11])
	assert.Equal(t, int8(7), v.At(0, 1, 1, 0, 2))

	assert.Panics(t, func() { v.At(0, 2, 0, 0, 0) })
	assert.Panics(t, func() { v.Set(0, 0, 0, 0, 3, 1) })
	assert.Panics(t, func() { NewView(buf[:5], NHWC(1, 2, 2, 3)) })
}

func TestData_TypeMismatch(t *testing.T) {
	tt := New(Int8, NHWC(1, 1, 1, 4))

	got, err := Data[int8](tt)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = Data[int16](tt)
	assert.Error(t, err)
}

func TestWrap_InfersDType(t *testing.T) {
	assert.Equal(t, Int16, Wrap([]int16{1, 2}, NHWC(1, 1, 1, 2)).DType)
	assert.Equal(t, Float32, Wrap([]float32{1}, NHWC(1, 1, 1, 1)).DType)
}

func TestParseDType(t *testing.T) {
	dt, err := ParseDType("XINT8")
	require.NoError(t, err)
	assert.Equal(t, Int8, dt)
	assert.Equal(t, 8, dt.Bits())

	dt, err = ParseDType("int16")
	require.NoError(t, err)
	assert.Equal(t, Int16, dt)

	_, err = ParseDType("bfloat16")
	assert.Error(t, err)
}
