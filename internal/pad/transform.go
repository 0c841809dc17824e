package pad

import (
	"fmt"

	"github.com/roach88/dpusim/internal/tensor"
)

// Transform copies a source feature map into a padded, dilated destination.
//
// Source element (h, w, d) lands at
// (top + h*dil.H, left + w*dil.W, near + d*dil.D). Every other destination
// element holds the pad value.
type Transform struct {
	src, dst tensor.FMap
	pad      Spec
	dil      Dilation
}

// NewTransform checks the shape relation between src and dst.
//
// Panics unless batch and channel counts match and every spatial axis
// satisfies src*dil - (dil-1) + before + after == dst. Callers validate
// shapes before building a transform, so a mismatch here is a defect.
func NewTransform(src, dst tensor.FMap, p Spec, dil Dilation) *Transform {
	if dil.H == 0 && dil.W == 0 && dil.D == 0 {
		dil = NoDilation
	}
	t := &Transform{src: src, dst: dst, pad: p, dil: dil}
	if err := t.check(); err != nil {
		panic("pad: " + err.Error())
	}
	return t
}

// ExpectedDst returns the destination shape implied by src, p and dil.
func ExpectedDst(src tensor.FMap, p Spec, dil Dilation) tensor.FMap {
	return tensor.FMap{
		N: src.N,
		H: Dilated(src.H, dil.H) + p.Top + p.Bottom,
		W: Dilated(src.W, dil.W) + p.Left + p.Right,
		D: Dilated(src.D, dil.D) + p.Near + p.Far,
		C: src.C,
	}
}

func (t *Transform) check() error {
	if t.dil.H <= 0 || t.dil.W <= 0 || t.dil.D <= 0 {
		return fmt.Errorf("dilation %+v must be positive", t.dil)
	}
	if t.src.N != t.dst.N {
		return fmt.Errorf("batch mismatch: src %d, dst %d", t.src.N, t.dst.N)
	}
	if t.src.C != t.dst.C {
		return fmt.Errorf("channel mismatch: src %d, dst %d", t.src.C, t.dst.C)
	}
	want := ExpectedDst(t.src, t.pad, t.dil)
	if want != t.dst {
		return fmt.Errorf("dst %v does not match src %v with pad %+v dilation %+v (want %v)",
			t.dst, t.src, t.pad, t.dil, want)
	}
	return nil
}

// Src returns the source shape.
func (t *Transform) Src() tensor.FMap { return t.src }

// Dst returns the destination shape.
func (t *Transform) Dst() tensor.FMap { return t.dst }

// Identity reports whether the transform is a plain copy.
func (t *Transform) Identity() bool {
	return t.pad.IsZero() && t.dil.IsIdentity()
}

// Apply fills dst from src.
//
// Per batch: the identity case is a bulk copy. Otherwise the border
// regions are painted with padValue, the inner rectangle is cleared to
// padValue when dilation leaves holes in it, and source elements are
// scattered into the interior. Destinations outside dst (negative pads)
// are skipped.
//
// Panics if either buffer is smaller than its shape.
func Apply[T tensor.Elem](t *Transform, src, dst []T, padValue T) {
	sv := tensor.NewView(src, t.src)
	dv := tensor.NewView(dst, t.dst)

	for n := 0; n < t.src.N; n++ {
		if t.Identity() {
			copy(dv.Batch(n), sv.Batch(n))
			continue
		}
		paintBorders(t, dv, n, padValue)
		if !t.dil.IsIdentity() {
			fillInner(t, dv, n, padValue)
		}
		scatter(t, sv, dv, n)
	}
}

// Extract is the inverse gather: it reads the source-aligned interior of a
// padded buffer back into src. Positions cropped by negative pads are left
// untouched.
func Extract[T tensor.Elem](t *Transform, dst, src []T) {
	sv := tensor.NewView(src, t.src)
	dv := tensor.NewView(dst, t.dst)
	for n := 0; n < t.src.N; n++ {
		for h := 0; h < t.src.H; h++ {
			for w := 0; w < t.src.W; w++ {
				for d := 0; d < t.src.D; d++ {
					dh, dw, dd := t.dstCoord(h, w, d)
					if !t.dst.Contains(dh, dw, dd) {
						continue
					}
					for c := 0; c < t.src.C; c++ {
						sv.Set(n, h, w, d, c, dv.At(n, dh, dw, dd, c))
					}
				}
			}
		}
	}
}

func (t *Transform) dstCoord(h, w, d int) (int, int, int) {
	return t.pad.Top + h*t.dil.H, t.pad.Left + w*t.dil.W, t.pad.Near + d*t.dil.D
}

// inner returns the half-open inner rectangle [h0,h1) x [w0,w1) x [d0,d1)
// of the destination, clamped to its extent.
func (t *Transform) inner() (h0, h1, w0, w1, d0, d1 int) {
	clamp := func(v, hi int) int { return max(0, min(v, hi)) }
	h0 = clamp(t.pad.Top, t.dst.H)
	h1 = clamp(t.dst.H-t.pad.Bottom, t.dst.H)
	w0 = clamp(t.pad.Left, t.dst.W)
	w1 = clamp(t.dst.W-t.pad.Right, t.dst.W)
	d0 = clamp(t.pad.Near, t.dst.D)
	d1 = clamp(t.dst.D-t.pad.Far, t.dst.D)
	return
}

func paintBorders[T tensor.Elem](t *Transform, dv tensor.View[T], n int, v T) {
	m := t.dst
	batch := dv.Batch(n)
	h0, h1, w0, w1, d0, d1 := t.inner()

	// top and bottom rows
	fill(batch[:h0*m.HCode()], v)
	fill(batch[h1*m.HCode():], v)

	for h := h0; h < h1; h++ {
		row := batch[h*m.HCode() : (h+1)*m.HCode()]
		// left and right columns
		fill(row[:w0*m.WCode()], v)
		fill(row[w1*m.WCode():], v)
		// near and far slabs
		for w := w0; w < w1; w++ {
			col := row[w*m.WCode() : (w+1)*m.WCode()]
			fill(col[:d0*m.DCode()], v)
			fill(col[d1*m.DCode():], v)
		}
	}
}

func fillInner[T tensor.Elem](t *Transform, dv tensor.View[T], n int, v T) {
	m := t.dst
	batch := dv.Batch(n)
	h0, h1, w0, w1, d0, d1 := t.inner()
	for h := h0; h < h1; h++ {
		for w := w0; w < w1; w++ {
			base := h*m.HCode() + w*m.WCode()
			fill(batch[base+d0*m.DCode():base+d1*m.DCode()], v)
		}
	}
}

func scatter[T tensor.Elem](t *Transform, sv, dv tensor.View[T], n int) {
	src := sv.Batch(n)
	dst := dv.Batch(n)
	c := t.src.C
	for h := 0; h < t.src.H; h++ {
		for w := 0; w < t.src.W; w++ {
			for d := 0; d < t.src.D; d++ {
				dh, dw, dd := t.dstCoord(h, w, d)
				if !t.dst.Contains(dh, dw, dd) {
					continue
				}
				so := h*t.src.HCode() + w*t.src.WCode() + d*t.src.DCode()
				do := dh*t.dst.HCode() + dw*t.dst.WCode() + dd*t.dst.DCode()
				copy(dst[do:do+c], src[so:so+c])
			}
		}
	}
}

func fill[T tensor.Elem](buf []T, v T) {
	for i := range buf {
		buf[i] = v
	}
}
