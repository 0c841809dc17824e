// Package tensor describes the shape of DPU feature maps and weights.
//
// A descriptor is an ordered list of dimensions with derived per-axis
// strides ("codes"). The code of an axis is the product of the sizes of
// every faster-varying axis, so for an NHWDC feature map:
//
//	code(C) = 1
//	code(D) = C
//	code(W) = D*C
//	code(H) = W*D*C
//	code(N) = H*W*D*C
//
// Offset and Coord are inverse bijections over [0, Num()).
//
// Buffers themselves are plain Go slices owned by the caller. View wraps a
// slice with a descriptor so that every coordinate access is range checked.
package tensor
