// Package kernel holds the DPU compute core: convolution (standard,
// grouped, depthwise and transposed), pooling, elementwise and threshold
// kernels.
//
// Every kernel is validated at construction and then run any number of
// times against caller-owned buffers. Inputs arrive unpadded; a kernel
// allocates its padded scratch copy per call and drops it afterwards.
//
// Accumulation is done in float64, which is exact for integer sums below
// 2^53. That lets the direct path, the sharded path and the GEMM path
// (gonum) produce byte-identical outputs.
//
// Execution paths:
//
//	direct       nested loops, one goroutine
//	sharded      output range split over a shard.Pool
//	gemm         im2col + matrix product
//	gemm-sharded im2col rows split over a shard.Pool
package kernel
