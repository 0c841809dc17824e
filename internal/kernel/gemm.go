package kernel

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/dpusim/internal/shard"
)

// gemm computes the accumulators as one matrix product per group and
// input-channel chunk: im2col(x) (rows x k) times the weight matrix
// (k x ocg). Values are integers below 2^53, so the product is exact in
// any summation order.
func (c *Conv[T]) gemm(x, w []T) []float64 {
	rows := c.out.N * c.out.H * c.out.W
	acc := make([]float64, c.out.Num())

	for g := 0; g < c.groups; g++ {
		for _, ch := range c.chunks {
			a := c.im2col(x, g, ch, rows)
			b := c.weightMatrix(w, g, ch)
			c.multiply(a, b, func(r, o int, v float64) {
				acc[r*c.out.C+g*c.ocg+o] += c.psum(v)
			})
		}
	}
	return acc
}

// im2col gathers every kernel window of group g, channels ch, into one
// row per output position.
func (c *Conv[T]) im2col(x []T, g int, ch [2]int, rows int) *mat.Dense {
	width := ch[1] - ch[0]
	k := c.kernel.H * c.kernel.W * width
	data := make([]float64, rows*k)
	for r := 0; r < rows; r++ {
		ow := r % c.out.W
		oh := (r / c.out.W) % c.out.H
		n := r / (c.out.W * c.out.H)
		row := data[r*k : (r+1)*k]
		for ky := 0; ky < c.kernel.H; ky++ {
			for kx := 0; kx < c.kernel.W; kx++ {
				xo := c.inputOffset(n, oh, ow, ky, kx, g, 0)
				col := (ky*c.kernel.W + kx) * width
				for i := ch[0]; i < ch[1]; i++ {
					row[col+i-ch[0]] = float64(x[xo+i])
				}
			}
		}
	}
	return mat.NewDense(rows, k, data)
}

// weightMatrix lays out group g's weights for channels ch as k x ocg.
func (c *Conv[T]) weightMatrix(w []T, g int, ch [2]int) *mat.Dense {
	width := ch[1] - ch[0]
	k := c.kernel.H * c.kernel.W * width
	b := mat.NewDense(k, c.ocg, nil)
	for ky := 0; ky < c.kernel.H; ky++ {
		for kx := 0; kx < c.kernel.W; kx++ {
			base := (ky*c.kernel.W + kx) * width
			for i := ch[0]; i < ch[1]; i++ {
				for o := 0; o < c.ocg; o++ {
					b.Set(base+i-ch[0], o, float64(w[c.weightOffset(g, o, ky, kx, i)]))
				}
			}
		}
	}
	return b
}

// multiply computes a*b and hands every element to emit. With a pool the
// rows of a are split across workers; each worker emits only its own rows.
func (c *Conv[T]) multiply(a, b *mat.Dense, emit func(r, o int, v float64)) {
	rows, k := a.Dims()
	_, cols := b.Dims()

	block := func(it shard.Item) {
		var prod mat.Dense
		prod.Mul(a.Slice(it.Begin, it.End, 0, k), b)
		for r := it.Begin; r < it.End; r++ {
			for o := 0; o < cols; o++ {
				emit(r, o, prod.At(r-it.Begin, o))
			}
		}
	}

	if c.opts.sharded() {
		c.opts.pool.Run(rows, block)
		return
	}
	block(shard.Item{Begin: 0, End: rows})
}
