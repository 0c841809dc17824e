package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/attr"
	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/tensor"
)

func directEnv() Env { return Env{Round: fix.RoundDPU} }

func i8(shape []int, fp int, role string) TensorSpec {
	return TensorSpec{Role: role, Shape: shape, DType: tensor.Int8, FixPoint: fp}
}

func seq8(n int) []int8 {
	out := make([]int8, n)
	for i := range out {
		out[i] = int8(i + 1)
	}
	return out
}

func ones8(n int) []int8 {
	out := make([]int8, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func conv3x3Spec(fpIn int, withBias bool) Spec {
	s := Spec{
		Type:  "conv2d-fix",
		Attrs: attr.Store{AttrKernel: attr.IntList(3, 3), AttrStride: attr.IntList(1, 1)},
		Inputs: []TensorSpec{
			i8([]int{1, 3, 3, 1}, fpIn, RoleInput),
			i8([]int{1, 3, 3, 1}, 0, RoleWeights),
		},
		Output: i8([]int{1, 1, 1, 1}, 0, ""),
	}
	if withBias {
		s.Inputs = append(s.Inputs, i8([]int{1}, 0, RoleBias))
	}
	return s
}

func runOne(t *testing.T, o Operator, out tensor.FMap, inputs ...tensor.Tensor) []int8 {
	t.Helper()
	y := tensor.New(tensor.Int8, out)
	require.NoError(t, o.Run(inputs, y))
	data, err := tensor.Data[int8](y)
	require.NoError(t, err)
	return data
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{
		"conv2d-fix",
		"depthwise-conv2d-fix",
		"downsample-fix",
		"eltwise-fix",
		"pool-fix",
		"transposed-conv2d-fix",
		"transposed-depthwise-conv2d-fix",
	}, r.Types())

	_, err := r.Build(Spec{Type: "softmax"}, directEnv())
	assert.True(t, IsValidationError(err, ErrUnknownOperator))
}

func TestConv2d_SumAndBias(t *testing.T) {
	r := NewRegistry()
	in := tensor.Wrap(seq8(9), tensor.NHWC(1, 3, 3, 1))
	w := tensor.Wrap(ones8(9), tensor.NHWC(1, 3, 3, 1))
	one := tensor.NHWC(1, 1, 1, 1)

	o, err := r.Build(conv3x3Spec(0, false), directEnv())
	require.NoError(t, err)
	assert.Equal(t, "conv2d-fix", o.Type())
	assert.Equal(t, one, o.Output())
	assert.Equal(t, []int8{45}, runOne(t, o, one, in, w))

	o, err = r.Build(conv3x3Spec(0, true), directEnv())
	require.NoError(t, err)
	b := tensor.Wrap([]int8{3}, tensor.NHWC(1, 1, 1, 1))
	assert.Equal(t, []int8{48}, runOne(t, o, one, in, w, b))
}

func TestConv2d_ShiftAndRoundMode(t *testing.T) {
	r := NewRegistry()
	in := tensor.Wrap(seq8(9), tensor.NHWC(1, 3, 3, 1))
	w := tensor.Wrap(ones8(9), tensor.NHWC(1, 3, 3, 1))
	one := tensor.NHWC(1, 1, 1, 1)

	o, err := r.Build(conv3x3Spec(1, false), directEnv())
	require.NoError(t, err)
	assert.Equal(t, []int8{23}, runOne(t, o, one, in, w))

	s := conv3x3Spec(1, false)
	s.Attrs[AttrRoundMode] = attr.String("PY3_ROUND")
	o, err = r.Build(s, directEnv())
	require.NoError(t, err)
	assert.Equal(t, []int8{22}, runOne(t, o, one, in, w))
}

func TestConv2d_ValidationErrors(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name   string
		mutate func(*Spec)
		code   string
	}{
		{"missing kernel", func(s *Spec) { delete(s.Attrs, AttrKernel) }, ErrMissingAttr},
		{"kernel vs weights", func(s *Spec) { s.Attrs[AttrKernel] = attr.IntList(2, 2) }, ErrBadShape},
		{"output size", func(s *Spec) { s.Output.Shape = []int{1, 2, 2, 1} }, ErrOutputMismatch},
		{"bias channels", func(s *Spec) { s.Inputs[2].Shape = []int{2} }, ErrBiasChannels},
		{"nonlinear", func(s *Spec) { s.Attrs[AttrNonlinear] = attr.String("GELU") }, ErrUnsupported},
		{"prelu needs params", func(s *Spec) { s.Attrs[AttrNonlinear] = attr.String("PRELU") }, ErrMissingAttr},
		{"float dtype", func(s *Spec) {
			for i := range s.Inputs {
				s.Inputs[i].DType = tensor.Float32
			}
			s.Output.DType = tensor.Float32
		}, ErrUnsupported},
		{"mixed dtype", func(s *Spec) { s.Inputs[0].DType = tensor.Int16 }, ErrBadShape},
		{"rank", func(s *Spec) { s.Inputs[0].Shape = []int{3, 3, 1} }, ErrBadShape},
		{"pad mode", func(s *Spec) { s.Attrs[AttrPadMode] = attr.String("REFLECT") }, ErrUnsupported},
		{"stride type", func(s *Spec) { s.Attrs[AttrStride] = attr.String("1x1") }, ErrMissingAttr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := conv3x3Spec(0, true)
			tt.mutate(&s)
			_, err := r.Build(s, directEnv())
			assert.True(t, IsValidationError(err, tt.code), "got %v", err)
		})
	}
}

func TestTransposedConv_RejectsHSigmoid(t *testing.T) {
	s := conv3x3Spec(0, false)
	s.Type = "transposed-conv2d-fix"
	s.Output.Shape = []int{1, 5, 5, 1}
	s.Attrs[AttrNonlinear] = attr.String("HSIGMOID")
	_, err := NewRegistry().Build(s, directEnv())
	assert.True(t, IsValidationError(err, ErrUnsupported))
}

func TestTransposedConv_EnlargesOutput(t *testing.T) {
	s := Spec{
		Type:  "transposed-conv2d-fix",
		Attrs: attr.Store{AttrKernel: attr.IntList(2, 2), AttrStride: attr.IntList(2, 2)},
		Inputs: []TensorSpec{
			i8([]int{1, 2, 2, 1}, 0, RoleInput),
			i8([]int{1, 2, 2, 1}, 0, RoleWeights),
		},
		Output: i8([]int{1, 4, 4, 1}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	in := tensor.Wrap([]int8{1, 2, 3, 4}, tensor.NHWC(1, 2, 2, 1))
	w := tensor.Wrap(ones8(4), tensor.NHWC(1, 2, 2, 1))
	got := runOne(t, o, o.Output(), in, w)
	// Stride equal to kernel: every input pixel paints its own 2x2 tile.
	assert.Equal(t, []int8{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, got)
}

func TestDepthwise_Relu(t *testing.T) {
	s := Spec{
		Type: "depthwise-conv2d-fix",
		Attrs: attr.Store{
			AttrKernel:    attr.IntList(1, 1),
			AttrNonlinear: attr.String("RELU"),
		},
		Inputs: []TensorSpec{
			i8([]int{1, 1, 2, 2}, 0, RoleInput),
			i8([]int{1, 1, 1, 2}, 0, RoleWeights),
		},
		Output: i8([]int{1, 1, 2, 2}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	in := tensor.Wrap([]int8{3, 4, -5, 6}, tensor.NHWC(1, 1, 2, 2))
	w := tensor.Wrap([]int8{2, -1}, tensor.NHWC(1, 1, 1, 2))
	assert.Equal(t, []int8{6, 0, 0, 0}, runOne(t, o, o.Output(), in, w))
}

func TestPool_MaxAndAvg(t *testing.T) {
	spec := func(typ int) Spec {
		return Spec{
			Type:   "pool-fix",
			Attrs:  attr.Store{AttrPoolType: attr.Int(int64(typ)), AttrKernel: attr.IntList(2, 2)},
			Inputs: []TensorSpec{i8([]int{1, 2, 2, 1}, 0, RoleInput)},
			Output: i8([]int{1, 1, 1, 1}, 0, ""),
		}
	}
	in := tensor.Wrap([]int8{1, 5, -3, 2}, tensor.NHWC(1, 2, 2, 1))
	r := NewRegistry()

	o, err := r.Build(spec(PoolMax), directEnv())
	require.NoError(t, err)
	assert.Equal(t, []int8{5}, runOne(t, o, o.Output(), in))

	o, err = r.Build(spec(PoolAvg), directEnv())
	require.NoError(t, err)
	assert.Equal(t, []int8{1}, runOne(t, o, o.Output(), in))

	_, err = r.Build(spec(7), directEnv())
	assert.True(t, IsValidationError(err, ErrUnsupported))
}

func TestEltwise_AddAlignsFixPoints(t *testing.T) {
	s := Spec{
		Type: "eltwise-fix",
		Inputs: []TensorSpec{
			i8([]int{1, 1, 1, 2}, 1, RoleInput),
			i8([]int{1, 1, 1, 2}, 0, RoleInput),
		},
		Output: i8([]int{1, 1, 1, 2}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	a := tensor.Wrap([]int8{4, -4}, tensor.NHWC(1, 1, 1, 2))
	b := tensor.Wrap([]int8{3, 1}, tensor.NHWC(1, 1, 1, 2))
	// 2.0 + 3.0 and -2.0 + 1.0
	assert.Equal(t, []int8{5, -1}, runOne(t, o, o.Output(), a, b))
}

func TestEltwise_Mul(t *testing.T) {
	s := Spec{
		Type:  "eltwise-fix",
		Attrs: attr.Store{AttrEltwiseType: attr.String("MUL")},
		Inputs: []TensorSpec{
			i8([]int{1, 1, 1, 1}, 1, RoleInput),
			i8([]int{1, 1, 1, 1}, 1, RoleInput),
		},
		Output: i8([]int{1, 1, 1, 1}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	a := tensor.Wrap([]int8{4}, tensor.NHWC(1, 1, 1, 1))
	b := tensor.Wrap([]int8{6}, tensor.NHWC(1, 1, 1, 1))
	assert.Equal(t, []int8{6}, runOne(t, o, o.Output(), a, b))
}

func TestEltwise_RejectsShapeMismatch(t *testing.T) {
	s := Spec{
		Type: "eltwise-fix",
		Inputs: []TensorSpec{
			i8([]int{1, 1, 1, 2}, 0, RoleInput),
			i8([]int{1, 1, 1, 3}, 0, RoleInput),
		},
		Output: i8([]int{1, 1, 1, 2}, 0, ""),
	}
	_, err := NewRegistry().Build(s, directEnv())
	assert.True(t, IsValidationError(err, ErrOutputMismatch))

	s.Inputs = s.Inputs[:1]
	_, err = NewRegistry().Build(s, directEnv())
	assert.True(t, IsValidationError(err, ErrBadShape))
}

func TestEltwise_ShortBuffersAreConfigErrors(t *testing.T) {
	s := Spec{
		Type: "eltwise-fix",
		Inputs: []TensorSpec{
			i8([]int{1, 2, 2, 2}, 0, RoleInput),
			i8([]int{1, 2, 2, 2}, 0, RoleInput),
		},
		Output: i8([]int{1, 2, 2, 2}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	full := tensor.Wrap(seq8(8), tensor.NHWC(1, 2, 2, 2))
	short := tensor.Wrap(seq8(4), tensor.NHWC(1, 2, 2, 1))

	tests := []struct {
		name   string
		inputs []tensor.Tensor
		out    tensor.Tensor
		field  string
	}{
		{"output", []tensor.Tensor{full, full}, tensor.New(tensor.Int8, tensor.NHWC(1, 2, 2, 1)), "output"},
		{"first input", []tensor.Tensor{short, full}, tensor.New(tensor.Int8, o.Output()), "input"},
		{"second input", []tensor.Tensor{full, short}, tensor.New(tensor.Int8, o.Output()), "input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = o.Run(tt.inputs, tt.out) })
			var ce *kernel.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestDownsample_ShortBuffersAreConfigErrors(t *testing.T) {
	s := Spec{
		Type:   "downsample-fix",
		Attrs:  attr.Store{AttrScale: attr.IntList(2, 2)},
		Inputs: []TensorSpec{i8([]int{1, 4, 4, 1}, 0, RoleInput)},
		Output: i8([]int{1, 2, 2, 1}, 0, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	in := tensor.Wrap(seq8(16), tensor.NHWC(1, 4, 4, 1))
	var ce *kernel.ConfigError

	require.NotPanics(t, func() { err = o.Run([]tensor.Tensor{in}, tensor.New(tensor.Int8, tensor.NHWC(1, 1, 2, 1))) })
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "output", ce.Field)

	short := tensor.Wrap(seq8(8), tensor.NHWC(1, 2, 4, 1))
	require.NotPanics(t, func() { err = o.Run([]tensor.Tensor{short}, tensor.New(tensor.Int8, o.Output())) })
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "input", ce.Field)
}

func TestDownsample_NearestAndRescale(t *testing.T) {
	s := Spec{
		Type:   "downsample-fix",
		Attrs:  attr.Store{AttrScale: attr.IntList(2, 2)},
		Inputs: []TensorSpec{i8([]int{1, 4, 4, 1}, 0, RoleInput)},
		Output: i8([]int{1, 2, 2, 1}, 1, ""),
	}
	o, err := NewRegistry().Build(s, directEnv())
	require.NoError(t, err)

	data := make([]int8, 16)
	for i := range data {
		data[i] = int8(i)
	}
	in := tensor.Wrap(data, tensor.NHWC(1, 4, 4, 1))
	assert.Equal(t, []int8{0, 4, 16, 20}, runOne(t, o, o.Output(), in))

	s.Output.Shape = []int{1, 3, 3, 1}
	_, err = NewRegistry().Build(s, directEnv())
	assert.True(t, IsValidationError(err, ErrOutputMismatch))
}

func TestNewEnv_ShardedMatchesDirect(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = 5
	cfg.GEMM = true
	env := NewEnv(&cfg)

	s := Spec{
		Type: "conv2d-fix",
		Attrs: attr.Store{
			AttrKernel: attr.IntList(3, 3),
			AttrPad:    attr.IntList(1, 1, 1, 1),
		},
		Inputs: []TensorSpec{
			i8([]int{1, 6, 6, 4}, 2, RoleInput),
			i8([]int{8, 3, 3, 4}, 3, RoleWeights),
		},
		Output: i8([]int{1, 6, 6, 8}, 2, ""),
	}
	in := make([]int8, 6*6*4)
	for i := range in {
		in[i] = int8(i*7%23 - 11)
	}
	w := make([]int8, 8*3*3*4)
	for i := range w {
		w[i] = int8(i*5%17 - 8)
	}
	inputs := []tensor.Tensor{
		tensor.Wrap(in, tensor.NHWC(1, 6, 6, 4)),
		tensor.Wrap(w, tensor.NHWC(8, 3, 3, 4)),
	}

	r := NewRegistry()
	direct, err := r.Build(s, directEnv())
	require.NoError(t, err)
	sharded, err := r.Build(s, env)
	require.NoError(t, err)

	assert.Equal(t, runOne(t, direct, direct.Output(), inputs...), runOne(t, sharded, sharded.Output(), inputs...))
}
