package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/op"
	"github.com/roach88/dpusim/internal/pad"
	"github.com/roach88/dpusim/internal/tensor"
)

// operands resolves the memory of one operand role.
type operands func(r isa.Role, n int) ([]int8, error)

var bankFields = map[isa.Role][2]string{
	isa.RoleInput:   {isa.FBankIDIn, isa.FBankAddrIn},
	isa.RoleWeights: {isa.FBankIDW, isa.FBankAddrW},
	isa.RoleBias:    {isa.FBankIDB, isa.FBankAddrB},
	isa.RoleOutput:  {isa.FBankIDOut, isa.FBankAddrOut},
}

// operandsOf addresses banks through the instruction's id/addr fields, or
// DDR through its inline address table for the ADDR kinds.
func (e *Engine) operandsOf(in isa.Instruction) operands {
	if in.Kind.HasAddrTable() {
		return func(r isa.Role, n int) ([]int8, error) {
			a, ok := in.Addr(r)
			if !ok {
				return nil, invalidOperand("%v has no %v address entry", in.Kind, r)
			}
			return e.mem.DDR(a.RegID, a.Addr, n)
		}
	}
	return func(r isa.Role, n int) ([]int8, error) {
		f := bankFields[r]
		return e.mem.Bank(in.Int(f[0]), in.Int(f[1]), n)
	}
}

// store writes a finished result to the output operand. Kernels compute
// into scratch first, so outputs may overlap inputs.
func store(ops operands, out []int8) error {
	dst, err := ops(isa.RoleOutput, len(out))
	if err != nil {
		return err
	}
	copy(dst, out)
	return nil
}

func roundOf(cfg isa.Instruction) (fix.RoundMode, error) {
	m := fix.RoundMode(cfg.Int(isa.FRoundMode))
	switch m {
	case fix.RoundDPU, fix.RoundStd, fix.RoundPy3:
		return m, nil
	}
	return 0, unsupported("round_mode %d", int(m))
}

// actOf decodes act_type and its parameters. allowed limits the variants a
// unit implements.
func actOf(cfg isa.Instruction, allowed ...fix.Kind) (fix.Nonlinear, error) {
	k, err := fix.KindFromCode(cfg.Int(isa.FActType))
	if err != nil {
		return fix.Nonlinear{}, unsupported("%v", err)
	}
	if !slices.Contains(allowed, k) {
		return fix.Nonlinear{}, unsupported("%v does not support %v", cfg.Kind, k)
	}
	n := fix.Nonlinear{Kind: k}
	switch k {
	case fix.Prelu:
		n.Alpha = fix.PreluAlpha(cfg.Int(isa.FPreluIn), cfg.Int(isa.FPreluShift))
	case fix.LeakyRelu:
		n.Alpha = fix.DefaultLeakyAlpha
	case fix.HSigmoid, fix.HSwish:
		n.HSigmoidIn = cfg.Int(isa.FHSigmoidIn)
		n.ShiftHSigmoid = cfg.Int(isa.FShiftHSig)
		n.ShiftHSwish = cfg.Int(isa.FShiftHSwish)
	}
	return n, nil
}

var (
	convActs  = []fix.Kind{fix.None, fix.Relu, fix.Prelu, fix.LeakyRelu, fix.Relu6, fix.HSigmoid, fix.HSwish}
	basicActs = []fix.Kind{fix.None, fix.Relu}
	aluActs   = []fix.Kind{fix.None, fix.Relu, fix.Prelu, fix.LeakyRelu, fix.Relu6}
)

// geometry is the windowed-INIT part every conv, pool and ALU config
// shares.
type geometry struct {
	in       tensor.FMap
	kernel   kernel.Window
	stride   kernel.Window
	dilation kernel.Window
	pad      pad.Spec
}

func geometryOf(cfg isa.Instruction, channels int) (geometry, error) {
	g := geometry{
		kernel:   kernel.Window{H: cfg.Int(isa.FKernelH), W: cfg.Int(isa.FKernelW)},
		stride:   kernel.Window{H: cfg.Int(isa.FStrideH), W: cfg.Int(isa.FStrideW)},
		dilation: kernel.Window{H: max(cfg.Int(isa.FDilationH), 1), W: max(cfg.Int(isa.FDilationW), 1)},
		pad: pad.Spec{
			Mode:   pad.Floor,
			Top:    cfg.Int(isa.FPadTop),
			Bottom: cfg.Int(isa.FPadBottom),
			Left:   cfg.Int(isa.FPadLeft),
			Right:  cfg.Int(isa.FPadRight),
		},
	}
	h, w := cfg.Int(isa.FSrcH), cfg.Int(isa.FSrcW)
	if h <= 0 || w <= 0 || channels <= 0 || g.kernel.H <= 0 || g.kernel.W <= 0 || g.stride.H <= 0 || g.stride.W <= 0 {
		return g, invalidOperand("%v: src %dx%dx%d kernel %dx%d stride %dx%d must be positive",
			cfg.Kind, h, w, channels, g.kernel.H, g.kernel.W, g.stride.H, g.stride.W)
	}
	g.in = tensor.NHWC(1, h, w, channels)
	return g, nil
}

// out derives the FLOOR-mode output map with c channels.
func (g geometry) out(c int) (tensor.FMap, error) {
	kh := pad.Dilated(g.kernel.H, g.dilation.H)
	kw := pad.Dilated(g.kernel.W, g.dilation.W)
	ph := g.in.H + g.pad.Top + g.pad.Bottom
	pw := g.in.W + g.pad.Left + g.pad.Right
	oh := pad.OutputSize(pad.Floor, ph, g.in.H, kh, g.stride.H)
	ow := pad.OutputSize(pad.Floor, pw, g.in.W, kw, g.stride.W)
	if oh <= 0 || ow <= 0 {
		return tensor.FMap{}, invalidOperand("kernel %dx%d does not fit padded input %dx%d", kh, kw, ph, pw)
	}
	return tensor.NHWC(1, oh, ow, c), nil
}

// coreErr turns a compute-core rejection into a runtime error.
func coreErr(err error) error {
	var ce *kernel.ConfigError
	if errors.As(err, &ce) {
		return invalidOperand("%v", ce)
	}
	return err
}

// convJob is a fully decoded convolution.
type convJob struct {
	params  kernel.ConvParams
	geo     geometry
	weights tensor.FMap
	out     tensor.FMap
	quant   fix.Quant
	hasBias bool
}

func (e *Engine) runConv(j convJob, ops operands) error {
	k, err := kernel.NewConv[int8](j.params, j.geo.in, j.weights, j.out, j.quant, j.hasBias, e.kopts...)
	if err != nil {
		return coreErr(err)
	}
	x, err := ops(isa.RoleInput, j.geo.in.Num())
	if err != nil {
		return err
	}
	w, err := ops(isa.RoleWeights, j.weights.Num())
	if err != nil {
		return err
	}
	var bias []int8
	if j.hasBias {
		if bias, err = ops(isa.RoleBias, j.out.C); err != nil {
			return err
		}
	}
	out := make([]int8, j.out.Num())
	if err := k.Run(x, w, bias, out); err != nil {
		return coreErr(err)
	}
	return store(ops, out)
}

// requant builds the requantizer shared by the conv-like units.
func requant(cfg isa.Instruction, allowed []fix.Kind) (fix.Quant, error) {
	mode, err := roundOf(cfg)
	if err != nil {
		return fix.Quant{}, err
	}
	act, err := actOf(cfg, allowed...)
	if err != nil {
		return fix.Quant{}, err
	}
	return fix.Quant{
		ShiftCut:  cfg.Int(isa.FShiftCut),
		ShiftBias: cfg.Int(isa.FShiftBias),
		FPOut:     cfg.Int(isa.FFPOut),
		Mode:      mode,
		Range:     fix.Int8Range,
		Act:       act,
	}, nil
}

// conv runs CONV and CONVADDR under the current CONVINIT.
func (e *Engine) conv(_ context.Context, step Step, in isa.Instruction) error {
	cfg, err := e.config(step, in.Kind)
	if err != nil {
		return err
	}
	ic, oc := cfg.Int(isa.FIC), cfg.Int(isa.FOC)
	geo, err := geometryOf(cfg, ic)
	if err != nil {
		return err
	}
	if oc <= 0 {
		return invalidOperand("CONVINIT oc %d must be positive", oc)
	}
	out, err := geo.out(oc)
	if err != nil {
		return err
	}
	q, err := requant(cfg, convActs)
	if err != nil {
		return err
	}
	j := convJob{
		params: kernel.ConvParams{
			Stride:       geo.stride,
			Dilation:     geo.dilation,
			Pad:          geo.pad,
			Group:        1,
			ICIter:       max(cfg.Int(isa.FICIter), 1),
			ShiftPsum:    cfg.Int(isa.FShiftPsum),
			HasShiftPsum: cfg.Int(isa.FHasShiftPsum) == 1,
		},
		geo:     geo,
		weights: tensor.NHWC(oc, geo.kernel.H, geo.kernel.W, ic),
		out:     out,
		quant:   q,
		hasBias: cfg.Int(isa.FHasBias) == 1,
	}
	return e.runConv(j, e.operandsOf(in))
}

// depthwise runs DPTWISE under the current DWINIT. Weights are
// [kh][kw][channel], one filter per channel.
func (e *Engine) depthwise(_ context.Context, step Step, in isa.Instruction) error {
	cfg, err := e.config(step, in.Kind)
	if err != nil {
		return err
	}
	return e.runDepthwise(cfg, cfg.Int(isa.FChannel), e.operandsOf(in), convActs)
}

func (e *Engine) runDepthwise(cfg isa.Instruction, channels int, ops operands, acts []fix.Kind) error {
	geo, err := geometryOf(cfg, channels)
	if err != nil {
		return err
	}
	out, err := geo.out(channels)
	if err != nil {
		return err
	}
	q, err := requant(cfg, acts)
	if err != nil {
		return err
	}
	j := convJob{
		params: kernel.ConvParams{
			Stride:    geo.stride,
			Dilation:  geo.dilation,
			Pad:       geo.pad,
			Depthwise: true,
		},
		geo:     geo,
		weights: tensor.NHWC(1, geo.kernel.H, geo.kernel.W, channels),
		out:     out,
		quant:   q,
		hasBias: cfg.Int(isa.FHasBias) == 1,
	}
	return e.runConv(j, ops)
}

// pool runs POOL under the current POOLINIT. pool_type picks the reducer.
func (e *Engine) pool(_ context.Context, step Step, in isa.Instruction) error {
	cfg, err := e.config(step, in.Kind)
	if err != nil {
		return err
	}
	return e.runPool(cfg, cfg.Int(isa.FPoolType), e.operandsOf(in))
}

func (e *Engine) runPool(cfg isa.Instruction, poolType int, ops operands) error {
	r, ok := op.Reducer(poolType)
	if !ok {
		return unsupported("pool_type %d", poolType)
	}
	geo, err := geometryOf(cfg, cfg.Int(isa.FChannel))
	if err != nil {
		return err
	}
	out, err := geo.out(geo.in.C)
	if err != nil {
		return err
	}
	mode, err := roundOf(cfg)
	if err != nil {
		return err
	}
	act, err := actOf(cfg, basicActs...)
	if err != nil {
		return err
	}
	q := fix.Quant{
		ShiftCut: cfg.Int(isa.FShiftCut),
		Mode:     mode,
		Range:    fix.Int8Range,
		Act:      act,
	}
	p := kernel.PoolParams{Kernel: geo.kernel, Stride: geo.stride, Pad: geo.pad}
	k, err := kernel.NewPooling[int8](p, r, geo.in, out, q, e.kopts...)
	if err != nil {
		return coreErr(err)
	}
	x, err := ops(isa.RoleInput, geo.in.Num())
	if err != nil {
		return err
	}
	y := make([]int8, out.Num())
	if err := k.Run(x, y); err != nil {
		return coreErr(err)
	}
	return store(ops, y)
}

// elew runs ELEW under the current ELEWINIT.
func (e *Engine) elew(_ context.Context, step Step, in isa.Instruction) error {
	cfg, err := e.config(step, in.Kind)
	if err != nil {
		return err
	}
	num := cfg.Int(isa.FNum)
	if num < 2 || num > kernel.MaxElewInputs {
		return unsupported("ELEWINIT num %d", num)
	}
	typ := kernel.ElewType(cfg.Int(isa.FElewType))
	shifts := make([]int, num)
	for i := range shifts {
		shifts[i] = cfg.Int(isa.FShiftRead(i))
	}
	inputs := make([][]int8, num)
	n := cfg.Int(isa.FLength)
	for i := range inputs {
		buf, err := e.mem.Bank(in.Int(isa.FBankIDInN(i)), in.Int(isa.FBankAddrInN(i)), n)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		inputs[i] = buf
	}
	out, err := e.runElew(cfg, typ, shifts, cfg.Int(isa.FShiftWrite), inputs, basicActs)
	if err != nil {
		return err
	}
	dst, err := e.mem.Bank(in.Int(isa.FBankIDOut), in.Int(isa.FBankAddrOut), n)
	if err != nil {
		return err
	}
	copy(dst, out)
	return nil
}

func (e *Engine) runElew(cfg isa.Instruction, typ kernel.ElewType, shifts []int, cut int, inputs [][]int8, acts []fix.Kind) ([]int8, error) {
	if typ != kernel.ElewAdd && typ != kernel.ElewMul {
		return nil, unsupported("elementwise type %d", int(typ))
	}
	mode, err := roundOf(cfg)
	if err != nil {
		return nil, err
	}
	act, err := actOf(cfg, acts...)
	if err != nil {
		return nil, err
	}
	q := fix.Quant{ShiftCut: cut, Mode: mode, Range: fix.Int8Range, Act: act}
	k, err := kernel.NewElew[int8](typ, shifts, q, e.kopts...)
	if err != nil {
		return nil, coreErr(err)
	}
	out := make([]int8, len(inputs[0]))
	if err := k.Run(inputs, out); err != nil {
		return nil, coreErr(err)
	}
	return out, nil
}

// threshold runs THD: each output counts the thresholds its input reaches.
func (e *Engine) threshold(_ context.Context, _ Step, in isa.Instruction) error {
	n := in.Int(isa.FLength)
	x, err := e.mem.Bank(in.Int(isa.FBankIDIn), in.Int(isa.FBankAddrIn), n)
	if err != nil {
		return err
	}
	thd, err := e.mem.Bank(in.Int(isa.FBankIDThd), in.Int(isa.FBankAddrThd), in.Int(isa.FNumThd))
	if err != nil {
		return err
	}
	out := make([]int8, n)
	if err := kernel.Threshold(x, thd, out); err != nil {
		return coreErr(err)
	}
	dst, err := e.mem.Bank(in.Int(isa.FBankIDOut), in.Int(isa.FBankAddrOut), n)
	if err != nil {
		return err
	}
	copy(dst, out)
	return nil
}
