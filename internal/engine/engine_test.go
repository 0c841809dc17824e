package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/isa"
)

type fields = map[string]int64

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Threads = 1
	cfg.Banks = 4
	cfg.BankDepth = 256
	cfg.DDR = []config.DDRRegion{
		{RegID: 0, Size: 256},
		{RegID: 1, Size: 256},
	}
	return &cfg
}

func newTestEngine(cfg *config.Config, opts ...Option) *Engine {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRunIDs(NewFixedGenerator("run-1", "run-2", "run-3")),
	}
	return New(cfg, append(base, opts...)...)
}

// inst encodes and decodes an instruction so tests exercise the real
// field layouts.
func inst(t *testing.T, v isa.Version, k isa.Kind, f fields, addrs ...isa.AddrEntry) isa.Instruction {
	t.Helper()
	raw, err := isa.Encode(v, k, f, addrs)
	require.NoError(t, err)
	in, err := isa.Decode(v, raw)
	require.NoError(t, err)
	return in
}

func stream(v isa.Version, ins ...isa.Instruction) isa.Stream {
	return isa.Stream{Version: v, Instructions: ins}
}

func end(t *testing.T, v isa.Version) isa.Instruction {
	t.Helper()
	return inst(t, v, isa.End, nil)
}

func setBank(t *testing.T, e *Engine, id, addr int, vals ...int8) {
	t.Helper()
	dst, err := e.Memory().Bank(id, addr, len(vals))
	require.NoError(t, err)
	copy(dst, vals)
}

func bank(t *testing.T, e *Engine, id, addr, n int) []int8 {
	t.Helper()
	b, err := e.Memory().ReadBank(id, addr, n)
	require.NoError(t, err)
	return b
}

// conv1x1 is a CONVINIT for a 1x1 kernel over a 1 x w x ic input.
func conv1x1(w, ic, oc, shiftCut int) fields {
	return fields{
		isa.FKernelH: 1, isa.FKernelW: 1,
		isa.FStrideH: 1, isa.FStrideW: 1,
		isa.FSrcH: 1, isa.FSrcW: int64(w),
		isa.FIC: int64(ic), isa.FOC: int64(oc),
		isa.FShiftCut: int64(shiftCut),
	}
}

// convOperands places input in bank 0, weights in bank 1, bias in bank 3
// and output in bank 2, all at address 0.
var convOperands = fields{
	isa.FBankIDIn: 0, isa.FBankIDW: 1, isa.FBankIDB: 3, isa.FBankIDOut: 2,
}

func TestEngine_LoadSaveStridedRoundTrip(t *testing.T) {
	e := newTestEngine(testConfig())
	require.NoError(t, e.Memory().WriteDDR(0, 0, []int8{1, 2, 3, 4, 5, 6, 7, 8}))

	s := stream(isa.V2,
		inst(t, isa.V2, isa.Load, fields{
			isa.FRegID: 0, isa.FDDRAddr: 0,
			isa.FBankID: 1, isa.FBankAddr: 0,
			isa.FRows: 2, isa.FLength: 4,
			isa.FJumpRead: 4, isa.FJumpWrite: 8,
		}),
		inst(t, isa.V2, isa.Save, fields{
			isa.FRegID: 1, isa.FDDRAddr: 16,
			isa.FBankID: 1, isa.FBankAddr: 0,
			isa.FRows: 2, isa.FLength: 4,
			isa.FJumpRead: 8,
		}),
		end(t, isa.V2),
	)
	res, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 3, res.Executed)

	assert.Equal(t, []int8{1, 2, 3, 4}, bank(t, e, 1, 0, 4))
	assert.Equal(t, []int8{5, 6, 7, 8}, bank(t, e, 1, 8, 4))
	out, err := e.Memory().ReadDDR(1, 16, 8)
	require.NoError(t, err)
	assert.Equal(t, []int8{1, 2, 3, 4, 5, 6, 7, 8}, out)
}

func TestEngine_LoadPastRegionOverflows(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.Load, fields{isa.FRegID: 0, isa.FDDRAddr: 250, isa.FLength: 16, isa.FBankID: 0}),
		end(t, isa.V2),
	)

	_, err := e.Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, IsAddressError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 0, re.Index)
	assert.Equal(t, isa.Load, re.Kind)
	assert.Equal(t, "ddr", re.Details["space"])
}

func TestEngine_UnknownBankOverflows(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.Load, fields{isa.FBankID: 9, isa.FLength: 1}),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	assert.True(t, IsAddressError(err))
}

func TestEngine_ConvWithoutInitFails(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, IsMissingInitError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 0, re.Index)
	assert.Equal(t, isa.Conv, re.Kind)
}

func TestEngine_InitOfOtherFamilyDoesNotCount(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.PoolInit, fields{isa.FKernelH: 1, isa.FKernelW: 1}),
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	assert.True(t, IsMissingInitError(err))
}

func TestEngine_LastInitWins(t *testing.T) {
	var logs bytes.Buffer
	e := New(testConfig(),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithRunIDs(NewFixedGenerator("run-1")),
	)
	setBank(t, e, 0, 0, 6)
	setBank(t, e, 1, 0, 2)

	s := stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0)),
		inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 1)),
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	// 6*2 = 12, shifted by the second INIT's shift_cut of 1.
	assert.Equal(t, []int8{6}, bank(t, e, 2, 0, 1))
	assert.Contains(t, logs.String(), "INIT replaced before use")
}

func TestEngine_InitPersistsAcrossComputes(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 0, 3)
	setBank(t, e, 1, 0, 5)

	second := fields{isa.FBankIDIn: 0, isa.FBankIDW: 1, isa.FBankIDOut: 2, isa.FBankAddrOut: 1}
	s := stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0)),
		inst(t, isa.V2, isa.Conv, convOperands),
		inst(t, isa.V2, isa.Conv, second),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int8{15, 15}, bank(t, e, 2, 0, 2))
}

func TestEngine_InitDoesNotLeakAcrossRuns(t *testing.T) {
	e := newTestEngine(testConfig())
	_, err := e.Run(context.Background(), stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0)),
		end(t, isa.V2),
	))
	require.NoError(t, err)

	_, err = e.Run(context.Background(), stream(isa.V2,
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	))
	assert.True(t, IsMissingInitError(err))
}

func TestEngine_ConvBiasAndActivation(t *testing.T) {
	e := newTestEngine(testConfig())
	// Two pixels, two input channels, two output channels.
	setBank(t, e, 0, 0, 1, 2, -3, -4)
	setBank(t, e, 1, 0, 1, 1, 2, -1)
	setBank(t, e, 3, 0, 1, -1)

	cfg := conv1x1(2, 2, 2, 0)
	cfg[isa.FHasBias] = 1
	cfg[isa.FShiftBias] = 1
	cfg[isa.FActType] = 1 // RELU
	s := stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, cfg),
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	// pixel 0: oc0 = 1+2+2 = 5, oc1 = 2-2-2 = -2 -> 0
	// pixel 1: oc0 = -3-4+2 = -5 -> 0, oc1 = -6+4-2 = -4 -> 0
	assert.Equal(t, []int8{5, 0, 0, 0}, bank(t, e, 2, 0, 4))
}

func TestEngine_UnsupportedActType(t *testing.T) {
	e := newTestEngine(testConfig())
	cfg := conv1x1(1, 1, 1, 0)
	cfg[isa.FActType] = 9
	s := stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, cfg),
		inst(t, isa.V2, isa.Conv, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	assert.True(t, IsUnsupportedError(err))
}

func TestEngine_ShardedConvMatchesDirect(t *testing.T) {
	cfg := fields{
		isa.FKernelH: 3, isa.FKernelW: 3,
		isa.FStrideH: 1, isa.FStrideW: 1,
		isa.FPadTop: 1, isa.FPadBottom: 1, isa.FPadLeft: 1, isa.FPadRight: 1,
		isa.FSrcH: 5, isa.FSrcW: 5,
		isa.FIC: 3, isa.FOC: 4,
		isa.FShiftCut: 4,
		isa.FActType:  3, // LEAKYRELU
	}
	run := func(threads int, gemm bool) []int8 {
		c := testConfig()
		c.Threads = threads
		c.GEMM = gemm
		e := newTestEngine(c)
		x := make([]int8, 5*5*3)
		for i := range x {
			x[i] = int8((i*37+11)%23 - 11)
		}
		w := make([]int8, 4*3*3*3)
		for i := range w {
			w[i] = int8((i*13+5)%17 - 8)
		}
		setBank(t, e, 0, 0, x...)
		setBank(t, e, 1, 0, w...)
		_, err := e.Run(context.Background(), stream(isa.V2,
			inst(t, isa.V2, isa.ConvInit, cfg),
			inst(t, isa.V2, isa.Conv, convOperands),
			end(t, isa.V2),
		))
		require.NoError(t, err)
		return bank(t, e, 2, 0, 5*5*4)
	}

	want := run(1, false)
	for _, threads := range []int{2, 3, 7, 17} {
		assert.Equal(t, want, run(threads, false), "threads=%d", threads)
		assert.Equal(t, want, run(threads, true), "threads=%d gemm", threads)
	}
}

func TestEngine_DepthwiseConv(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 0, 3, 4, -5, 6)
	setBank(t, e, 1, 0, 2, -1)

	s := stream(isa.V2,
		inst(t, isa.V2, isa.DWInit, fields{
			isa.FKernelH: 1, isa.FKernelW: 1, isa.FStrideH: 1, isa.FStrideW: 1,
			isa.FSrcH: 1, isa.FSrcW: 2, isa.FChannel: 2,
		}),
		inst(t, isa.V2, isa.DptWise, convOperands),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int8{6, -4, -10, -6}, bank(t, e, 2, 0, 4))
}

func poolInit(poolType int) fields {
	return fields{
		isa.FKernelH: 2, isa.FKernelW: 2, isa.FStrideH: 2, isa.FStrideW: 2,
		isa.FSrcH: 2, isa.FSrcW: 2, isa.FChannel: 1,
		isa.FPoolType: int64(poolType),
	}
}

func TestEngine_PoolSelectsReducer(t *testing.T) {
	tests := []struct {
		name     string
		poolType int
		want     int8
	}{
		{"max", 0, 5},
		{"avg", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(testConfig())
			setBank(t, e, 0, 0, 1, 5, -3, 2)
			s := stream(isa.V3E,
				inst(t, isa.V3E, isa.PoolInit, poolInit(tt.poolType)),
				inst(t, isa.V3E, isa.Pool, fields{isa.FBankIDIn: 0, isa.FBankIDOut: 2}),
				end(t, isa.V3E),
			)
			_, err := e.Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, []int8{tt.want}, bank(t, e, 2, 0, 1))
		})
	}
}

func TestEngine_PoolUnknownType(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V3E,
		inst(t, isa.V3E, isa.PoolInit, poolInit(3)),
		inst(t, isa.V3E, isa.Pool, fields{isa.FBankIDIn: 0, isa.FBankIDOut: 2}),
		end(t, isa.V3E),
	)
	_, err := e.Run(context.Background(), s)
	assert.True(t, IsUnsupportedError(err))
}

func TestEngine_ElewAddAlignsInputs(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 0, 3, -4)
	setBank(t, e, 1, 0, 2, 2)

	s := stream(isa.V4E,
		inst(t, isa.V4E, isa.ElewInit, fields{
			isa.FNum: 2, isa.FLength: 2,
			isa.FShiftRead(0): 1, isa.FShiftWrite: 1,
		}),
		inst(t, isa.V4E, isa.Elew, fields{
			isa.FBankIDInN(0): 0, isa.FBankIDInN(1): 1, isa.FBankIDOut: 2,
		}),
		end(t, isa.V4E),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	// (3*2 + 2) / 2 = 4, (-8 + 2) / 2 = -3
	assert.Equal(t, []int8{4, -3}, bank(t, e, 2, 0, 2))
}

func TestEngine_ElewRejectsSingleInput(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.ElewInit, fields{isa.FNum: 1, isa.FLength: 2}),
		inst(t, isa.V2, isa.Elew, fields{}),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	assert.True(t, IsUnsupportedError(err))
}

func TestEngine_ThresholdOnDPU4F(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 0, -20, -10, 5, 10, 100)
	setBank(t, e, 1, 0, -10, 0, 10)

	s := stream(isa.DPU4F,
		inst(t, isa.DPU4F, isa.Thd, fields{
			isa.FBankIDIn: 0, isa.FBankIDThd: 1, isa.FBankIDOut: 2,
			isa.FNumThd: 3, isa.FLength: 5,
		}),
		end(t, isa.DPU4F),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int8{0, 1, 2, 3, 3}, bank(t, e, 2, 0, 5))
}

func TestEngine_CBLoadOnV3ME(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 4, 7, 8, 9)

	s := stream(isa.V3ME,
		inst(t, isa.V3ME, isa.CBLoad, fields{
			isa.FSrcBank: 0, isa.FSrcAddr: 4,
			isa.FDstBank: 3, isa.FDstAddr: 10,
			isa.FLength: 3,
		}),
		end(t, isa.V3ME),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int8{7, 8, 9}, bank(t, e, 3, 10, 3))
}

func TestEngine_ConvAddrReadsDDR(t *testing.T) {
	e := newTestEngine(testConfig())
	mem := e.Memory()
	require.NoError(t, mem.WriteDDR(0, 0, []int8{1, 2, 3, 4}))
	require.NoError(t, mem.WriteDDR(0, 16, []int8{1, 1}))

	s := stream(isa.XV2DPU,
		inst(t, isa.XV2DPU, isa.ConvInit, conv1x1(2, 2, 1, 0)),
		inst(t, isa.XV2DPU, isa.ConvAddr, nil,
			isa.AddrEntry{Role: isa.RoleInput, RegID: 0, Addr: 0},
			isa.AddrEntry{Role: isa.RoleWeights, RegID: 0, Addr: 16},
			isa.AddrEntry{Role: isa.RoleOutput, RegID: 1, Addr: 8},
		),
		end(t, isa.XV2DPU),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	out, err := mem.ReadDDR(1, 8, 2)
	require.NoError(t, err)
	assert.Equal(t, []int8{3, 7}, out)
}

func TestEngine_ConvAddrMissingEntry(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.XV3DPU,
		inst(t, isa.XV3DPU, isa.ConvInit, conv1x1(1, 1, 1, 0)),
		inst(t, isa.XV3DPU, isa.ConvAddr, nil,
			isa.AddrEntry{Role: isa.RoleInput, RegID: 0, Addr: 0},
			isa.AddrEntry{Role: isa.RoleWeights, RegID: 0, Addr: 16},
		),
		end(t, isa.XV3DPU),
	)
	_, err := e.Run(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidOperand, CodeOf(err))
}

func TestEngine_AluElewMulOnXVDPU(t *testing.T) {
	e := newTestEngine(testConfig())
	setBank(t, e, 0, 0, 3, -4)
	setBank(t, e, 1, 0, 4, 4)

	s := stream(isa.XVDPU,
		inst(t, isa.XVDPU, isa.AluInit, fields{
			isa.FAluType:  AluElewMul,
			isa.FShiftCut: 1,
			isa.FSrcH:     1,
			isa.FSrcW:     2,
			isa.FChannel:  1,
		}),
		inst(t, isa.XVDPU, isa.Alu, convOperands),
		end(t, isa.XVDPU),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int8{6, -8}, bank(t, e, 2, 0, 2))
}

func TestEngine_AluMaxPoolThroughAddrTable(t *testing.T) {
	e := newTestEngine(testConfig())
	require.NoError(t, e.Memory().WriteDDR(0, 32, []int8{1, 5, -3, 2}))

	s := stream(isa.XV2DPU,
		inst(t, isa.XV2DPU, isa.AluInit, fields{
			isa.FAluType: AluMaxPool,
			isa.FKernelH: 2, isa.FKernelW: 2, isa.FStrideH: 2, isa.FStrideW: 2,
			isa.FSrcH: 2, isa.FSrcW: 2, isa.FChannel: 1,
		}),
		inst(t, isa.XV2DPU, isa.AluAddr, nil,
			isa.AddrEntry{Role: isa.RoleInput, RegID: 0, Addr: 32},
			isa.AddrEntry{Role: isa.RoleOutput, RegID: 1, Addr: 0},
		),
		end(t, isa.XV2DPU),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	out, err := e.Memory().ReadDDR(1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int8{5}, out)
}

func TestEngine_KindOutsideVersionIsDispatchError(t *testing.T) {
	e := newTestEngine(testConfig())
	alu := inst(t, isa.V2, isa.Alu, nil)
	_, err := e.Run(context.Background(), stream(isa.V3E, alu, end(t, isa.V3E)))
	require.Error(t, err)
	assert.True(t, isa.IsDispatchError(err, isa.ErrKindNotInVersion))
}

func TestEngine_MissingEnd(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2, inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0)))
	res, err := e.Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, IsMissingEndError(err))
	assert.Equal(t, 1, res.Executed)
}

func TestEngine_InstructionsAfterEndAreIgnored(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		end(t, isa.V2),
		inst(t, isa.V2, isa.Load, fields{isa.FBankID: 9, isa.FLength: 1}),
	)
	res, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Ignored)
}

func TestEngine_InstructionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInstructions = 2
	e := newTestEngine(cfg)
	ci := inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0))
	_, err := e.Run(context.Background(), stream(isa.V2, ci, ci, ci, end(t, isa.V2)))
	require.Error(t, err)
	assert.True(t, IsLimitError(err))
}

func TestEngine_ContextCancelled(t *testing.T) {
	e := newTestEngine(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, stream(isa.V2, end(t, isa.V2)))
	require.ErrorIs(t, err, context.Canceled)
}

type stepLog struct{ steps []Step }

func (l *stepLog) RecordStep(_ context.Context, s Step) error {
	l.steps = append(l.steps, s)
	return nil
}

func TestEngine_RecorderSeesEveryStep(t *testing.T) {
	rec := &stepLog{}
	e := newTestEngine(testConfig(), WithRecorder(rec))
	s := stream(isa.V2,
		inst(t, isa.V2, isa.ConvInit, conv1x1(1, 1, 1, 0)),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, rec.steps, 2)
	assert.Equal(t, int64(1), rec.steps[0].Seq)
	assert.Equal(t, int64(2), rec.steps[1].Seq)
	assert.Equal(t, "run-1", rec.steps[0].RunID)
	assert.Equal(t, isa.ConvInit, rec.steps[0].Kind)
	assert.Contains(t, rec.steps[0].Text, "CONVINIT kernel_h=1")
	assert.Equal(t, "END", rec.steps[1].Text)
}

func TestEngine_DumpCopiesWithoutMutating(t *testing.T) {
	var snaps []Snapshot
	d := DumperFunc(func(_ context.Context, s Snapshot) error {
		snaps = append(snaps, s)
		return nil
	})
	e := newTestEngine(testConfig(), WithDumper(d))
	require.NoError(t, e.Memory().WriteDDR(0, 4, []int8{9, 8, 7, 6}))

	s := stream(isa.V2,
		inst(t, isa.V2, isa.DumpDDR, fields{isa.FRegID: 0, isa.FDDRAddr: 4, isa.FSize: 4}),
		inst(t, isa.V2, isa.DumpDDRSlice, fields{
			isa.FRegID: 0, isa.FDDRAddr: 4, isa.FRowLen: 1, isa.FRows: 2, isa.FStride: 2,
		}),
		inst(t, isa.V2, isa.DumpBank, fields{isa.FBankStart: 1, isa.FBankNum: 2}),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	assert.Equal(t, isa.DumpDDR, snaps[0].Kind)
	assert.Equal(t, "ddr0@0x4", snaps[0].Segments[0].Name())
	assert.Equal(t, []int8{9, 8, 7, 6}, snaps[0].Segments[0].Data)

	require.Len(t, snaps[1].Segments, 2)
	assert.Equal(t, []int8{9}, snaps[1].Segments[0].Data)
	assert.Equal(t, []int8{7}, snaps[1].Segments[1].Data)

	require.Len(t, snaps[2].Segments, 2)
	assert.Equal(t, "bank1", snaps[2].Segments[0].Name())
	assert.Len(t, snaps[2].Segments[1].Data, 256)

	snaps[0].Segments[0].Data[0] = 0
	got, err := e.Memory().ReadDDR(0, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int8{9}, got, "snapshot data must be a copy")
}

func TestEngine_DumpWithoutDumperIsNoop(t *testing.T) {
	e := newTestEngine(testConfig())
	s := stream(isa.V2,
		inst(t, isa.V2, isa.DumpDDR, fields{isa.FRegID: 0, isa.FSize: 4}),
		end(t, isa.V2),
	)
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)
}
