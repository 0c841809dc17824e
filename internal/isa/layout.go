package isa

import "fmt"

// Field is one bit field of an operand word. Hi and Lo are inclusive bit
// positions. Signed fields are two's complement.
type Field struct {
	Name   string
	Word   int
	Hi, Lo int
	Signed bool
}

// Width returns the field width in bits.
func (f Field) Width() int { return f.Hi - f.Lo + 1 }

// extract reads the field from words.
func (f Field) extract(words []uint32) int64 {
	w := uint64(words[f.Word])
	v := (w >> f.Lo) & (uint64(1)<<f.Width() - 1)
	if f.Signed && v&(uint64(1)<<(f.Width()-1)) != 0 {
		return int64(v) - int64(uint64(1)<<f.Width())
	}
	return int64(v)
}

// insert writes v into words, failing if it does not fit.
func (f Field) insert(words []uint32, v int64) error {
	lo, hi := int64(0), int64(1)<<f.Width()-1
	if f.Signed {
		lo, hi = -(int64(1) << (f.Width() - 1)), int64(1)<<(f.Width()-1)-1
	}
	if v < lo || v > hi {
		return fmt.Errorf("field %s: value %d out of range [%d, %d]", f.Name, v, lo, hi)
	}
	mask := uint64(1)<<f.Width() - 1
	bits := (uint64(v) & mask) << f.Lo
	words[f.Word] = uint32((uint64(words[f.Word]) &^ (mask << f.Lo)) | bits)
	return nil
}

// Layout is the ordered field list of one instruction kind.
type Layout []Field

// Words returns the number of operand words the layout spans.
func (l Layout) Words() int {
	n := 0
	for _, f := range l {
		n = max(n, f.Word+1)
	}
	return n
}

// Lookup finds a field by name.
func (l Layout) Lookup(name string) (Field, bool) {
	for _, f := range l {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func u(name string, word, hi, lo int) Field {
	return Field{Name: name, Word: word, Hi: hi, Lo: lo}
}

func s(name string, word, hi, lo int) Field {
	return Field{Name: name, Word: word, Hi: hi, Lo: lo, Signed: true}
}

// Field names.
const (
	FBankID    = "bank_id"
	FBankAddr  = "bank_addr"
	FRegID     = "reg_id"
	FDDRAddr   = "ddr_addr"
	FLength    = "length"
	FRows      = "rows"
	FJumpWrite = "jump_write"
	FJumpRead  = "jump_read"

	FBankStart = "bank_start"
	FBankNum   = "bank_num"
	FSize      = "size"
	FRowLen    = "row_len"
	FStride    = "stride"

	FKernelH   = "kernel_h"
	FKernelW   = "kernel_w"
	FStrideH   = "stride_h"
	FStrideW   = "stride_w"
	FPadTop    = "pad_top"
	FPadBottom = "pad_bottom"
	FPadLeft   = "pad_left"
	FPadRight  = "pad_right"
	FDilationH = "dilation_h"
	FDilationW = "dilation_w"

	FIC           = "ic"
	FOC           = "oc"
	FChannel      = "channel"
	FSrcH         = "src_h"
	FSrcW         = "src_w"
	FActType      = "act_type"
	FRoundMode    = "round_mode"
	FHasBias      = "has_bias"
	FShiftCut     = "shift_cut"
	FShiftBias    = "shift_bias"
	FShiftPsum    = "shift_psum"
	FHasShiftPsum = "has_shift_psum"
	FICIter       = "ic_iter"
	FFPOut        = "fp_out"
	FHSigmoidIn   = "hsigmoid_in"
	FShiftHSig    = "shift_hsigmoid"
	FShiftHSwish  = "shift_hswish"
	FPreluIn      = "prelu_in"
	FPreluShift   = "prelu_shift"

	FBankIDIn    = "bank_id_in"
	FBankIDW     = "bank_id_w"
	FBankIDB     = "bank_id_b"
	FBankIDOut   = "bank_id_out"
	FBankAddrIn  = "bank_addr_in"
	FBankAddrW   = "bank_addr_w"
	FBankAddrB   = "bank_addr_b"
	FBankAddrOut = "bank_addr_out"

	FPoolType   = "pool_type"
	FAluType    = "alu_type"
	FNum        = "num"
	FElewType   = "elew_type"
	FShiftWrite = "shift_write"

	FSrcBank = "src_bank"
	FDstBank = "dst_bank"
	FSrcAddr = "src_addr"
	FDstAddr = "dst_addr"

	FBankIDThd   = "bank_id_thd"
	FBankAddrThd = "bank_addr_thd"
	FNumThd      = "num_thd"

	FCount = "count"
)

// Indexed field names for multi-input elementwise operands.
func FShiftRead(i int) string { return fmt.Sprintf("shift_read%d", i) }

func FBankIDInN(i int) string { return fmt.Sprintf("bank_id_in%d", i) }

func FBankAddrInN(i int) string { return fmt.Sprintf("bank_addr_in%d", i) }

// kernelWord is word 0 of every windowed INIT.
func kernelWord() Layout {
	return Layout{
		u(FKernelH, 0, 3, 0),
		u(FKernelW, 0, 7, 4),
		u(FStrideH, 0, 11, 8),
		u(FStrideW, 0, 15, 12),
		u(FPadTop, 0, 19, 16),
		u(FPadBottom, 0, 23, 20),
		u(FPadLeft, 0, 27, 24),
		u(FPadRight, 0, 31, 28),
	}
}

func join(parts ...Layout) Layout {
	var out Layout
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var transferLayout = Layout{
	u(FBankID, 0, 7, 0),
	u(FBankAddr, 0, 23, 8),
	u(FRegID, 0, 27, 24),
	u(FDDRAddr, 1, 31, 0),
	u(FLength, 2, 15, 0),
	u(FRows, 2, 31, 16),
	u(FJumpWrite, 3, 15, 0),
	u(FJumpRead, 4, 31, 0),
}

var convInitLayout = join(kernelWord(), Layout{
	u(FIC, 1, 11, 0),
	u(FOC, 1, 23, 12),
	u(FActType, 1, 27, 24),
	u(FRoundMode, 1, 29, 28),
	u(FHasBias, 1, 30, 30),
	u(FSrcH, 2, 11, 0),
	u(FSrcW, 2, 23, 12),
	u(FDilationH, 2, 27, 24),
	u(FDilationW, 2, 31, 28),
	s(FShiftCut, 3, 5, 0),
	s(FShiftBias, 3, 11, 6),
	u(FShiftPsum, 3, 15, 12),
	u(FICIter, 3, 19, 16),
	s(FFPOut, 3, 24, 20),
	u(FHSigmoidIn, 3, 28, 25),
	u(FHasShiftPsum, 3, 29, 29),
	u(FShiftHSig, 4, 5, 0),
	u(FShiftHSwish, 4, 11, 6),
	s(FPreluIn, 4, 19, 12),
	u(FPreluShift, 4, 23, 20),
})

var dwInitLayout = join(kernelWord(), Layout{
	u(FChannel, 1, 11, 0),
	u(FActType, 1, 27, 24),
	u(FRoundMode, 1, 29, 28),
	u(FHasBias, 1, 30, 30),
	u(FSrcH, 2, 11, 0),
	u(FSrcW, 2, 23, 12),
	u(FDilationH, 2, 27, 24),
	u(FDilationW, 2, 31, 28),
	s(FShiftCut, 3, 5, 0),
	s(FShiftBias, 3, 11, 6),
	s(FFPOut, 3, 24, 20),
	u(FHSigmoidIn, 3, 28, 25),
	u(FShiftHSig, 4, 5, 0),
	u(FShiftHSwish, 4, 11, 6),
	s(FPreluIn, 4, 19, 12),
	u(FPreluShift, 4, 23, 20),
})

var computeLayout = Layout{
	u(FBankIDIn, 0, 7, 0),
	u(FBankIDW, 0, 15, 8),
	u(FBankIDB, 0, 23, 16),
	u(FBankIDOut, 0, 31, 24),
	u(FBankAddrIn, 1, 15, 0),
	u(FBankAddrOut, 1, 31, 16),
	u(FBankAddrW, 2, 15, 0),
	u(FBankAddrB, 2, 31, 16),
}

var poolInitLayout = join(kernelWord(), Layout{
	u(FChannel, 1, 11, 0),
	u(FPoolType, 1, 13, 12),
	u(FRoundMode, 1, 15, 14),
	u(FActType, 1, 19, 16),
	u(FSrcH, 2, 11, 0),
	u(FSrcW, 2, 23, 12),
	s(FShiftCut, 3, 5, 0),
})

var poolLayout = Layout{
	u(FBankIDIn, 0, 7, 0),
	u(FBankIDOut, 0, 15, 8),
	u(FBankAddrIn, 1, 15, 0),
	u(FBankAddrOut, 1, 31, 16),
}

var elewInitLayout = Layout{
	u(FNum, 0, 2, 0),
	u(FElewType, 0, 4, 3),
	u(FActType, 0, 8, 5),
	u(FRoundMode, 0, 10, 9),
	u(FLength, 1, 15, 0),
	s(FShiftRead(0), 2, 5, 0),
	s(FShiftRead(1), 2, 11, 6),
	s(FShiftRead(2), 2, 17, 12),
	s(FShiftRead(3), 2, 23, 18),
	s(FShiftWrite, 2, 29, 24),
}

var elewLayout = Layout{
	u(FBankIDOut, 0, 7, 0),
	u(FBankIDInN(0), 0, 15, 8),
	u(FBankIDInN(1), 0, 23, 16),
	u(FBankIDInN(2), 0, 31, 24),
	u(FBankIDInN(3), 1, 7, 0),
	u(FBankAddrOut, 2, 15, 0),
	u(FBankAddrInN(0), 2, 31, 16),
	u(FBankAddrInN(1), 3, 15, 0),
	u(FBankAddrInN(2), 3, 31, 16),
	u(FBankAddrInN(3), 4, 15, 0),
}

var aluInitLayout = join(kernelWord(), Layout{
	u(FChannel, 1, 11, 0),
	u(FAluType, 1, 15, 12),
	u(FActType, 1, 19, 16),
	u(FRoundMode, 1, 21, 20),
	u(FHasBias, 1, 22, 22),
	u(FSrcH, 2, 11, 0),
	u(FSrcW, 2, 23, 12),
	s(FShiftCut, 3, 5, 0),
	s(FShiftBias, 3, 11, 6),
	s(FShiftRead(0), 3, 17, 12),
	s(FShiftRead(1), 3, 23, 18),
	s(FFPOut, 3, 28, 24),
	s(FPreluIn, 4, 7, 0),
	u(FPreluShift, 4, 11, 8),
})

// addrHeader is word 0 of CONVADDR and ALUADDR; entries follow.
var addrHeader = Layout{
	u(FCount, 0, 3, 0),
}

var cbLoadLayout = Layout{
	u(FSrcBank, 0, 7, 0),
	u(FDstBank, 0, 15, 8),
	u(FSrcAddr, 1, 15, 0),
	u(FDstAddr, 1, 31, 16),
	u(FLength, 2, 15, 0),
}

var thdLayout = Layout{
	u(FBankIDIn, 0, 7, 0),
	u(FBankIDThd, 0, 15, 8),
	u(FBankIDOut, 0, 23, 16),
	u(FNumThd, 0, 31, 24),
	u(FBankAddrIn, 1, 15, 0),
	u(FBankAddrOut, 1, 31, 16),
	u(FBankAddrThd, 2, 15, 0),
	u(FLength, 2, 31, 16),
}

var dumpBankLayout = Layout{
	u(FBankStart, 0, 7, 0),
	u(FBankNum, 0, 15, 8),
}

var dumpDDRLayout = Layout{
	u(FRegID, 0, 3, 0),
	u(FDDRAddr, 1, 31, 0),
	u(FSize, 2, 31, 0),
}

var dumpDDRSliceLayout = Layout{
	u(FRegID, 0, 3, 0),
	u(FDDRAddr, 1, 31, 0),
	u(FRowLen, 2, 15, 0),
	u(FRows, 2, 31, 16),
	u(FStride, 3, 31, 0),
}

// layouts maps every kind to its operand layout. Layouts are shared by
// every version that has the kind.
var layouts = map[Kind]Layout{
	DumpBank:     dumpBankLayout,
	DumpDDR:      dumpDDRLayout,
	DumpDDRSlice: dumpDDRSliceLayout,
	Load:         transferLayout,
	Save:         transferLayout,
	ConvInit:     convInitLayout,
	Conv:         computeLayout,
	ConvAddr:     addrHeader,
	DWInit:       dwInitLayout,
	DptWise:      computeLayout,
	PoolInit:     poolInitLayout,
	Pool:         poolLayout,
	ElewInit:     elewInitLayout,
	Elew:         elewLayout,
	AluInit:      aluInitLayout,
	Alu:          computeLayout,
	AluAddr:      addrHeader,
	CBLoad:       cbLoadLayout,
	Thd:          thdLayout,
	End:          nil,
}

// LayoutOf returns the operand layout of k.
func LayoutOf(k Kind) Layout { return layouts[k] }
