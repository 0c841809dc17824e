package engine

import (
	"context"

	"github.com/roach88/dpusim/internal/isa"
)

// transferOf reads the strided geometry shared by LOAD and SAVE.
// jump_read strides the source and jump_write the destination.
func transferOf(in isa.Instruction) strided {
	return strided{
		rows:    in.Int(isa.FRows),
		length:  in.Int(isa.FLength),
		srcJump: in.Int(isa.FJumpRead),
		dstJump: in.Int(isa.FJumpWrite),
	}
}

// load copies DDR rows into a bank.
func (e *Engine) load(_ context.Context, _ Step, in isa.Instruction) error {
	t := transferOf(in)
	t.srcAddr, t.dstAddr = in.Int(isa.FDDRAddr), in.Int(isa.FBankAddr)
	reg, bank := in.Int(isa.FRegID), in.Int(isa.FBankID)
	return t.run(
		func(a, n int) ([]int8, error) { return e.mem.DDR(reg, a, n) },
		func(a, n int) ([]int8, error) { return e.mem.Bank(bank, a, n) },
	)
}

// save copies bank rows out to DDR.
func (e *Engine) save(_ context.Context, _ Step, in isa.Instruction) error {
	t := transferOf(in)
	t.srcAddr, t.dstAddr = in.Int(isa.FBankAddr), in.Int(isa.FDDRAddr)
	reg, bank := in.Int(isa.FRegID), in.Int(isa.FBankID)
	return t.run(
		func(a, n int) ([]int8, error) { return e.mem.Bank(bank, a, n) },
		func(a, n int) ([]int8, error) { return e.mem.DDR(reg, a, n) },
	)
}

// cbLoad copies length bytes between banks. Overlapping ranges in one bank
// behave like memmove.
func (e *Engine) cbLoad(_ context.Context, _ Step, in isa.Instruction) error {
	n := in.Int(isa.FLength)
	src, err := e.mem.Bank(in.Int(isa.FSrcBank), in.Int(isa.FSrcAddr), n)
	if err != nil {
		return err
	}
	dst, err := e.mem.Bank(in.Int(isa.FDstBank), in.Int(isa.FDstAddr), n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}
