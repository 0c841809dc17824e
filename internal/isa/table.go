package isa

import "sort"

// Opcode values. Debug dumps sit at the top of the opcode space in every
// version.
const (
	opLoad         uint32 = 0x0
	opAluInit      uint32 = 0x1
	opAlu          uint32 = 0x2
	opCBLoad       uint32 = 0x3
	opAluAddr      uint32 = 0x3
	opSave         uint32 = 0x4
	opThd          uint32 = 0x5
	opConvAddr     uint32 = 0x5
	opPoolInit     uint32 = 0x6
	opEnd          uint32 = 0x7
	opConv         uint32 = 0x8
	opConvInit     uint32 = 0x9
	opDptWise      uint32 = 0xA
	opDWInit       uint32 = 0xB
	opPool         uint32 = 0xC
	opElewInit     uint32 = 0xD
	opElew         uint32 = 0xE
	opDumpDDRSlice uint32 = 0xFD
	opDumpDDR      uint32 = 0xFE
	opDumpBank     uint32 = 0xFF
)

// Table is one version's closed opcode set.
type Table map[uint32]Kind

func dumpOps() Table {
	return Table{
		opDumpBank:     DumpBank,
		opDumpDDR:      DumpDDR,
		opDumpDDRSlice: DumpDDRSlice,
	}
}

// v3eTable is the DPUv3e set: transfers, conv, depthwise, pool and
// elementwise.
func v3eTable() Table {
	t := dumpOps()
	t[opLoad] = Load
	t[opSave] = Save
	t[opConvInit] = ConvInit
	t[opConv] = Conv
	t[opDWInit] = DWInit
	t[opDptWise] = DptWise
	t[opPoolInit] = PoolInit
	t[opPool] = Pool
	t[opElewInit] = ElewInit
	t[opElew] = Elew
	t[opEnd] = End
	return t
}

// v2Table adds the ALU pair to the v3e set.
func v2Table() Table {
	t := v3eTable()
	t[opAluInit] = AluInit
	t[opAlu] = Alu
	return t
}

func v3meTable() Table {
	t := v3eTable()
	t[opCBLoad] = CBLoad
	return t
}

func dpu4fTable() Table {
	t := v3eTable()
	t[opThd] = Thd
	return t
}

// xv2Table is the direct-addressing generation: conv and ALU only, each
// with an inline address variant.
func xv2Table() Table {
	t := dumpOps()
	t[opLoad] = Load
	t[opSave] = Save
	t[opConvInit] = ConvInit
	t[opConvAddr] = ConvAddr
	t[opConv] = Conv
	t[opAluInit] = AluInit
	t[opAluAddr] = AluAddr
	t[opAlu] = Alu
	t[opEnd] = End
	return t
}

// tables is built once at startup and never mutated.
var tables = map[Version]Table{
	V2:     v2Table(),
	V3E:    v3eTable(),
	V3ME:   v3meTable(),
	XVDPU:  v2Table(),
	XV2DPU: xv2Table(),
	XV3DPU: xv2Table(),
	DPU4F:  dpu4fTable(),
	V4E:    v3eTable(),
}

// Lookup resolves an opcode in one version's table.
func Lookup(v Version, opcode uint32) (Kind, error) {
	t, ok := tables[v]
	if !ok {
		return 0, unsupportedVersion(v)
	}
	k, ok := t[opcode]
	if !ok {
		return 0, unknownOpcode(v, opcode)
	}
	return k, nil
}

// OpcodeOf finds the opcode of kind k in version v.
func OpcodeOf(v Version, k Kind) (uint32, error) {
	t, ok := tables[v]
	if !ok {
		return 0, unsupportedVersion(v)
	}
	for op, kind := range t {
		if kind == k {
			return op, nil
		}
	}
	return 0, kindNotInVersion(v, k)
}

// Kinds returns the kinds of version v sorted by opcode.
func Kinds(v Version) []Kind {
	t := tables[v]
	ops := make([]uint32, 0, len(t))
	for op := range t {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	kinds := make([]Kind, len(ops))
	for i, op := range ops {
		kinds[i] = t[op]
	}
	return kinds
}
