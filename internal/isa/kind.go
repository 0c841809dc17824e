package isa

import "fmt"

// Kind is an instruction kind.
type Kind int

const (
	DumpBank Kind = iota + 1
	DumpDDR
	DumpDDRSlice
	Load
	Save
	ConvInit
	Conv
	ConvAddr
	DWInit
	DptWise
	PoolInit
	Pool
	ElewInit
	Elew
	AluInit
	Alu
	AluAddr
	CBLoad
	Thd
	End
)

var kindNames = map[Kind]string{
	DumpBank:     "DUMPBANK",
	DumpDDR:      "DUMPDDR",
	DumpDDRSlice: "DUMPDDRSLICE",
	Load:         "LOAD",
	Save:         "SAVE",
	ConvInit:     "CONVINIT",
	Conv:         "CONV",
	ConvAddr:     "CONVADDR",
	DWInit:       "DWINIT",
	DptWise:      "DPTWISE",
	PoolInit:     "POOLINIT",
	Pool:         "POOL",
	ElewInit:     "ELEWINIT",
	Elew:         "ELEW",
	AluInit:      "ALUINIT",
	Alu:          "ALU",
	AluAddr:      "ALUADDR",
	CBLoad:       "CBLOAD",
	Thd:          "THD",
	End:          "END",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps an instruction name to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction kind %q", s)
}

// Family groups an INIT kind with the compute kinds that consume its
// configuration.
type Family int

const (
	NoFamily Family = iota
	ConvFamily
	DWFamily
	PoolFamily
	ElewFamily
	AluFamily
)

var familyNames = map[Family]string{
	NoFamily:   "none",
	ConvFamily: "conv",
	DWFamily:   "dwconv",
	PoolFamily: "pool",
	ElewFamily: "elew",
	AluFamily:  "alu",
}

func (f Family) String() string { return familyNames[f] }

// Family returns the op family of an INIT or compute kind.
func (k Kind) Family() Family {
	switch k {
	case ConvInit, Conv, ConvAddr:
		return ConvFamily
	case DWInit, DptWise:
		return DWFamily
	case PoolInit, Pool:
		return PoolFamily
	case ElewInit, Elew:
		return ElewFamily
	case AluInit, Alu, AluAddr:
		return AluFamily
	}
	return NoFamily
}

// IsInit reports whether k records configuration for its family.
func (k Kind) IsInit() bool {
	switch k {
	case ConvInit, DWInit, PoolInit, ElewInit, AluInit:
		return true
	}
	return false
}

// IsCompute reports whether k consumes its family's configuration.
func (k Kind) IsCompute() bool {
	return k.Family() != NoFamily && !k.IsInit()
}

// IsDump reports whether k is a debug snapshot.
func (k Kind) IsDump() bool {
	return k == DumpBank || k == DumpDDR || k == DumpDDRSlice
}

// HasAddrTable reports whether k carries its operand addresses inline.
func (k Kind) HasAddrTable() bool {
	return k == ConvAddr || k == AluAddr
}
