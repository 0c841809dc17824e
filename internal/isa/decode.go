package isa

import (
	"fmt"
	"sort"
	"strings"
)

// Raw is one undecoded record of an instruction stream.
type Raw struct {
	Opcode uint32
	Words  []uint32
}

// Role says which operand an address entry points at.
type Role int

const (
	RoleInput Role = iota
	RoleWeights
	RoleBias
	RoleOutput
)

var roleNames = [...]string{"in", "weights", "bias", "out"}

func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown address role %q", s)
}

// AddrEntry is one row of an inline address table. Addr is a byte offset
// into DDR region RegID.
type AddrEntry struct {
	Role  Role
	RegID int
	Addr  int
}

const (
	maxAddrEntries = 15
	maxAddr        = 1<<24 - 1
)

func (a AddrEntry) word() (uint32, error) {
	if a.Role < RoleInput || a.Role > RoleOutput {
		return 0, fmt.Errorf("address role %d out of range", a.Role)
	}
	if a.RegID < 0 || a.RegID > 15 {
		return 0, fmt.Errorf("address reg_id %d out of range [0, 15]", a.RegID)
	}
	if a.Addr < 0 || a.Addr > maxAddr {
		return 0, fmt.Errorf("address 0x%X out of range", a.Addr)
	}
	return uint32(a.Role)<<28 | uint32(a.RegID)<<24 | uint32(a.Addr), nil
}

func parseAddrEntry(w uint32) AddrEntry {
	return AddrEntry{
		Role:  Role(w >> 28),
		RegID: int(w >> 24 & 0xF),
		Addr:  int(w & maxAddr),
	}
}

// Instruction is a decoded instruction bound to one ISA version.
type Instruction struct {
	Version Version
	Kind    Kind
	Opcode  uint32
	Fields  map[string]int64
	Addrs   []AddrEntry
	Words   []uint32
}

// Int returns a decoded field as int. Absent fields read as zero.
func (in Instruction) Int(name string) int {
	return int(in.Fields[name])
}

// Addr finds the address entry with role r.
func (in Instruction) Addr(r Role) (AddrEntry, bool) {
	for _, a := range in.Addrs {
		if a.Role == r {
			return a, true
		}
	}
	return AddrEntry{}, false
}

// Raw returns the undecoded record.
func (in Instruction) Raw() Raw {
	return Raw{Opcode: in.Opcode, Words: append([]uint32(nil), in.Words...)}
}

// String renders the instruction in the text stream syntax.
func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Kind.String())
	for _, f := range LayoutOf(in.Kind) {
		if in.Kind.HasAddrTable() && f.Name == FCount {
			continue
		}
		fmt.Fprintf(&b, " %s=%d", f.Name, in.Fields[f.Name])
	}
	for _, a := range in.Addrs {
		fmt.Fprintf(&b, " @%s=%d:0x%X", a.Role, a.RegID, a.Addr)
	}
	return b.String()
}

// Decode resolves raw against version v and extracts its fields.
func Decode(v Version, raw Raw) (Instruction, error) {
	kind, err := Lookup(v, raw.Opcode)
	if err != nil {
		return Instruction{}, err
	}
	layout := LayoutOf(kind)
	if len(raw.Words) < layout.Words() {
		return Instruction{}, malformed(v, raw.Opcode, "%v needs %d operand words, got %d", kind, layout.Words(), len(raw.Words))
	}

	in := Instruction{
		Version: v,
		Kind:    kind,
		Opcode:  raw.Opcode,
		Fields:  make(map[string]int64, len(layout)),
		Words:   append([]uint32(nil), raw.Words...),
	}
	for _, f := range layout {
		in.Fields[f.Name] = f.extract(raw.Words)
	}

	if kind.HasAddrTable() {
		n := int(in.Fields[FCount])
		if len(raw.Words) < 1+n {
			return Instruction{}, malformed(v, raw.Opcode, "%v declares %d address entries, got %d words", kind, n, len(raw.Words)-1)
		}
		in.Addrs = make([]AddrEntry, n)
		for i := range n {
			in.Addrs[i] = parseAddrEntry(raw.Words[1+i])
		}
	}
	return in, nil
}

// Encode builds the raw record for kind in version v. Every name in fields
// must belong to the kind's layout. Address entries are only accepted by
// kinds that carry an address table.
func Encode(v Version, kind Kind, fields map[string]int64, addrs []AddrEntry) (Raw, error) {
	op, err := OpcodeOf(v, kind)
	if err != nil {
		return Raw{}, err
	}
	layout := LayoutOf(kind)

	n := layout.Words()
	if kind.HasAddrTable() {
		if len(addrs) > maxAddrEntries {
			return Raw{}, malformed(v, op, "%v holds at most %d address entries, got %d", kind, maxAddrEntries, len(addrs))
		}
		n = 1 + len(addrs)
	} else if len(addrs) > 0 {
		return Raw{}, malformed(v, op, "%v does not take an address table", kind)
	}
	words := make([]uint32, n)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := layout.Lookup(name)
		if !ok || (kind.HasAddrTable() && name == FCount) {
			return Raw{}, malformed(v, op, "%v has no field %q", kind, name)
		}
		if err := f.insert(words, fields[name]); err != nil {
			return Raw{}, malformed(v, op, "%v: %v", kind, err)
		}
	}

	if kind.HasAddrTable() {
		words[0] = uint32(len(addrs))
		for i, a := range addrs {
			w, err := a.word()
			if err != nil {
				return Raw{}, malformed(v, op, "%v entry %d: %v", kind, i, err)
			}
			words[1+i] = w
		}
	}
	return Raw{Opcode: op, Words: words}, nil
}

// Stream is a decoded instruction stream.
type Stream struct {
	Version      Version
	Instructions []Instruction
}

// DecodeStream decodes every record in order. Decoding stops at the first
// failure.
func DecodeStream(v Version, raws []Raw) (Stream, error) {
	if _, ok := tables[v]; !ok {
		return Stream{}, unsupportedVersion(v)
	}
	s := Stream{Version: v, Instructions: make([]Instruction, 0, len(raws))}
	for i, r := range raws {
		in, err := Decode(v, r)
		if err != nil {
			return Stream{}, fmt.Errorf("instruction %d: %w", i, err)
		}
		s.Instructions = append(s.Instructions, in)
	}
	return s, nil
}
