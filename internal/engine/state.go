package engine

import "github.com/roach88/dpusim/internal/isa"

// initSlot is the configuration most recently written by a family's INIT.
type initSlot struct {
	in    isa.Instruction
	index int
	used  bool
}

// initState holds one slot per op family. A later INIT replaces the slot
// wholesale; fields never merge across INITs.
type initState struct {
	slots map[isa.Family]*initSlot
}

func newInitState() *initState {
	return &initState{slots: make(map[isa.Family]*initSlot)}
}

// set records in and returns the slot it replaced when that slot was
// never consumed by a compute instruction.
func (s *initState) set(index int, in isa.Instruction) (stale *initSlot) {
	f := in.Kind.Family()
	if old, ok := s.slots[f]; ok && !old.used {
		stale = old
	}
	s.slots[f] = &initSlot{in: in, index: index}
	return stale
}

// get returns the configuration for the compute kind k and marks it used.
func (s *initState) get(k isa.Kind) (isa.Instruction, bool) {
	slot, ok := s.slots[k.Family()]
	if !ok {
		return isa.Instruction{}, false
	}
	slot.used = true
	return slot.in, true
}
