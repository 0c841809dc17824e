package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/dpusim/internal/config"
)

// Memory is the simulated address space: on-chip banks and DDR regions.
//
// Both are byte addressed and hold int8 samples. Every access goes through
// a bounds check and fails with E_ADDRESS_OVERFLOW instead of clipping.
type Memory struct {
	banks [][]int8
	ddr   map[int][]int8
}

// NewMemory allocates zeroed banks and DDR regions as cfg declares them.
func NewMemory(cfg *config.Config) *Memory {
	m := &Memory{
		banks: make([][]int8, cfg.Banks),
		ddr:   make(map[int][]int8, len(cfg.DDR)),
	}
	for i := range m.banks {
		m.banks[i] = make([]int8, cfg.BankDepth)
	}
	for _, r := range cfg.DDR {
		m.ddr[r.RegID] = make([]int8, r.Size)
	}
	return m
}

// Banks returns the number of banks.
func (m *Memory) Banks() int { return len(m.banks) }

// Regions returns the DDR reg_ids, sorted.
func (m *Memory) Regions() []int {
	ids := make([]int, 0, len(m.ddr))
	for id := range m.ddr {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Bank returns n bytes of bank id starting at addr. The slice aliases bank
// storage.
func (m *Memory) Bank(id, addr, n int) ([]int8, error) {
	if id < 0 || id >= len(m.banks) {
		return nil, NewAddressError("bank", id, addr, n, 0)
	}
	return span(m.banks[id], "bank", id, addr, n)
}

// DDR returns n bytes of region regID starting at addr. The slice aliases
// region storage.
func (m *Memory) DDR(regID, addr, n int) ([]int8, error) {
	r, ok := m.ddr[regID]
	if !ok {
		return nil, NewAddressError("ddr", regID, addr, n, 0)
	}
	return span(r, "ddr", regID, addr, n)
}

// WriteDDR copies data into region regID at addr.
func (m *Memory) WriteDDR(regID, addr int, data []int8) error {
	dst, err := m.DDR(regID, addr, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// ReadDDR returns a copy of n bytes of region regID at addr.
func (m *Memory) ReadDDR(regID, addr, n int) ([]int8, error) {
	src, err := m.DDR(regID, addr, n)
	if err != nil {
		return nil, err
	}
	return slices.Clone(src), nil
}

// ReadBank returns a copy of n bytes of bank id at addr.
func (m *Memory) ReadBank(id, addr, n int) ([]int8, error) {
	src, err := m.Bank(id, addr, n)
	if err != nil {
		return nil, err
	}
	return slices.Clone(src), nil
}

// Size returns the size of region regID, or 0 if it does not exist.
func (m *Memory) Size(regID int) int { return len(m.ddr[regID]) }

func span(buf []int8, space string, id, addr, n int) ([]int8, error) {
	if addr < 0 || n < 0 || addr+n > len(buf) {
		return nil, NewAddressError(space, id, addr, n, len(buf))
	}
	return buf[addr : addr+n : addr+n], nil
}

// strided copies rows of length bytes from src to dst. Row r starts at
// srcAddr + r*srcJump and lands at dstAddr + r*dstJump. A zero jump means
// rows are packed.
type strided struct {
	rows, length     int
	srcAddr, srcJump int
	dstAddr, dstJump int
}

func (s strided) run(src, dst func(addr, n int) ([]int8, error)) error {
	if s.length == 0 {
		return nil
	}
	srcJump, dstJump := s.srcJump, s.dstJump
	if srcJump == 0 {
		srcJump = s.length
	}
	if dstJump == 0 {
		dstJump = s.length
	}
	for r := 0; r < max(s.rows, 1); r++ {
		from, err := src(s.srcAddr+r*srcJump, s.length)
		if err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
		to, err := dst(s.dstAddr+r*dstJump, s.length)
		if err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
		copy(to, from)
	}
	return nil
}
