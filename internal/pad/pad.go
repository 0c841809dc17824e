// Package pad derives output sizes from pad modes and materializes padded,
// dilated copies of feature maps.
package pad

import (
	"fmt"
	"math"
)

// Mode governs how the output spatial size is derived.
type Mode int

const (
	Floor Mode = iota
	Ceil
	Same
	Valid
)

var modeNames = map[Mode]string{
	Floor: "FLOOR",
	Ceil:  "CEIL",
	Same:  "SAME",
	Valid: "VALID",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses FLOOR, CEIL, SAME or VALID.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown pad mode %q", s)
}

// OutputSize derives one spatial output size.
//
// in is the padded input size, raw the unpadded size (used by SAME),
// kernel the effective (dilated) kernel size.
//
//	FLOOR: floor((in - k + s) / s)
//	CEIL:  ceil((in - k + s) / s)
//	SAME:  ceil(raw / s)
//	VALID: ceil((in - k + 1) / s)
func OutputSize(mode Mode, in, raw, kernel, stride int) int {
	switch mode {
	case Floor:
		return int(math.Floor(float64(in-kernel+stride) / float64(stride)))
	case Ceil:
		return int(math.Ceil(float64(in-kernel+stride) / float64(stride)))
	case Same:
		return int(math.Ceil(float64(raw) / float64(stride)))
	case Valid:
		return int(math.Ceil(float64(in-kernel+1) / float64(stride)))
	}
	panic(fmt.Sprintf("pad: unknown mode %d", int(mode)))
}

// Spec holds per-side padding. Negative amounts crop.
type Spec struct {
	Mode   Mode
	Left   int
	Top    int
	Right  int
	Bottom int
	Near   int
	Far    int
}

// IsZero reports whether every side is zero.
func (s Spec) IsZero() bool {
	return s.Left == 0 && s.Top == 0 && s.Right == 0 && s.Bottom == 0 && s.Near == 0 && s.Far == 0
}

// Dilation holds per-axis dilation factors.
type Dilation struct {
	H, W, D int
}

// NoDilation is the identity dilation.
var NoDilation = Dilation{H: 1, W: 1, D: 1}

// IsIdentity reports whether every factor is 1.
func (d Dilation) IsIdentity() bool {
	return d.H == 1 && d.W == 1 && d.D == 1
}

// Dilated returns the extent of size elements after dilation.
func Dilated(size, dil int) int {
	return size*dil - (dil - 1)
}
