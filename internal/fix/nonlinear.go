package fix

import (
	"fmt"
	"math"
)

// Kind tags a nonlinear variant. The numeric values are the hardware
// act_type codes.
type Kind int

const (
	None Kind = iota
	Relu
	Prelu
	LeakyRelu
	Relu6
	HSigmoid
	HSwish
)

var kindNames = map[Kind]string{
	None:      "NONE",
	Relu:      "RELU",
	Prelu:     "PRELU",
	LeakyRelu: "LEAKYRELU",
	Relu6:     "RELU6",
	HSigmoid:  "HSIGMOID",
	HSwish:    "HSWISH",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a nonlinear name to its Kind. The empty string is None.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return None, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown nonlinear type %q", s)
}

// KindFromCode validates a hardware act_type code.
func KindFromCode(code int) (Kind, error) {
	k := Kind(code)
	if _, ok := kindNames[k]; !ok {
		return 0, fmt.Errorf("unknown act_type %d", code)
	}
	return k, nil
}

// DefaultLeakyAlpha is the hardware leaky slope, 26/256.
const DefaultLeakyAlpha = 26.0 / 256.0

// hsigmoidScale is 1/6 in Q14 (round(2^14/6)).
const hsigmoidScale = 2731

// relu6Threshold is 6 at fix point 4.
const relu6Threshold = 6 << 4

// Nonlinear is the activation applied by the requantizer.
type Nonlinear struct {
	Kind Kind

	// Alpha is the negative slope of PRELU and LEAKYRELU.
	Alpha float64

	HSigmoidIn    int
	ShiftHSigmoid int
	ShiftHSwish   int
}

// PreluAlpha derives the PRELU slope prelu_in / 2^prelu_shift.
func PreluAlpha(preluIn, preluShift int) float64 {
	return math.Ldexp(float64(preluIn), -preluShift)
}

// scalesNegative reports whether the variant scales negative values before
// the shift.
func (n Nonlinear) scalesNegative() bool {
	return n.Kind == Prelu || n.Kind == LeakyRelu
}

// hsigmoid evaluates min(2^32, max(0, x*2731 + 3*2731*2^in)) * 2^-shift.
func (n Nonlinear) hsigmoid(x float64) float64 {
	y := x*hsigmoidScale + 3*hsigmoidScale*math.Ldexp(1, n.HSigmoidIn)
	y = math.Min(math.Ldexp(1, 32), math.Max(0, y))
	return math.Ldexp(y, -n.ShiftHSigmoid)
}
