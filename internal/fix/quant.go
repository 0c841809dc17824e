package fix

import "math"

// Quant requantizes an accumulator into an output sample.
//
// ShiftCut is fp_in + fp_w - fp_out (or an explicit shift); ShiftBias is
// fp_in + fp_w - fp_bias. Both may be negative.
type Quant struct {
	ShiftCut  int
	ShiftBias int
	FPOut     int
	Mode      RoundMode
	Range     Range
	Act       Nonlinear
}

// ConvShifts derives shift_cut and shift_bias from fix points.
func ConvShifts(fpIn, fpW, fpBias, fpOut int) (shiftCut, shiftBias int) {
	return fpIn + fpW - fpOut, fpIn + fpW - fpBias
}

// Apply requantizes acc without bias.
func (q *Quant) Apply(acc float64) float64 {
	return q.apply(acc, 0, false)
}

// ApplyBias requantizes acc with bias fused at the accumulator position.
func (q *Quant) ApplyBias(acc, bias float64) float64 {
	return q.apply(acc, bias, true)
}

// Scale returns the pre-round value: the pipeline up to and including the
// nonlinear stage.
func (q *Quant) Scale(acc float64) float64 {
	return q.scale(acc, 0, false)
}

func (q *Quant) apply(acc, bias float64, hasBias bool) float64 {
	return RoundClamp(q.Mode, q.Range, q.scale(acc, bias, hasBias))
}

func (q *Quant) scale(acc, bias float64, hasBias bool) float64 {
	tmp := acc
	if hasBias {
		tmp += math.Ldexp(bias, q.ShiftBias)
	}
	// PRELU and LEAKYRELU scale before the shift, as the hardware does.
	if q.Act.scalesNegative() && tmp < 0 {
		tmp *= q.Act.Alpha
	}
	tmp = math.Ldexp(tmp, -q.ShiftCut)

	switch q.Act.Kind {
	case Relu:
		tmp = math.Max(0, tmp)
	case Relu6:
		tmp = math.Max(0, tmp)
		if q.FPOut <= 4 && tmp >= relu6Threshold {
			tmp = relu6Threshold
		}
	case HSigmoid:
		x := RoundClamp(q.Mode, q.Range, tmp)
		tmp = q.Act.hsigmoid(x)
	case HSwish:
		x := RoundClamp(q.Mode, q.Range, tmp)
		hs := RoundClamp(q.Mode, q.Range, q.Act.hsigmoid(x))
		tmp = math.Ldexp(x*hs, -q.Act.ShiftHSwish)
	}
	return tmp
}
