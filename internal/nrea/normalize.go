package nrea

import "math"

// Target maxima for NormalizeRange.
const (
	MaxUint8  = 255.0
	MaxUint16 = 65535.0
)

// NormalizeRange linearly maps the frame's [min, max] onto [0, targetMax] and
// truncates the result to integers, ready to be stored at the target bit depth.
//
// A constant frame has no range to map: a zero frame is returned together with
// an *InvalidInputError wrapping ErrDegenerateRange. The frame is usable, the
// error lets the caller surface a warning.
func NormalizeRange(frame *Frame, targetMax float64) (*Frame, error) {
	const op = "normalize range"
	if err := frame.validate(op); err != nil {
		return nil, err
	}
	if !(targetMax > 0) || math.IsInf(targetMax, 0) {
		return nil, configErr(op, ErrDegenerateRange, "target maximum %v must be positive and finite", targetMax)
	}

	out := &Frame{Width: frame.Width, Height: frame.Height, Pix: make([]float64, len(frame.Pix))}
	min, max := frame.MinMax()
	if max == min {
		return out, inputErr(op, ErrDegenerateRange, "constant frame (value %v)", min)
	}

	span := max - min
	for i, v := range frame.Pix {
		out.Pix[i] = math.Trunc((v - min) / span * targetMax)
	}
	return out, nil
}
