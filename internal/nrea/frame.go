package nrea

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Frame is a single-channel image in the float64 working type.
//
// Pixels are stored row-major: the value at (x, y) is Pix[y*Width+x].
type Frame struct {
	Width  int
	Height int
	Pix    []float64
}

// NewFrame allocates a zero-filled frame.
func NewFrame(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, configErr("new frame", ErrInvalidFrame, "dimensions %dx%d must be positive", width, height)
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}, nil
}

// FrameFromPix builds a frame from a copy of pix.
func FrameFromPix(width, height int, pix []float64) (*Frame, error) {
	f, err := NewFrame(width, height)
	if err != nil {
		return nil, err
	}
	if len(pix) != width*height {
		return nil, configErr("new frame", ErrInvalidFrame,
			"got %d values for %dx%d frame", len(pix), width, height)
	}
	copy(f.Pix, pix)
	return f, nil
}

// At returns the value at (x, y). It panics if the coordinates are outside the frame.
func (f *Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set stores v at (x, y).
func (f *Frame) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	pix := make([]float64, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Mean returns the arithmetic mean of all pixels.
func (f *Frame) Mean() float64 {
	return stat.Mean(f.Pix, nil)
}

// MinMax returns the smallest and largest pixel values.
func (f *Frame) MinMax() (min, max float64) {
	return floats.Min(f.Pix), floats.Max(f.Pix)
}

// SameShape reports whether f and g have identical dimensions.
func (f *Frame) SameShape(g *Frame) bool {
	return f.Width == g.Width && f.Height == g.Height
}

// Matrix returns a Height x Width matrix view sharing the frame's storage.
// Writes through the matrix modify the frame.
func (f *Frame) Matrix() *mat.Dense {
	return mat.NewDense(f.Height, f.Width, f.Pix)
}

func (f *Frame) validate(op string) error {
	if f == nil {
		return configErr(op, ErrInvalidFrame, "frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height {
		return configErr(op, ErrInvalidFrame, "frame %dx%d holds %d values", f.Width, f.Height, len(f.Pix))
	}
	return nil
}

// CheckBatch verifies that frames is non-empty, that every frame is well formed
// and that all frames share the shape of the first one.
func CheckBatch(op string, frames []*Frame) error {
	if len(frames) == 0 {
		return inputErr(op, ErrNoFrames, "batch is empty")
	}
	for i, f := range frames {
		if err := f.validate(op); err != nil {
			return err
		}
		if !f.SameShape(frames[0]) {
			return configErr(op, ErrShapeMismatch, "frame %d is %dx%d, expected %dx%d",
				i, f.Width, f.Height, frames[0].Width, frames[0].Height)
		}
	}
	return nil
}
