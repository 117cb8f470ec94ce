package nrea

import (
	"fmt"
	"math"
	"strings"

	"github.com/anthonynsimon/bild/parallel"
	"gonum.org/v1/gonum/floats"
)

// KernelKind selects the low-pass filter used to estimate the background.
type KernelKind int

const (
	// CircularAverage is a uniform disk-shaped averaging window.
	CircularAverage KernelKind = iota
	// GaussianBlur is a Gaussian window with sigma = radius/3.
	GaussianBlur
)

// String returns the short code used in file names and reports ("CA" or "GB").
func (k KernelKind) String() string {
	switch k {
	case CircularAverage:
		return "CA"
	case GaussianBlur:
		return "GB"
	default:
		return fmt.Sprintf("KernelKind(%d)", int(k))
	}
}

// ParseKernelKind accepts "CA", "circular", "circular_average", "GB",
// "gaussian" and "gaussian_blur" in any letter case.
func ParseKernelKind(s string) (KernelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ca", "circular", "circular_average":
		return CircularAverage, nil
	case "gb", "gaussian", "gaussian_blur":
		return GaussianBlur, nil
	default:
		return 0, configErr("parse kernel", ErrInvalidKernel, "unknown kernel %q", s)
	}
}

// MaxKernelRadius bounds Kernel.Radius. Filter buffers grow with the radius.
const MaxKernelRadius = 1024

// Kernel is the immutable low-pass filter configuration. The filter window is
// a square of side 2*Radius+1.
type Kernel struct {
	Kind   KernelKind
	Radius int
}

func (k Kernel) String() string {
	return fmt.Sprintf("%s(%d)", k.Kind, k.Radius)
}

// Validate rejects unknown kinds and radii outside [1, MaxKernelRadius].
func (k Kernel) Validate() error {
	if k.Kind != CircularAverage && k.Kind != GaussianBlur {
		return configErr("kernel", ErrInvalidKernel, "unknown kernel kind %d", int(k.Kind))
	}
	if k.Radius < 1 {
		return configErr("kernel", ErrInvalidKernel, "radius %d must be at least 1", k.Radius)
	}
	if k.Radius > MaxKernelRadius {
		return configErr("kernel", ErrInvalidKernel, "radius %d exceeds the limit of %d", k.Radius, MaxKernelRadius)
	}
	return nil
}

// ApplyLowpass returns the frame smoothed with kernel k. The output has the
// same shape as the input and keeps full float precision.
func ApplyLowpass(frame *Frame, k Kernel) (*Frame, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := frame.validate("lowpass"); err != nil {
		return nil, err
	}

	switch k.Kind {
	case GaussianBlur:
		return gaussianBlur(frame, k.Radius), nil
	default:
		return circularAverage(frame, k.Radius), nil
	}
}

// reflect101 maps an out-of-range index into [0, n) by mirroring around the
// edge pixels without repeating them.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2*n - 2
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// diskSpans returns, for each kernel row dy in [-r, r], the half-width of the
// disk dx*dx + dy*dy <= r*r.
func diskSpans(r int) []int {
	spans := make([]int, 2*r+1)
	for dy := -r; dy <= r; dy++ {
		rem := r*r - dy*dy
		s := int(math.Sqrt(float64(rem)))
		for s*s > rem {
			s--
		}
		for (s+1)*(s+1) <= rem {
			s++
		}
		spans[dy+r] = s
	}
	return spans
}

// circularAverage correlates src with the normalized disk mask of radius r.
//
// Every kernel row is a contiguous horizontal span, so the window sum is
// computed from per-row prefix sums in O(r) per pixel.
func circularAverage(src *Frame, r int) *Frame {
	w, h := src.Width, src.Height
	spans := diskSpans(r)
	count := 0
	for _, s := range spans {
		count += 2*s + 1
	}
	norm := 1.0 / float64(count)

	pw := w + 2*r
	stride := pw + 1
	prefix := make([]float64, h*stride)
	parallel.Line(h, func(start, end int) {
		row := make([]float64, pw)
		for y := start; y < end; y++ {
			base := y * w
			for i := range row {
				row[i] = src.Pix[base+reflect101(i-r, w)]
			}
			p := prefix[y*stride : (y+1)*stride]
			floats.CumSum(p[1:], row)
		}
	})

	out := &Frame{Width: w, Height: h, Pix: make([]float64, w*h)}
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out.Pix[y*w : (y+1)*w]
			for dy := -r; dy <= r; dy++ {
				sy := reflect101(y+dy, h)
				p := prefix[sy*stride : (sy+1)*stride]
				s := spans[dy+r]
				for x := range dst {
					dst[x] += p[x+r+s+1] - p[x+r-s]
				}
			}
			floats.Scale(norm, dst)
		}
	})
	return out
}

// gaussianWeights returns the normalized 1-D Gaussian of length 2r+1 with
// sigma r/3.
func gaussianWeights(r int) []float64 {
	sigma := float64(r) / 3
	weights := make([]float64, 2*r+1)
	for i := -r; i <= r; i++ {
		weights[i+r] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return weights
}

// gaussianBlur applies the separable Gaussian: a horizontal pass followed by a
// vertical pass, both with reflect-101 borders.
func gaussianBlur(src *Frame, r int) *Frame {
	w, h := src.Width, src.Height
	weights := gaussianWeights(r)

	tmp := make([]float64, w*h)
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			row := src.Pix[y*w : (y+1)*w]
			dst := tmp[y*w : (y+1)*w]
			for x := range dst {
				var sum float64
				for k, wk := range weights {
					sum += wk * row[reflect101(x+k-r, w)]
				}
				dst[x] = sum
			}
		}
	})

	out := &Frame{Width: w, Height: h, Pix: make([]float64, w*h)}
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out.Pix[y*w : (y+1)*w]
			for k, wk := range weights {
				sy := reflect101(y+k-r, h)
				floats.AddScaled(dst, wk, tmp[sy*w:(sy+1)*w])
			}
		}
	})
	return out
}
