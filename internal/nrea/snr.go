package nrea

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ROIShape selects the signal region used by EstimateSNR.
type ROIShape int

const (
	// DiskROI samples the signal inside the disk of the region radius.
	DiskROI ROIShape = iota
	// SquareROI samples the signal inside the axis-aligned square of side
	// radius*sqrt(2) centered on the region, the square of equal area
	// inscribed in the light source.
	SquareROI
)

func (s ROIShape) String() string {
	switch s {
	case DiskROI:
		return "disk"
	case SquareROI:
		return "square"
	default:
		return fmt.Sprintf("ROIShape(%d)", int(s))
	}
}

// ParseROIShape accepts "disk" or "square".
func ParseROIShape(s string) (ROIShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disk", "circle":
		return DiskROI, nil
	case "square":
		return SquareROI, nil
	default:
		return 0, configErr("parse roi shape", ErrInvalidGeometry, "unknown roi shape %q", s)
	}
}

// NoiseMode selects how EstimateSNR measures noise.
type NoiseMode int

const (
	// PooledNoise is sqrt((var_roi + var_bg) / 2) with population variances.
	PooledNoise NoiseMode = iota
	// WholeImageNoise is the population standard deviation of every pixel.
	WholeImageNoise
)

func (m NoiseMode) String() string {
	switch m {
	case PooledNoise:
		return "pooled"
	case WholeImageNoise:
		return "image"
	default:
		return fmt.Sprintf("NoiseMode(%d)", int(m))
	}
}

// ParseNoiseMode accepts "pooled" or "image".
func ParseNoiseMode(s string) (NoiseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pooled", "regions":
		return PooledNoise, nil
	case "image", "whole", "whole_image":
		return WholeImageNoise, nil
	default:
		return 0, configErr("parse noise mode", ErrInvalidGeometry, "unknown noise mode %q", s)
	}
}

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Region is a disk describing the light source: its center and radius in pixels.
type Region struct {
	Center Point `json:"center"`
	Radius int   `json:"radius"`
}

// SNROptions configures EstimateSNR. The zero values of Shape and Noise select
// the disk ROI with pooled noise.
type SNROptions struct {
	Region

	// BackgroundOffset is added to the radius to get the radius of the disk
	// excluded from the background. Nil means Radius.
	BackgroundOffset *int

	Shape ROIShape
	Noise NoiseMode
}

func (o SNROptions) offset() int {
	if o.BackgroundOffset == nil {
		return o.Radius
	}
	return *o.BackgroundOffset
}

func (o SNROptions) validate(op string) error {
	if o.Radius <= 0 {
		return inputErr(op, ErrEmptyMask, "radius %d yields an empty signal mask", o.Radius)
	}
	if o.offset() < 0 {
		return configErr(op, ErrInvalidGeometry, "background offset %d must not be negative", o.offset())
	}
	if o.Shape != DiskROI && o.Shape != SquareROI {
		return configErr(op, ErrInvalidGeometry, "unknown roi shape %d", int(o.Shape))
	}
	if o.Noise != PooledNoise && o.Noise != WholeImageNoise {
		return configErr(op, ErrInvalidGeometry, "unknown noise mode %d", int(o.Noise))
	}
	return nil
}

// SNRResult holds the metric and its components.
type SNRResult struct {
	SNR            float64 `json:"snr"`
	Signal         float64 `json:"signal"`
	Noise          float64 `json:"noise"`
	MeanROI        float64 `json:"mean_roi"`
	MeanBackground float64 `json:"mean_background"`
}

// SignalMask returns the row-major signal mask for a width x height grid.
// Pixels outside the grid are simply not represented.
func SignalMask(width, height int, opts SNROptions) []bool {
	mask := make([]bool, width*height)
	cx, cy := float64(opts.Center.X), float64(opts.Center.Y)

	switch opts.Shape {
	case SquareROI:
		half := float64(opts.Radius) * math.Sqrt2 / 2
		for y := 0; y < height; y++ {
			fy := float64(y)
			if fy < cy-half || fy > cy+half {
				continue
			}
			for x := 0; x < width; x++ {
				fx := float64(x)
				mask[y*width+x] = fx >= cx-half && fx <= cx+half
			}
		}
	default:
		r2 := opts.Radius * opts.Radius
		for y := 0; y < height; y++ {
			dy := y - opts.Center.Y
			for x := 0; x < width; x++ {
				dx := x - opts.Center.X
				mask[y*width+x] = dx*dx+dy*dy <= r2
			}
		}
	}
	return mask
}

// BackgroundMask returns the complement of the disk of radius
// Radius+BackgroundOffset around the region center.
func BackgroundMask(width, height int, opts SNROptions) []bool {
	mask := make([]bool, width*height)
	outer := opts.Radius + opts.offset()
	r2 := outer * outer
	for y := 0; y < height; y++ {
		dy := y - opts.Center.Y
		for x := 0; x < width; x++ {
			dx := x - opts.Center.X
			mask[y*width+x] = dx*dx+dy*dy > r2
		}
	}
	return mask
}

// EstimateSNR computes the signal-to-noise ratio of img for the light source
// described by opts.
//
// signal = mean_roi - mean_background; noise is either the pooled population
// standard deviation of both regions or the population standard deviation of
// the whole image. When noise is exactly zero the SNR is 0 if the signal is
// also zero and +Inf or -Inf otherwise.
func EstimateSNR(img *Frame, opts SNROptions) (SNRResult, error) {
	const op = "estimate snr"
	if err := img.validate(op); err != nil {
		return SNRResult{}, err
	}
	if err := opts.validate(op); err != nil {
		return SNRResult{}, err
	}

	roi := selectPixels(img.Pix, SignalMask(img.Width, img.Height, opts))
	if len(roi) == 0 {
		return SNRResult{}, inputErr(op, ErrEmptyMask,
			"signal region around (%d,%d) r=%d lies outside the %dx%d image",
			opts.Center.X, opts.Center.Y, opts.Radius, img.Width, img.Height)
	}
	bg := selectPixels(img.Pix, BackgroundMask(img.Width, img.Height, opts))
	if len(bg) == 0 {
		return SNRResult{}, inputErr(op, ErrEmptyMask,
			"background outside r=%d covers no pixel of the %dx%d image",
			opts.Radius+opts.offset(), img.Width, img.Height)
	}

	meanROI, varROI := stat.PopMeanVariance(roi, nil)
	meanBG, varBG := stat.PopMeanVariance(bg, nil)

	var noise float64
	switch opts.Noise {
	case WholeImageNoise:
		noise = stat.PopStdDev(img.Pix, nil)
	default:
		noise = math.Sqrt((varROI + varBG) / 2)
	}

	signal := meanROI - meanBG
	return SNRResult{
		SNR:            ratio(signal, noise),
		Signal:         signal,
		Noise:          noise,
		MeanROI:        meanROI,
		MeanBackground: meanBG,
	}, nil
}

func ratio(signal, noise float64) float64 {
	if noise == 0 {
		switch {
		case signal > 0:
			return math.Inf(1)
		case signal < 0:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return signal / noise
}

func selectPixels(pix []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(pix)/4)
	for i, in := range mask {
		if in {
			out = append(out, pix[i])
		}
	}
	return out
}
