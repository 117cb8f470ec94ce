// Package stacking combines a batch of equally shaped frames pixel by pixel.
//
// It is the classic alternative to NREA accumulation: every output pixel is a
// statistic (mean, median or sigma-clipped mean) of the same pixel across all
// frames. Inputs are never modified.
package stacking

import (
	"fmt"
	"math"
	"strings"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/montanaflynn/stats"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// Method selects the per-pixel statistic.
type Method int

const (
	MethodMean Method = iota
	MethodMedian
	MethodSigmaClip
)

// DefaultSigma is the clipping threshold used when none is given.
const DefaultSigma = 2.0

func (m Method) String() string {
	switch m {
	case MethodMean:
		return "mean"
	case MethodMedian:
		return "median"
	case MethodSigmaClip:
		return "sigma"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod accepts "mean", "median" or "sigma".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mean", "average", "arithmetic":
		return MethodMean, nil
	case "median":
		return MethodMedian, nil
	case "sigma", "sigma_clip", "sigma-clip":
		return MethodSigmaClip, nil
	default:
		return 0, fmt.Errorf("unknown stacking method %q (want mean, median or sigma)", s)
	}
}

// Stack dispatches to Mean, Median or SigmaClippedMean. sigma is only used by
// MethodSigmaClip; values <= 0 select DefaultSigma.
func Stack(method Method, frames []*nrea.Frame, sigma float64) (*nrea.Frame, error) {
	switch method {
	case MethodMean:
		return Mean(frames)
	case MethodMedian:
		return Median(frames)
	case MethodSigmaClip:
		if sigma <= 0 {
			sigma = DefaultSigma
		}
		return SigmaClippedMean(frames, sigma)
	default:
		return nil, fmt.Errorf("unknown stacking method %d", int(method))
	}
}

// Mean returns the per-pixel arithmetic mean.
func Mean(frames []*nrea.Frame) (*nrea.Frame, error) {
	sum, err := nrea.Sum(frames)
	if err != nil {
		return nil, err
	}
	inv := 1 / float64(len(frames))
	for i := range sum.Pix {
		sum.Pix[i] *= inv
	}
	return sum, nil
}

// Median returns the per-pixel median. For an even number of frames it is
// the mean of the two middle samples.
func Median(frames []*nrea.Frame) (*nrea.Frame, error) {
	return perPixel("median stack", frames, func(samples stats.Float64Data) float64 {
		m, _ := stats.Median(samples)
		return m
	})
}

// SigmaClippedMean averages, per pixel, the samples within n population
// standard deviations of the mean. When every sample would be rejected the
// plain mean is used.
func SigmaClippedMean(frames []*nrea.Frame, n float64) (*nrea.Frame, error) {
	if !(n > 0) || math.IsInf(n, 0) {
		return nil, &nrea.ConfigurationError{Op: "sigma stack", Reason: fmt.Sprintf("sigma %v must be positive", n)}
	}
	return perPixel("sigma stack", frames, func(samples stats.Float64Data) float64 {
		return clippedMean(samples, n)
	})
}

func clippedMean(samples stats.Float64Data, n float64) float64 {
	mean, _ := stats.Mean(samples)
	std, _ := stats.StandardDeviationPopulation(samples)

	kept := make(stats.Float64Data, 0, len(samples))
	for _, v := range samples {
		if math.Abs(v-mean) <= n*std {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return mean
	}
	m, _ := stats.Mean(kept)
	return m
}

// perPixel gathers the samples of each pixel across frames and reduces them
// with fn. Rows are processed in parallel.
func perPixel(op string, frames []*nrea.Frame, fn func(stats.Float64Data) float64) (*nrea.Frame, error) {
	if err := nrea.CheckBatch(op, frames); err != nil {
		return nil, err
	}
	w, h := frames[0].Width, frames[0].Height
	out, err := nrea.NewFrame(w, h)
	if err != nil {
		return nil, err
	}

	parallel.Line(h, func(start, end int) {
		samples := make(stats.Float64Data, len(frames))
		for i := start * w; i < end*w; i++ {
			for k, f := range frames {
				samples[k] = f.Pix[i]
			}
			out.Pix[i] = fn(samples)
		}
	})
	return out, nil
}
