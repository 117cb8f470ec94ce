// Package metrics evaluates SNR over batches of images: per-image results,
// a reliability summary across repeated captures, the SNR trend as more
// exposures are accumulated and the SNR across kernel sizes. Similarity
// compares two images of the same scene.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// ImageMetrics is the SNR result of one named image.
type ImageMetrics struct {
	Image string `json:"image"`
	nrea.SNRResult
}

// Evaluate computes the SNR of every named image. Frames are obtained one at
// a time through load, which receives the index into names, so only one frame
// is held in memory at once. Names are labels and need not be unique.
func Evaluate(names []string, load func(i int) (*nrea.Frame, error), opts nrea.SNROptions) ([]ImageMetrics, error) {
	if len(names) == 0 {
		return nil, &nrea.InvalidInputError{Op: "evaluate", Reason: "no images to evaluate", Err: nrea.ErrNoFrames}
	}
	out := make([]ImageMetrics, 0, len(names))
	for i, name := range names {
		frame, err := load(i)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		res, err := nrea.EstimateSNR(frame, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, ImageMetrics{Image: name, SNRResult: res})
	}
	return out, nil
}

// Stat holds one statistic for each of the three SNR components.
type Stat struct {
	SNR    float64 `json:"snr"`
	Signal float64 `json:"signal"`
	Noise  float64 `json:"noise"`
}

// ReliabilitySummary describes the spread of repeated measurements.
type ReliabilitySummary struct {
	Count int  `json:"count"`
	Mean  Stat `json:"mean"`
	Std   Stat `json:"std"` // population standard deviation
	CV    Stat `json:"cv"`  // Std / Mean, 0 where Mean is 0
}

// Reliability summarizes results from repeated captures of the same scene.
func Reliability(results []nrea.SNRResult) (ReliabilitySummary, error) {
	if len(results) == 0 {
		return ReliabilitySummary{}, &nrea.InvalidInputError{Op: "reliability", Reason: "no results", Err: nrea.ErrNoFrames}
	}
	snr := make([]float64, len(results))
	signal := make([]float64, len(results))
	noise := make([]float64, len(results))
	for i, r := range results {
		snr[i], signal[i], noise[i] = r.SNR, r.Signal, r.Noise
	}

	var s ReliabilitySummary
	s.Count = len(results)
	s.Mean.SNR, s.Std.SNR, s.CV.SNR = summarize(snr)
	s.Mean.Signal, s.Std.Signal, s.CV.Signal = summarize(signal)
	s.Mean.Noise, s.Std.Noise, s.CV.Noise = summarize(noise)
	return s, nil
}

func summarize(x []float64) (mean, std, cv float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	std = math.Sqrt(variance)
	if mean != 0 {
		cv = std / mean
	}
	return mean, std, cv
}

// Results strips the image names.
func Results(m []ImageMetrics) []nrea.SNRResult {
	out := make([]nrea.SNRResult, len(m))
	for i := range m {
		out[i] = m[i].SNRResult
	}
	return out
}
