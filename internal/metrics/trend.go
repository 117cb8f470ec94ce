package metrics

import (
	"runtime"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// TrendOptions controls Trend.
type TrendOptions struct {
	// Cumulative accumulates the first i frames for point i. Otherwise point i
	// is the single frame i processed on its own.
	Cumulative bool

	// Workers bounds concurrent compensation; 0 means one per CPU.
	Workers int
}

// TrendPoint is the SNR after N frames (cumulative) or of frame N (single).
type TrendPoint struct {
	N int `json:"n"`
	nrea.SNRResult
}

// Trend measures how the SNR evolves across a batch.
//
// In cumulative mode every frame is compensated exactly once and added to a
// running sum in index order, so point i is identical to
// nrea.Accumulate(frames, k, {Prefix: i, Workers: 1}). Frames are compensated
// in chunks of Workers, bounding the number of live compensated frames.
func Trend(frames []*nrea.Frame, k nrea.Kernel, opts nrea.SNROptions, topts TrendOptions) ([]TrendPoint, error) {
	if err := nrea.CheckBatch("trend", frames); err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}

	chunk := topts.Workers
	if chunk <= 0 {
		chunk = runtime.NumCPU()
	}

	var sum *nrea.Frame
	if topts.Cumulative {
		var err error
		if sum, err = nrea.NewFrame(frames[0].Width, frames[0].Height); err != nil {
			return nil, err
		}
	}

	points := make([]TrendPoint, 0, len(frames))
	for start := 0; start < len(frames); start += chunk {
		end := start + chunk
		if end > len(frames) {
			end = len(frames)
		}
		comp, err := nrea.CompensateBatch(frames[start:end], k, chunk)
		if err != nil {
			return nil, err
		}
		for j, c := range comp {
			img := c
			if topts.Cumulative {
				floats.Add(sum.Pix, c.Pix)
				img = sum
			}
			res, err := nrea.EstimateSNR(nrea.ShiftNonNegative(img), opts)
			if err != nil {
				return nil, err
			}
			points = append(points, TrendPoint{N: start + j + 1, SNRResult: res})
		}
	}
	return points, nil
}
