package metrics

import (
	"sort"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// DefaultSweepRadii are the kernel radii compared when none are given.
var DefaultSweepRadii = []int{10, 25, 50, 75, 100, 150, 200}

// SweepPoint is the SNR of the batch accumulated with one kernel.
type SweepPoint struct {
	Kind   nrea.KernelKind `json:"-"`
	Radius int             `json:"radius"`
	nrea.SNRResult
}

// SweepOptions controls KernelSweep.
type SweepOptions struct {
	// Workers is passed to nrea.Accumulate.
	Workers int

	// Each, when set, receives every accumulated image before its SNR is
	// measured. An error aborts the sweep.
	Each func(k nrea.Kernel, acc *nrea.Frame) error
}

// KernelSweep accumulates frames once per kernel and measures the SNR of
// each result. Rows are ordered by the position of the kind in kinds, then by
// ascending radius; duplicate radii are measured once.
//
// Parameters:
//   - kinds: filters to compare; empty means circular average and Gaussian
//   - radii: kernel radii; empty means DefaultSweepRadii
//
// Every kernel is validated before any frame is processed, so a bad radius
// fails fast with a ConfigurationError.
func KernelSweep(frames []*nrea.Frame, kinds []nrea.KernelKind, radii []int, opts nrea.SNROptions, sopts SweepOptions) ([]SweepPoint, error) {
	if err := nrea.CheckBatch("kernel sweep", frames); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = []nrea.KernelKind{nrea.CircularAverage, nrea.GaussianBlur}
	}
	radii = sortedUnique(radii)

	kernels := make([]nrea.Kernel, 0, len(kinds)*len(radii))
	for _, kind := range kinds {
		for _, r := range radii {
			k := nrea.Kernel{Kind: kind, Radius: r}
			if err := k.Validate(); err != nil {
				return nil, err
			}
			kernels = append(kernels, k)
		}
	}

	points := make([]SweepPoint, 0, len(kernels))
	for _, k := range kernels {
		acc, err := nrea.Accumulate(frames, k, nrea.AccumulateOptions{Workers: sopts.Workers})
		if err != nil {
			return nil, err
		}
		if sopts.Each != nil {
			if err := sopts.Each(k, acc); err != nil {
				return nil, err
			}
		}
		res, err := nrea.EstimateSNR(acc, opts)
		if err != nil {
			return nil, err
		}
		points = append(points, SweepPoint{Kind: k.Kind, Radius: k.Radius, SNRResult: res})
	}
	return points, nil
}

func sortedUnique(radii []int) []int {
	if len(radii) == 0 {
		radii = DefaultSweepRadii
	}
	out := append([]int(nil), radii...)
	sort.Ints(out)
	n := 0
	for i, r := range out {
		if i == 0 || r != out[n-1] {
			out[n] = r
			n++
		}
	}
	return out[:n]
}
