package nrea

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Compensate removes the estimated background from one frame: the frame is
// low-pass filtered and the scalar mean of the smoothed field is subtracted
// from it. The result has zero mean and may contain negative values.
func Compensate(frame *Frame, k Kernel) (*Frame, error) {
	smoothed, err := ApplyLowpass(frame, k)
	if err != nil {
		return nil, err
	}
	floats.AddConst(-smoothed.Mean(), smoothed.Pix)
	return smoothed, nil
}

// CompensateBatch compensates every frame independently using up to workers
// goroutines (0 means one per CPU). The returned slice is index-aligned with
// frames.
func CompensateBatch(frames []*Frame, k Kernel, workers int) ([]*Frame, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := CheckBatch("compensate", frames); err != nil {
		return nil, err
	}

	out := make([]*Frame, len(frames))
	errs := make([]error, len(frames))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workerCount(workers, len(frames)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i], errs[i] = Compensate(frames[i], k)
			}
		}()
	}
	for i := range frames {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AccumulateOptions controls Accumulate.
type AccumulateOptions struct {
	// Prefix limits accumulation to the first Prefix frames. Zero means all.
	Prefix int

	// Workers bounds the number of frames compensated concurrently.
	// Zero means one worker per CPU.
	Workers int
}

// Accumulate compensates each frame, sums the compensated fields and shifts
// the sum once so that its minimum is zero.
//
// The batch is split into contiguous index ranges, one per worker. Each worker
// sums its range in index order and the partial sums are added in range order,
// so for a fixed worker count the result is bit-for-bit reproducible. Only one
// compensated frame per worker is alive at any time.
func Accumulate(frames []*Frame, k Kernel, opts AccumulateOptions) (*Frame, error) {
	const op = "accumulate"
	if len(frames) == 0 {
		return nil, inputErr(op, ErrNoFrames, "no frames to accumulate")
	}
	if opts.Prefix < 0 || opts.Prefix > len(frames) {
		return nil, configErr(op, ErrInvalidPrefix, "prefix %d outside [0, %d]", opts.Prefix, len(frames))
	}
	if opts.Prefix > 0 {
		frames = frames[:opts.Prefix]
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := CheckBatch(op, frames); err != nil {
		return nil, err
	}

	n := len(frames)
	workers := workerCount(opts.Workers, n)
	partials := make([]*Frame, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start, end := w*n/workers, (w+1)*n/workers
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			sum := &Frame{Width: frames[0].Width, Height: frames[0].Height, Pix: make([]float64, len(frames[0].Pix))}
			for i := start; i < end; i++ {
				c, err := Compensate(frames[i], k)
				if err != nil {
					errs[w] = err
					return
				}
				floats.Add(sum.Pix, c.Pix)
			}
			partials[w] = sum
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	total := partials[0]
	for _, p := range partials[1:] {
		floats.Add(total.Pix, p.Pix)
	}
	shiftInPlace(total)
	return total, nil
}

// Sum returns the element-wise sum of a batch of equally shaped frames,
// added in index order.
func Sum(frames []*Frame) (*Frame, error) {
	if err := CheckBatch("sum", frames); err != nil {
		return nil, err
	}
	total := frames[0].Clone()
	for _, f := range frames[1:] {
		floats.Add(total.Pix, f.Pix)
	}
	return total, nil
}

// ShiftNonNegative returns a copy of frame with |min| added to every pixel when
// the minimum is negative. Frames that are already non-negative are copied
// unchanged.
func ShiftNonNegative(frame *Frame) *Frame {
	out := frame.Clone()
	shiftInPlace(out)
	return out
}

func shiftInPlace(f *Frame) {
	if min := floats.Min(f.Pix); min < 0 {
		floats.AddConst(-min, f.Pix)
	}
}

func workerCount(requested, jobs int) int {
	if requested <= 0 {
		requested = runtime.NumCPU()
	}
	if requested > jobs {
		requested = jobs
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}
