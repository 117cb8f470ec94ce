package metrics

import (
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// SSIM constants: a 7x7 uniform window with sample covariance.
const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

// SimilarityResult compares two images of the same scene.
type SimilarityResult struct {
	MSE  float64 `json:"mse"`
	SSIM float64 `json:"ssim"`
	CVA  float64 `json:"cv_a"` // population std / mean of a, 0 where the mean is 0
	CVB  float64 `json:"cv_b"`
	CNR  float64 `json:"cnr"` // (mean a - mean b) / sqrt(var a + var b)
}

// Similarity computes the mean squared error, the structural similarity, the
// coefficient of variation of each image and the contrast-to-noise ratio
// between a and b.
//
// SSIM is the mean of the local index over every fully contained 7x7 window,
// with the data range taken from b. Both images must be at least 7x7.
//
// Errors:
//   - ConfigurationError when the frames are malformed or differ in shape
//   - InvalidInputError wrapping nrea.ErrDegenerateRange when b is constant
func Similarity(a, b *nrea.Frame) (SimilarityResult, error) {
	if err := nrea.CheckBatch("similarity", []*nrea.Frame{a, b}); err != nil {
		return SimilarityResult{}, err
	}
	if a.Width < ssimWindow || a.Height < ssimWindow {
		return SimilarityResult{}, &nrea.InvalidInputError{
			Op: "similarity", Reason: "images must be at least 7x7", Err: nrea.ErrInvalidFrame,
		}
	}
	lo, hi := b.MinMax()
	if hi == lo {
		return SimilarityResult{}, &nrea.InvalidInputError{
			Op: "similarity", Reason: "reference image is constant", Err: nrea.ErrDegenerateRange,
		}
	}

	var res SimilarityResult
	d := floats.Distance(a.Pix, b.Pix, 2)
	res.MSE = d * d / float64(len(a.Pix))

	meanA, varA := stat.PopMeanVariance(a.Pix, nil)
	meanB, varB := stat.PopMeanVariance(b.Pix, nil)
	res.CVA = ratio(math.Sqrt(varA), meanA)
	res.CVB = ratio(math.Sqrt(varB), meanB)
	// b is not constant, so the denominator is positive.
	res.CNR = (meanA - meanB) / math.Sqrt(varA+varB)

	res.SSIM = ssim(a, b, hi-lo)
	return res, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func ssim(a, b *nrea.Frame, dataRange float64) float64 {
	w, h := a.Width, a.Height
	ab := make([]float64, len(a.Pix))
	aa := make([]float64, len(a.Pix))
	bb := make([]float64, len(a.Pix))
	for i := range ab {
		ab[i] = a.Pix[i] * b.Pix[i]
		aa[i] = a.Pix[i] * a.Pix[i]
		bb[i] = b.Pix[i] * b.Pix[i]
	}
	ux := boxMeans(a.Pix, w, h)
	uy := boxMeans(b.Pix, w, h)
	uxx := boxMeans(aa, w, h)
	uyy := boxMeans(bb, w, h)
	uxy := boxMeans(ab, w, h)

	np := float64(ssimWindow * ssimWindow)
	covNorm := np / (np - 1)
	c1 := (ssimK1 * dataRange) * (ssimK1 * dataRange)
	c2 := (ssimK2 * dataRange) * (ssimK2 * dataRange)

	s := make([]float64, len(ux))
	for i := range s {
		vx := covNorm * (uxx[i] - ux[i]*ux[i])
		vy := covNorm * (uyy[i] - uy[i]*uy[i])
		vxy := covNorm * (uxy[i] - ux[i]*uy[i])
		s[i] = ((2*ux[i]*uy[i] + c1) * (2*vxy + c2)) /
			((ux[i]*ux[i] + uy[i]*uy[i] + c1) * (vx + vy + c2))
	}
	return stat.Mean(s, nil)
}

// boxMeans returns the means of every fully contained ssimWindow square of
// pix, as a (w-6) x (h-6) row-major grid.
func boxMeans(pix []float64, w, h int) []float64 {
	ow, oh := w-ssimWindow+1, h-ssimWindow+1

	rows := make([]float64, h*ow)
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			src := pix[y*w : (y+1)*w]
			dst := rows[y*ow : (y+1)*ow]
			for x := range dst {
				dst[x] = floats.Sum(src[x : x+ssimWindow])
			}
		}
	})

	out := make([]float64, ow*oh)
	norm := 1.0 / float64(ssimWindow*ssimWindow)
	parallel.Line(oh, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out[y*ow : (y+1)*ow]
			for k := 0; k < ssimWindow; k++ {
				floats.Add(dst, rows[(y+k)*ow:(y+k+1)*ow])
			}
			floats.Scale(norm, dst)
		}
	})
	return out
}
