package nrea

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patternFrame returns a deterministic, non-symmetric test frame.
func patternFrame(t *testing.T, width, height int) *Frame {
	t.Helper()
	f, err := NewFrame(width, height)
	require.NoError(t, err)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Set(x, y, float64((x*7+y*13)%17)+0.25*float64(x)-0.5*float64(y))
		}
	}
	return f
}

// naiveLowpass correlates src with an explicit 2-D weight window using
// reflect-101 borders.
func naiveLowpass(src *Frame, weights [][]float64) *Frame {
	r := len(weights) / 2
	out := &Frame{Width: src.Width, Height: src.Height, Pix: make([]float64, len(src.Pix))}
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			var sum float64
			for ky := -r; ky <= r; ky++ {
				for kx := -r; kx <= r; kx++ {
					sy := reflect101(y+ky, src.Height)
					sx := reflect101(x+kx, src.Width)
					sum += weights[ky+r][kx+r] * src.At(sx, sy)
				}
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

func diskWeights(r int) [][]float64 {
	w := make([][]float64, 2*r+1)
	count := 0.0
	for dy := -r; dy <= r; dy++ {
		w[dy+r] = make([]float64, 2*r+1)
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				w[dy+r][dx+r] = 1
				count++
			}
		}
	}
	for _, row := range w {
		for i := range row {
			row[i] /= count
		}
	}
	return w
}

func gaussianWeights2D(r int) [][]float64 {
	g := gaussianWeights(r)
	w := make([][]float64, len(g))
	for i := range g {
		w[i] = make([]float64, len(g))
		for j := range g {
			w[i][j] = g[i] * g[j]
		}
	}
	return w
}

func TestReflect101(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 5, 0},
		{4, 5, 4},
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{-9, 5, 1},
		{13, 5, 3},
		{-1, 2, 1},
		{2, 2, 0},
		{3, 2, 1},
		{-7, 1, 0},
		{7, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reflect101(tt.i, tt.n), "reflect101(%d, %d)", tt.i, tt.n)
	}
}

func TestDiskSpans(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 1, 0}, diskSpans(2))
	assert.Equal(t, []int{0, 2, 2, 3, 2, 2, 0}, diskSpans(3))
}

func TestKernelValidate(t *testing.T) {
	tests := []struct {
		name    string
		kernel  Kernel
		wantErr bool
	}{
		{"circular r1", Kernel{Kind: CircularAverage, Radius: 1}, false},
		{"gaussian r50", Kernel{Kind: GaussianBlur, Radius: 50}, false},
		{"zero radius", Kernel{Kind: CircularAverage, Radius: 0}, true},
		{"negative radius", Kernel{Kind: GaussianBlur, Radius: -3}, true},
		{"unknown kind", Kernel{Kind: KernelKind(7), Radius: 3}, true},
		{"radius at limit", Kernel{Kind: CircularAverage, Radius: MaxKernelRadius}, false},
		{"radius above limit", Kernel{Kind: CircularAverage, Radius: MaxKernelRadius + 1}, true},
		{"huge radius", Kernel{Kind: GaussianBlur, Radius: 1 << 30}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kernel.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.ErrorIs(t, err, ErrInvalidKernel)
		})
	}
}

func TestParseKernelKind(t *testing.T) {
	tests := []struct {
		in   string
		want KernelKind
	}{
		{"CA", CircularAverage},
		{"circular", CircularAverage},
		{" gb ", GaussianBlur},
		{"Gaussian_Blur", GaussianBlur},
	}
	for _, tt := range tests {
		got, err := ParseKernelKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseKernelKind("median")
	assert.ErrorIs(t, err, ErrInvalidKernel)
}

func TestApplyLowpass_MatchesNaiveCorrelation(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		kernel        Kernel
	}{
		{"circular interior", 13, 9, Kernel{Kind: CircularAverage, Radius: 3}},
		{"circular radius exceeds frame", 5, 4, Kernel{Kind: CircularAverage, Radius: 6}},
		{"circular single row", 11, 1, Kernel{Kind: CircularAverage, Radius: 2}},
		{"gaussian interior", 13, 9, Kernel{Kind: GaussianBlur, Radius: 3}},
		{"gaussian radius exceeds frame", 4, 5, Kernel{Kind: GaussianBlur, Radius: 7}},
		{"gaussian single column", 1, 8, Kernel{Kind: GaussianBlur, Radius: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := patternFrame(t, tt.width, tt.height)

			var weights [][]float64
			if tt.kernel.Kind == GaussianBlur {
				weights = gaussianWeights2D(tt.kernel.Radius)
			} else {
				weights = diskWeights(tt.kernel.Radius)
			}
			want := naiveLowpass(src, weights)

			got, err := ApplyLowpass(src, tt.kernel)
			require.NoError(t, err)
			require.Equal(t, src.Width, got.Width)
			require.Equal(t, src.Height, got.Height)
			assert.InDeltaSlice(t, want.Pix, got.Pix, 1e-9)
		})
	}
}

func TestApplyLowpass_Impulse(t *testing.T) {
	src, err := NewFrame(21, 21)
	require.NoError(t, err)
	src.Set(10, 10, 1)

	ca, err := ApplyLowpass(src, Kernel{Kind: CircularAverage, Radius: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/13, ca.At(10, 10), 1e-12)
	assert.InDelta(t, 1.0/13, ca.At(12, 10), 1e-12)
	assert.InDelta(t, 0, ca.At(12, 12), 1e-12, "corner of the window lies outside the disk")
	assert.InDelta(t, 1.0, sum(ca.Pix), 1e-12)

	gb, err := ApplyLowpass(src, Kernel{Kind: GaussianBlur, Radius: 3})
	require.NoError(t, err)
	g := gaussianWeights(3)
	assert.InDelta(t, g[3]*g[3], gb.At(10, 10), 1e-12)
	assert.InDelta(t, gb.At(9, 10), gb.At(11, 10), 1e-12)
	assert.InDelta(t, 1.0, sum(gb.Pix), 1e-12)
}

func TestGaussianWeights(t *testing.T) {
	g := gaussianWeights(6)
	require.Len(t, g, 13)
	assert.InDelta(t, 1.0, sum(g), 1e-12)

	// sigma = 2: neighbour ratio exp(-1/8)
	assert.InDelta(t, math.Exp(-1.0/8), g[7]/g[6], 1e-12)
}

func TestApplyLowpass_DoesNotMutateInput(t *testing.T) {
	src := patternFrame(t, 16, 12)
	before := src.Clone()

	for _, k := range []Kernel{{CircularAverage, 3}, {GaussianBlur, 3}} {
		_, err := ApplyLowpass(src, k)
		require.NoError(t, err)
	}
	assert.Equal(t, before.Pix, src.Pix)
}

func TestApplyLowpass_Errors(t *testing.T) {
	src := patternFrame(t, 8, 8)

	_, err := ApplyLowpass(src, Kernel{Kind: CircularAverage, Radius: 0})
	assert.True(t, errors.Is(err, ErrInvalidKernel))

	_, err = ApplyLowpass(&Frame{Width: 3, Height: 3, Pix: make([]float64, 4)}, Kernel{Kind: GaussianBlur, Radius: 1})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = ApplyLowpass(nil, Kernel{Kind: GaussianBlur, Radius: 1})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
