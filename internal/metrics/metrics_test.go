package metrics

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// spotFrame is a 32x32 frame with a disk of the given value and radius 4 at
// (16, 16) on a background ramp.
func spotFrame(t *testing.T, value, ramp float64) *nrea.Frame {
	t.Helper()
	f, err := nrea.NewFrame(32, 32)
	require.NoError(t, err)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := ramp * float64((x*3+y*5)%11)
			if (x-16)*(x-16)+(y-16)*(y-16) <= 16 {
				v += value
			}
			f.Set(x, y, v)
		}
	}
	return f
}

var spotOpts = nrea.SNROptions{Region: nrea.Region{Center: nrea.Point{X: 16, Y: 16}, Radius: 4}}

func TestEvaluate(t *testing.T) {
	frames := []*nrea.Frame{spotFrame(t, 20, 1), spotFrame(t, 40, 1)}
	load := func(i int) (*nrea.Frame, error) {
		if i >= len(frames) {
			return nil, errors.New("missing")
		}
		return frames[i], nil
	}

	got, err := Evaluate([]string{"a.tiff", "b.tiff"}, load, spotOpts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.tiff", got[0].Image)
	assert.Greater(t, got[1].SNR, got[0].SNR)

	want, err := nrea.EstimateSNR(frames[1], spotOpts)
	require.NoError(t, err)
	assert.Equal(t, want, got[1].SNRResult)

	_, err = Evaluate([]string{"a.tiff", "b.tiff", "c.tiff"}, load, spotOpts)
	assert.ErrorContains(t, err, "c.tiff")

	_, err = Evaluate(nil, load, spotOpts)
	assert.ErrorIs(t, err, nrea.ErrNoFrames)
}

func TestEvaluate_DuplicateNames(t *testing.T) {
	frames := []*nrea.Frame{spotFrame(t, 20, 1), spotFrame(t, 80, 1), spotFrame(t, 5, 1)}
	load := func(i int) (*nrea.Frame, error) { return frames[i], nil }

	got, err := Evaluate([]string{"img_1.png", "img_1.png", "img_1.png"}, load, spotOpts)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, f := range frames {
		want, err := nrea.EstimateSNR(f, spotOpts)
		require.NoError(t, err)
		assert.Equal(t, want, got[i].SNRResult, "row %d", i)
	}
}

func TestReliability(t *testing.T) {
	results := []nrea.SNRResult{
		{SNR: 2, Signal: 10, Noise: 5},
		{SNR: 4, Signal: 10, Noise: 0},
	}
	s, err := Reliability(results)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 3, s.Mean.SNR, 1e-12)
	assert.InDelta(t, 1, s.Std.SNR, 1e-12)
	assert.InDelta(t, 1.0/3, s.CV.SNR, 1e-12)

	assert.InDelta(t, 0, s.Std.Signal, 1e-12)
	assert.InDelta(t, 0, s.CV.Signal, 1e-12)

	assert.InDelta(t, 2.5, s.Mean.Noise, 1e-12)
	assert.InDelta(t, 1, s.CV.Noise, 1e-12)

	zero, err := Reliability([]nrea.SNRResult{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, zero.CV.SNR)

	_, err = Reliability(nil)
	assert.ErrorIs(t, err, nrea.ErrNoFrames)
}

func TestTrend_CumulativeMatchesAccumulate(t *testing.T) {
	frames := []*nrea.Frame{
		spotFrame(t, 10, 1),
		spotFrame(t, 12, 2),
		spotFrame(t, 8, 3),
		spotFrame(t, 11, 0.5),
		spotFrame(t, 9, 1.5),
	}
	k := nrea.Kernel{Kind: nrea.CircularAverage, Radius: 3}

	points, err := Trend(frames, k, spotOpts, TrendOptions{Cumulative: true, Workers: 2})
	require.NoError(t, err)
	require.Len(t, points, len(frames))

	for i, p := range points {
		assert.Equal(t, i+1, p.N)
		acc, err := nrea.Accumulate(frames, k, nrea.AccumulateOptions{Prefix: i + 1, Workers: 1})
		require.NoError(t, err)
		want, err := nrea.EstimateSNR(acc, spotOpts)
		require.NoError(t, err)
		assert.Equal(t, want, p.SNRResult, "point %d", i+1)
	}
}

func TestTrend_Single(t *testing.T) {
	frames := []*nrea.Frame{spotFrame(t, 10, 1), spotFrame(t, 30, 1)}
	k := nrea.Kernel{Kind: nrea.GaussianBlur, Radius: 3}

	points, err := Trend(frames, k, spotOpts, TrendOptions{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	for i, f := range frames {
		acc, err := nrea.Accumulate([]*nrea.Frame{f}, k, nrea.AccumulateOptions{Workers: 1})
		require.NoError(t, err)
		want, err := nrea.EstimateSNR(acc, spotOpts)
		require.NoError(t, err)
		assert.Equal(t, want, points[i].SNRResult)
	}
}

func TestTrend_Errors(t *testing.T) {
	k := nrea.Kernel{Kind: nrea.CircularAverage, Radius: 3}

	_, err := Trend(nil, k, spotOpts, TrendOptions{})
	assert.ErrorIs(t, err, nrea.ErrNoFrames)

	_, err = Trend([]*nrea.Frame{spotFrame(t, 1, 1)}, nrea.Kernel{Radius: 0}, spotOpts, TrendOptions{})
	assert.ErrorIs(t, err, nrea.ErrInvalidKernel)

	bad := spotOpts
	bad.Radius = 0
	_, err = Trend([]*nrea.Frame{spotFrame(t, 1, 1)}, k, bad, TrendOptions{})
	assert.ErrorIs(t, err, nrea.ErrEmptyMask)
}

func TestWriteMetricsCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []ImageMetrics{
		{Image: "a.tiff", SNRResult: nrea.SNRResult{SNR: 2.5, Signal: 10, Noise: 4, MeanROI: 12, MeanBackground: 2}},
		{Image: "b, c.tiff", SNRResult: nrea.SNRResult{SNR: math.Inf(1), Signal: 1}},
	}
	require.NoError(t, WriteMetricsCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "image,snr,signal,noise,mean_roi,mean_background", lines[0])
	assert.Equal(t, "a.tiff,2.5,10,4,12,2", lines[1])
	assert.Equal(t, `"b, c.tiff",+Inf,1,0,0,0`, lines[2])
}

func TestWriteTrendCSV(t *testing.T) {
	var buf bytes.Buffer
	points := []TrendPoint{
		{N: 1, SNRResult: nrea.SNRResult{SNR: 3.5, Signal: 7, Noise: 2}},
		{N: 2, SNRResult: nrea.SNRResult{SNR: 4, Signal: 16, Noise: 4}},
	}
	require.NoError(t, WriteTrendCSV(&buf, points))
	assert.Equal(t, "#frames,snr,signal,noise\n1,3.5,7,2\n2,4,16,4\n", buf.String())
}

func TestWriteReliabilityCSV(t *testing.T) {
	var buf bytes.Buffer
	s := ReliabilitySummary{
		Count: 2,
		Mean:  Stat{SNR: 3, Signal: 10, Noise: 2.5},
		Std:   Stat{SNR: 1, Signal: 0, Noise: 2.5},
		CV:    Stat{SNR: 0.5, Signal: 0, Noise: 1},
	}
	require.NoError(t, WriteReliabilityCSV(&buf, s))
	assert.Equal(t, "stat,snr,signal,noise\nmean,3,10,2.5\nstd,1,0,2.5\ncv,0.5,0,1\n", buf.String())
}
