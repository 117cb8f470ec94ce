package metrics

import (
	"encoding/csv"
	"io"
	"strconv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteMetricsCSV writes one row per image:
// image,snr,signal,noise,mean_roi,mean_background.
func WriteMetricsCSV(w io.Writer, rows []ImageMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"image", "snr", "signal", "noise", "mean_roi", "mean_background"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Image,
			formatFloat(r.SNR),
			formatFloat(r.Signal),
			formatFloat(r.Noise),
			formatFloat(r.MeanROI),
			formatFloat(r.MeanBackground),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrendCSV writes one row per trend point: #frames,snr,signal,noise.
func WriteTrendCSV(w io.Writer, points []TrendPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"#frames", "snr", "signal", "noise"}); err != nil {
		return err
	}
	for _, p := range points {
		rec := []string{strconv.Itoa(p.N), formatFloat(p.SNR), formatFloat(p.Signal), formatFloat(p.Noise)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReliabilityCSV writes the mean, std and cv rows of a summary.
func WriteReliabilityCSV(w io.Writer, s ReliabilitySummary) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"stat", "snr", "signal", "noise"},
		statRow("mean", s.Mean),
		statRow("std", s.Std),
		statRow("cv", s.CV),
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func statRow(name string, s Stat) []string {
	return []string{name, formatFloat(s.SNR), formatFloat(s.Signal), formatFloat(s.Noise)}
}

// WriteSweepCSV writes one row per kernel: kernel,radius,snr,signal,noise.
func WriteSweepCSV(w io.Writer, points []SweepPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kernel", "radius", "snr", "signal", "noise"}); err != nil {
		return err
	}
	for _, p := range points {
		rec := []string{p.Kind.String(), strconv.Itoa(p.Radius), formatFloat(p.SNR), formatFloat(p.Signal), formatFloat(p.Noise)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
