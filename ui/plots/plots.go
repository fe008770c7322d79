// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots define utilities to inspect the values of variables: summary statistics and
// histograms saved as image files.
package plots

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// Stats summarizes a collection of values.
type Stats struct {
	Count            int
	Min, Max         float64
	Mean, StdDev     float64
	NumNaNs, NumInfs int
}

// Summarize values. NaN and infinite values are counted, but otherwise ignored.
func Summarize(values []float64) (s Stats) {
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	var sum, sumSquares float64
	for _, v := range values {
		switch {
		case math.IsNaN(v):
			s.NumNaNs++
			continue
		case math.IsInf(v, 0):
			s.NumInfs++
			continue
		}
		s.Count++
		sum += v
		sumSquares += v * v
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	if s.Count == 0 {
		s.Min, s.Max = math.NaN(), math.NaN()
		s.Mean, s.StdDev = math.NaN(), math.NaN()
		return
	}
	s.Mean = sum / float64(s.Count)
	s.StdDev = math.Sqrt(max(sumSquares/float64(s.Count)-s.Mean*s.Mean, 0))
	return
}

// DefaultHistogramBins is the number of bins used by SaveHistogram when bins <= 0.
const DefaultHistogramBins = 50

// SaveHistogram plots a histogram of values and saves it to fileName. The format is given by the file
// extension: e.g. ".png", ".svg" or ".pdf".
func SaveHistogram(fileName, title string, values []float64, bins int) error {
	if len(values) == 0 {
		return errors.Errorf("plots.SaveHistogram(%q): no values to plot", fileName)
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"
	hist, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return errors.Wrapf(err, "plots.SaveHistogram(%q): failed to create histogram", fileName)
	}
	p.Add(hist)
	if err = p.Save(8*vg.Inch, 5*vg.Inch, fileName); err != nil {
		return errors.Wrapf(err, "plots.SaveHistogram(%q): failed to save plot", fileName)
	}
	klog.V(1).Infof("saved histogram of %d values to %q", len(values), fileName)
	return nil
}
