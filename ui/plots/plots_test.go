// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, math.NaN(), math.Inf(-1)})
	require.Equal(t, 4, s.Count)
	require.Equal(t, 1, s.NumNaNs)
	require.Equal(t, 1, s.NumInfs)
	require.Equal(t, 1.0, s.Min)
	require.Equal(t, 4.0, s.Max)
	require.InDelta(t, 2.5, s.Mean, 1e-12)
	require.InDelta(t, math.Sqrt(1.25), s.StdDev, 1e-12)

	empty := Summarize(nil)
	require.Zero(t, empty.Count)
	require.True(t, math.IsNaN(empty.Mean))
}

func TestSaveHistogram(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "hist.png")
	values := make([]float64, 100)
	for ii := range values {
		values[ii] = float64(ii%10) / 10
	}
	require.NoError(t, SaveHistogram(fileName, "test", values, 10))
	info, err := os.Stat(fileName)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	require.Error(t, SaveHistogram(fileName, "empty", nil, 10))
}
