// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/spectralrl/goensemble/ml/layers/ensemble"
	"github.com/spectralrl/goensemble/ml/layers/fnn"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	filePath := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filePath, []byte(contents), 0o644))
	return filePath
}

func TestLoadCSV(t *testing.T) {
	csvPath := writeFile(t, "input.csv", "a,b,c\n1,2,3\n4.5,-1,0\n")
	values, numRows, err := loadCSV(csvPath, 3)
	require.NoError(t, err)
	require.Equal(t, 2, numRows)
	require.Equal(t, []float64{1, 2, 3, 4.5, -1, 0}, values)

	_, _, err = loadCSV(csvPath, 2)
	require.Error(t, err)
	_, _, err = loadCSV(filepath.Join(t.TempDir(), "missing.csv"), 3)
	require.Error(t, err)
	_, _, err = loadCSV(writeFile(t, "bad.csv", "a,b\n1,foo\n"), 2)
	require.Error(t, err)
}

func TestCreateInput(t *testing.T) {
	ctx := createDefaultContext()
	ctx.SetParam(fnn.ParamHiddenDims, []int{8})
	ctx.SetParam(ensemble.ParamEnsembleSize, 3)
	model := must.M1(fnn.NewEnsembleMLP(ctx.In(modelScope), 2, 1).Done())
	first := must.M1(firstEnsembleLayer(model))

	x := must.M1(createInput(ctx, first, "", 4))
	require.Equal(t, []int{4, 2}, x.Shape().Dimensions)
	y := must.M1(model.Forward(x))
	require.Equal(t, []int{3, 4, 1}, y.Shape().Dimensions)
	table := membersTable(y).String()
	assert.Contains(t, table, "#0")
	assert.Contains(t, table, "#2")

	csvPath := writeFile(t, "input.csv", "x0,x1\n1,2\n3,4\n")
	x = must.M1(createInput(ctx, first, csvPath, 0))
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, x.Value())

	_, err := createInput(ctx, first, "", 0)
	require.Error(t, err)

	// Members given separate inputs get the same examples.
	ctx = createDefaultContext()
	ctx.SetParam(ensemble.ParamShareInput, false)
	ctx.SetParam(ensemble.ParamEnsembleSize, 2)
	model = must.M1(fnn.NewEnsembleMLP(ctx.In(modelScope), 2, 1).HiddenDims().Done())
	first = must.M1(firstEnsembleLayer(model))
	x = must.M1(createInput(ctx, first, csvPath, 0))
	require.Equal(t, [][][]float32{{{1, 2}, {3, 4}}, {{1, 2}, {3, 4}}}, x.Value())
	require.Equal(t, []int{2, 2, 1}, must.M1(model.Forward(x)).Shape().Dimensions)
}

func TestReports(t *testing.T) {
	ctx := createDefaultContext()
	model := must.M1(fnn.NewEnsembleMLP(ctx.In(modelScope), 3, 2).Done())
	summary := summaryTable(ctx, model).String()
	assert.Contains(t, summary, "/model")
	assert.Contains(t, summary, "Float32")

	histPath := filepath.Join(t.TempDir(), "weights.png")
	require.NoError(t, saveWeightsHistogram(model, histPath))
	info, err := os.Stat(histPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	y := tensors.FromValue([][][]float32{{{1}, {3}}, {{-1}, {-1}}})
	table := membersTable(y).String()
	assert.Contains(t, table, "#1")
	assert.Contains(t, table, "-1")
}
