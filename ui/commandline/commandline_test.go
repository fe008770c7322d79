// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParam("x", 11.0)
	ctx.SetParam("y", 7)
	ctx.SetParam("z", false)
	ctx.SetParam("s", "foo")
	ctx.SetParam("list_int", []int{})
	ctx.SetParam("list_float", []float64{})
	ctx.SetParam("list_str", []string{})
	return ctx
}

func TestParseContextSettings(t *testing.T) {
	ctx := createTestContext()

	paramsSet, err := ParseContextSettings(ctx, "x=13;/a/z=true;/a/b/y=3;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "/a/z", "/a/b/y", "s", "list_int", "list_float", "list_str"}, paramsSet)
	x, found := ctx.GetParam("x")
	assert.True(t, found)
	assert.Equal(t, 13.0, x.(float64))

	y, found := ctx.GetParam("y")
	assert.True(t, found)
	assert.Equal(t, 7, y)
	y, _ = ctx.In("a").GetParam("y")
	assert.Equal(t, 7, y)
	y, _ = ctx.In("a").In("b").GetParam("y")
	assert.Equal(t, 3, y)

	z, found := ctx.GetParam("z")
	assert.True(t, found)
	assert.False(t, z.(bool))
	z, _ = ctx.In("a").GetParam("z")
	assert.True(t, z.(bool))

	s, found := ctx.GetParam("s")
	assert.True(t, found)
	assert.Equal(t, "bar", s.(string))

	assert.Equal(t, []int{1, 3, 7}, context.GetParamOr(ctx, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, context.GetParamOr(ctx, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, context.GetParamOr(ctx, "list_str", []string{}))

	// Empty lists.
	_, err = ParseContextSettings(ctx, "list_int=")
	require.NoError(t, err)
	assert.Empty(t, context.GetParamOr(ctx, "list_int", []int{1}))

	// Parameter "q" is unknown.
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Parameter "q" is still unknown in root.
	ctx.In("c").SetParam("q", 13)
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseContextSettings(ctx, "y=3.14")
	require.Error(t, err)

	// Cannot parse setting with scope not absolute.
	_, err = ParseContextSettings(ctx, "a/abc=3.14")
	require.Error(t, err)

	// Missing "=".
	_, err = ParseContextSettings(ctx, "x")
	require.Error(t, err)
}

func TestParseContextSettingsFromFile(t *testing.T) {
	ctx := createTestContext()
	fileName := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(fileName, []byte("# Comment line.\ny=1_000\n\n/a/s=baz;x=0.5\n"), 0o644))

	paramsSet, err := ParseContextSettings(ctx, "file:"+fileName+";z=true")
	require.NoError(t, err)
	require.Equal(t, []string{"y", "/a/s", "x", "z"}, paramsSet)
	assert.Equal(t, 1000, context.GetParamOr(ctx, "y", 0))
	assert.Equal(t, "baz", context.GetParamOr(ctx.In("a"), "s", ""))
	assert.Equal(t, "foo", context.GetParamOr(ctx, "s", ""))

	modified := SprintModifiedContextSettings(ctx, append(paramsSet, "y"))
	assert.Equal(t, "\t\"/a/s\": (string) baz\n"+
		"\t\"x\": (float64) 0.5\n"+
		"\t\"y\": (int) 1000\n"+
		"\t\"z\": (bool) true", modified)

	_, err = ParseContextSettings(ctx, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSprintContextSettings(t *testing.T) {
	ctx := context.New()
	ctx.SetParam("ensemble_size", 5)
	ctx.In("critic").SetParam("activation", "tanh")
	assert.Equal(t, "\t\"/ensemble_size\": (int) 5\n"+
		"\t\"/critic/activation\": (string) tanh", SprintContextSettings(ctx))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.00ms", FormatDuration(2*time.Millisecond))
	assert.Equal(t, "12.25µs", FormatDuration(12250*time.Nanosecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestVariablesTable(t *testing.T) {
	ctx := context.New()
	_ = must.M1(ctx.In("dense").VariableWithValue("weights", tensors.FromValue([][]float32{{1, 2}, {3, 4}})))
	_ = must.M1(ctx.In("dense").VariableWithValue("biases", tensors.FromValue([]float32{0, 0}))).SetTrainable(false)
	table := SprintVariables(ctx)
	assert.Contains(t, table, "/dense/weights")
	assert.Contains(t, table, "(Float32)[2 2]")
	assert.Contains(t, table, "16 B")
	assert.Contains(t, table, "false")
	assert.Contains(t, table, "6")
}

func TestMedianDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), MedianDuration(nil))
	assert.Equal(t, 3*time.Second, MedianDuration([]time.Duration{5 * time.Second, time.Second, 3 * time.Second}))
	assert.Equal(t, 2*time.Second, MedianDuration([]time.Duration{4 * time.Second, time.Second, 3 * time.Second, time.Second}))
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pBar := NewProgressBar(&buf, 3, func() (name, value string) { return "Ensemble size", "4" })
	for ii := range 3 {
		pBar.Step(time.Duration(ii+1) * time.Millisecond)
	}
	pBar.Done()
	require.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, pBar.Durations())
	output := buf.String()
	assert.Contains(t, output, "Median step duration")
	assert.Contains(t, output, "Ensemble size")
	assert.Contains(t, output, "3 of 3")

	// The last redraw reports the median of all steps.
	buf.Reset()
	pBar = NewProgressBar(&buf, 4)
	for _, ms := range []time.Duration{1, 2, 3, 10} {
		pBar.Step(ms * time.Millisecond)
	}
	pBar.Done()
	assert.Contains(t, buf.String(), "2.50ms")
}
