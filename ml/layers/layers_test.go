// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers/activations"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() *context.Context {
	ctx := context.New()
	ctx.SetRNGSeed(42)
	return ctx
}

func TestDTypeFromContext(t *testing.T) {
	ctx := newContext()
	require.Equal(t, dtypes.Float32, must.M1(DTypeFromContext(ctx)))
	for name, want := range map[string]dtypes.DType{
		"float64":  dtypes.Float64,
		"Float16":  dtypes.Float16,
		"bfloat16": dtypes.BFloat16,
	} {
		ctx.SetParam(ParamDType, name)
		require.Equal(t, want, must.M1(DTypeFromContext(ctx)), "dtype %q", name)
	}
	ctx.SetParam(ParamDType, "int32")
	_, err := DTypeFromContext(ctx)
	require.ErrorIs(t, err, shapes.ErrInvalidShape)
	ctx.SetParam(ParamDType, "float7")
	_, err = DTypeFromContext(ctx)
	require.ErrorIs(t, err, shapes.ErrInvalidShape)
}

func TestLinear(t *testing.T) {
	ctx := newContext()
	linear := must.M1(NewLinear(ctx.In("dense"), 3, 2, true))
	assert.Equal(t, "Linear(in_features=3, out_features=2, bias=true)", linear.String())
	assert.Equal(t, []int{3, 2}, linear.Weights().Shape().Dimensions)
	assert.Equal(t, []int{2}, linear.Biases().Shape().Dimensions)
	bound := 1 / math.Sqrt(3)
	for _, v := range linear.Variables() {
		for _, value := range tensors.ToFloat64s(v.Value()) {
			require.LessOrEqual(t, math.Abs(value), bound)
		}
	}

	tensors.AssignFlatData(linear.Weights().Value(), []float32{
		1, 0,
		0, 1,
		1, 1,
	})
	tensors.AssignFlatData(linear.Biases().Value(), []float32{10, 20})
	y := must.M1(linear.Forward(tensors.FromValue([][][]float32{{{1, 2, 3}}, {{0, 0, 1}}})))
	require.Equal(t, [][][]float32{{{14, 25}}, {{11, 21}}}, y.Value())
	y = must.M1(linear.Forward(tensors.FromValue([]float32{1, 1, 1})))
	require.Equal(t, []float32{12, 22}, y.Value())

	_, err := linear.Forward(tensors.FromValue([]float32{1, 1}))
	require.ErrorIs(t, err, shapes.ErrShapeMismatch)
	_, err = linear.Forward(tensors.FromValue([]float64{1, 1, 1}))
	require.ErrorIs(t, err, shapes.ErrShapeMismatch)
	_, err = NewLinear(ctx.In("bad"), 0, 2, true)
	require.ErrorIs(t, err, shapes.ErrInvalidShape)

	noBias := must.M1(NewLinear(ctx.In("no_bias"), 3, 2, false))
	require.Nil(t, noBias.Biases())
	require.Len(t, noBias.Variables(), 1)
}

func TestLinearInitWeights(t *testing.T) {
	ctx := newContext()
	ctx.SetParam(ParamDType, "float64")
	linear := must.M1(NewLinear(ctx, 5, 3, true))
	require.NoError(t, InitWeights(ctx, 2, linear, Activation{Type: activations.TypeRelu}))
	require.Equal(t, []float64{0, 0, 0}, tensors.ToFloat64s(linear.Biases().Value()))
	w := tensors.ToFloat64s(linear.Weights().Value())
	for a := range 3 {
		for b := range 3 {
			var dot float64
			for j := range 5 {
				dot += w[j*3+a] * w[j*3+b]
			}
			want := 0.0
			if a == b {
				want = 4
			}
			require.InDelta(t, want, dot, 1e-9)
		}
	}
}

func TestLayerNorm(t *testing.T) {
	ctx := newContext()
	ctx.SetParam(ParamDType, "float64")
	ln := must.M1(NewLayerNorm(ctx, 4))
	assert.Equal(t, "LayerNorm(4, epsilon=1e-05)", ln.String())
	y := must.M1(ln.Forward(tensors.FromValue([][]float64{{1, 2, 3, 4}, {5, 5, 5, 5}})))
	values := tensors.ToFloat64s(y)
	// First row: mean 2.5, variance 1.25.
	scale := 1 / math.Sqrt(1.25+DefaultLayerNormEpsilon)
	require.InDeltaSlice(t, []float64{-1.5 * scale, -0.5 * scale, 0.5 * scale, 1.5 * scale}, values[:4], 1e-12)
	require.Equal(t, []float64{0, 0, 0, 0}, values[4:])

	// Learned gain and offset.
	tensors.AssignFlatData(ln.Variables()[0].Value(), []float64{2, 2, 2, 2})
	tensors.AssignFlatData(ln.Variables()[1].Value(), []float64{1, 1, 1, 1})
	y = must.M1(ln.Forward(tensors.FromValue([]float64{5, 5, 5, 5})))
	require.Equal(t, []float64{1, 1, 1, 1}, y.Value())

	_, err := ln.Forward(tensors.FromValue([]float64{1, 2, 3}))
	require.ErrorIs(t, err, shapes.ErrShapeMismatch)
}

func TestDropout(t *testing.T) {
	ctx := newContext()
	x := tensors.FromFloat64s(dtypes.Float32, make([]float64, 1000), 1000)
	tensors.AssignFloat64s(x, func() []float64 {
		values := make([]float64, 1000)
		for ii := range values {
			values[ii] = 1
		}
		return values
	}())

	dropout := must.M1(NewDropout(ctx, 0.25))
	require.Equal(t, "Dropout(p=0.25)", dropout.String())
	require.Same(t, x, must.M1(dropout.Forward(x)))

	ctx.SetTraining(true)
	y := tensors.ToFloat64s(must.M1(dropout.Forward(x)))
	zeros := 0
	for _, v := range y {
		if v == 0 {
			zeros++
		} else {
			require.InDelta(t, 1/0.75, v, 1e-6)
		}
	}
	require.InDelta(t, 250, zeros, 60)

	// Non-positive rates are disabled.
	disabled := must.M1(NewDropout(ctx, -1))
	require.Equal(t, 0.0, disabled.Rate())
	require.Same(t, x, must.M1(disabled.Forward(x)))

	_, err := NewDropout(ctx, 1)
	require.Error(t, err)
	_, err = NewDropout(ctx, math.NaN())
	require.Error(t, err)
}

func TestSequential(t *testing.T) {
	ctx := newContext()
	first := must.M1(NewLinear(ctx.In("first"), 2, 3, true))
	second := must.M1(NewLinear(ctx.In("second"), 3, 1, false))
	model := NewSequential(first, Activation{Type: activations.TypeRelu}).Append(second)
	require.Equal(t, 3, model.Len())
	require.Len(t, model.Variables(), 3)
	require.Equal(t, "Sequential(\n"+
		"  (0): Linear(in_features=2, out_features=3, bias=true)\n"+
		"  (1): Activation(relu)\n"+
		"  (2): Linear(in_features=3, out_features=1, bias=false)\n"+
		")", model.String())

	y := must.M1(model.Forward(tensors.FromValue([][]float32{{1, 2}, {3, 4}})))
	require.Equal(t, []int{2, 1}, y.Shape().Dimensions)

	// Errors report the module that failed.
	_, err := model.Forward(tensors.FromValue([]float32{1, 2, 3}))
	require.ErrorIs(t, err, shapes.ErrShapeMismatch)
	require.Contains(t, err.Error(), "#0")
}
