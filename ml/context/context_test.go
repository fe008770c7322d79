// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"sync"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestContextScopes(t *testing.T) {
	ctx := New()
	require.Equal(t, RootScope, ctx.Scope())
	ctxA := ctx.In("a")
	require.Equal(t, "/a", ctxA.Scope())
	require.Equal(t, "/a/layer_3", ctxA.Inf("layer_%d", 3).Scope())
	require.Equal(t, "/x/y", ctxA.InAbsPath("/x/y").Scope())
	scope, name := SplitScope("/x/y/w")
	require.Equal(t, "/x/y", scope)
	require.Equal(t, "w", name)
	scope, name = SplitScope("/w")
	require.Equal(t, RootScope, scope)
	require.Equal(t, "w", name)
	scope, name = SplitScope("w")
	require.Equal(t, "", scope)
	require.Equal(t, "w", name)
	require.Equal(t, "a_b", EscapeScopeName("a/b"))

	require.Error(t, exceptions.TryCatch[error](func() { ctx.In("") }))
	require.Error(t, exceptions.TryCatch[error](func() { ctx.In("a/b") }))
	require.Error(t, exceptions.TryCatch[error](func() { ctx.InAbsPath("a") }))
}

func TestContextParams(t *testing.T) {
	ctx := New()
	ctx.SetParam("x", 10)
	ctx.SetParam("y", 20.0)
	ctxA := ctx.In("a")
	ctxA.SetParam("y", 30.0)
	ctxAB := ctxA.In("b")
	ctxAB.SetParam("x", 100)

	require.Equal(t, 100, GetParamOr(ctxAB, "x", 0))
	require.Equal(t, 30.0, GetParamOr(ctxAB, "y", 0.0))
	require.Equal(t, 10, GetParamOr(ctxA, "x", 0))
	require.Equal(t, 20.0, GetParamOr(ctx, "y", 0.0))
	require.Equal(t, "default", GetParamOr(ctxAB, "w", "default"))

	// Conversions: int to float64 and float64 to int are accepted, int to string is not.
	require.Equal(t, 10.0, GetParamOr(ctx, "x", 0.0))
	require.Equal(t, 30, GetParamOr(ctxA, "y", 0))
	require.Equal(t, "default", GetParamOr(ctx, "x", "default"))

	var got []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		got = append(got, scope+":"+key)
	})
	require.Equal(t, []string{"/:x", "/:y", "/a:y", "/a/b:x"}, got)

	ctxAB.SetParams(map[string]any{"z": "zz", "w": 1})
	require.Equal(t, "zz", GetParamOr(ctxAB, "z", ""))
	require.Equal(t, 0, GetParamOr(ctxA, "w", 0))

	require.False(t, ctx.IsTraining())
	ctxA.SetTraining(true)
	require.True(t, ctxAB.IsTraining())
	require.False(t, ctx.IsTraining())
}

func TestContextVariables(t *testing.T) {
	ctx := New()
	ctxA := ctx.In("a")
	ctxB := ctx.In("b")

	// Same variable name, but different scopes.
	v0, err := ctxA.VariableWithValue("x", tensors.FromValue([]float32{1, 2}))
	require.NoError(t, err)
	_, err = ctxB.VariableWithValue("x", tensors.FromValue([][]float64{{1, 2, 3}}))
	require.NoError(t, err)
	require.Equal(t, "/a/x", v0.ScopeAndName())
	require.True(t, v0.Trainable())

	// Re-creating without reuse fails.
	_, err = ctxA.VariableWithValue("x", tensors.FromValue([]float32{3, 4}))
	require.Error(t, err)

	// Reuse returns the same variable, as long as the shape matches.
	v1, err := ctxA.Reuse().VariableWithValue("x", tensors.FromValue([]float32{3, 4}))
	require.NoError(t, err)
	require.Same(t, v0, v1)
	_, err = ctxA.Reuse().VariableWithValue("x", tensors.FromValue([]float32{3, 4, 5}))
	require.Error(t, err)

	_, err = ctxA.VariableWithValue("bad/name", tensors.FromValue([]float32{1}))
	require.Error(t, err)

	// CheckVariable reports the same errors, without creating anything.
	require.Error(t, ctxA.CheckVariable("x", v0.Shape()))
	require.NoError(t, ctxA.Reuse().CheckVariable("x", v0.Shape()))
	require.Error(t, ctxA.Reuse().CheckVariable("x", shapes.Make(v0.Shape().DType, 3)))
	require.Error(t, ctxA.CheckVariable("bad/name", v0.Shape()))
	require.NoError(t, ctxA.CheckVariable("new", v0.Shape()))
	require.Nil(t, ctxA.GetVariable("new"))

	// Variables in sub-scopes.
	_, err = ctxA.In("c").VariableWithValue("y", tensors.FromScalar(int32(7)))
	require.NoError(t, err)

	require.Same(t, v0, ctxA.GetVariable("x"))
	require.Nil(t, ctxA.GetVariable("y"))
	require.NotNil(t, ctx.GetVariableByScopeAndName("/a/c", "y"))
	require.Equal(t, 3, ctx.NumVariables())
	require.Equal(t, 2+3+1, ctx.NumParameters())
	require.Equal(t, uintptr(2*4+3*8+4), ctx.Memory())

	var names []string
	ctx.EnumerateVariables(func(v *Variable) { names = append(names, v.ScopeAndName()) })
	assert.Equal(t, []string{"/a/x", "/b/x", "/a/c/y"}, names)
	names = nil
	ctxA.EnumerateVariablesInScope(func(v *Variable) { names = append(names, v.ScopeAndName()) })
	assert.Equal(t, []string{"/a/x", "/a/c/y"}, names)
}

func TestVariableSetValue(t *testing.T) {
	ctx := New()
	v, err := ctx.VariableWithValue("w", tensors.FromValue([]float64{1, 2}))
	require.NoError(t, err)
	require.Equal(t, "/w", v.ScopeAndName())
	require.NoError(t, v.SetValue(tensors.FromValue([]float64{3, 4})))
	require.Equal(t, []float64{3, 4}, v.Value().Value())

	err = v.SetValue(tensors.FromValue([]float64{3, 4, 5}))
	require.ErrorIs(t, err, shapes.ErrShapeMismatch)
	require.False(t, v.SetTrainable(false).Trainable())
}

func TestRNG(t *testing.T) {
	draw := func(ctx *Context) (values []float64) {
		ctx.WithRNG(func(rng *rand.Rand) {
			for range 5 {
				values = append(values, rng.Float64())
			}
		})
		return
	}

	ctx0 := New()
	ctx0.SetParam(ParamRNGSeed, 42)
	ctx1 := New()
	ctx1.SetRNGSeed(42)
	require.Equal(t, draw(ctx0), draw(ctx1))

	ctx2 := New()
	ctx2.SetRNGSeed(43)
	require.NotEqual(t, draw(ctx1), draw(ctx2))

	// Concurrent use is serialized.
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = draw(ctx2.In("worker"))
		}()
	}
	wg.Wait()
}
