// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"sync"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	require.True(t, tensor.Ok())
	require.Equal(t, 6, tensor.Size())
	require.Equal(t, 2, tensor.Rank())
	require.Equal(t, uintptr(24), tensor.Memory())
	require.Equal(t, [][]float32{{0, 0, 0}, {0, 0, 0}}, tensor.Value())

	err := exceptions.TryCatch[error](func() { FromShape(shapes.Invalid()) })
	require.Error(t, err)
}

func TestFromValue(t *testing.T) {
	tensor := FromValue([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.Equal(t, dtypes.Float64, tensor.DType())
	require.Equal(t, []int{3, 2}, tensor.Shape().Dimensions)
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6}, CopyFlatData[float64](tensor))
	require.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, tensor.Value())

	// Go int is converted to Int64.
	intTensor := FromValue([]int{7, 11})
	require.Equal(t, dtypes.Int64, intTensor.DType())
	require.Equal(t, []int64{7, 11}, intTensor.Value())

	scalar := FromValue(float32(3))
	require.True(t, scalar.IsScalar())
	require.Equal(t, float32(3), ToScalar[float32](scalar))

	// Irregular shapes are not accepted.
	err := exceptions.TryCatch[error](func() { FromValue([][]float32{{1, 2}, {3}}) })
	require.Error(t, err)
}

func TestFlatData(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 1, 3)
	require.Equal(t, []int{3, 3, 1}, tensor.LayoutStrides())
	MutableFlatData(tensor, func(flat []float32) {
		flat[5] = 60
	})
	require.Equal(t, [][][]float32{{{1, 2, 3}}, {{4, 5, 60}}}, tensor.Value())

	AssignFlatData(tensor, []float32{0, 0, 0, 0, 0, 1})
	require.Equal(t, float32(1), CopyFlatData[float32](tensor)[5])

	require.Panics(t, func() { ConstFlatData(tensor, func(flat []float64) {}) })
	require.Panics(t, func() { AssignFlatData(tensor, []float32{1}) })
	require.Panics(t, func() { FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })

	filled := FromScalarAndDimensions(float64(0.5), 2, 2)
	require.Equal(t, [][]float64{{0.5, 0.5}, {0.5, 0.5}}, filled.Value())
}

func TestCloneAndCompare(t *testing.T) {
	t0 := FromValue([]float32{1, 2, 3})
	t1 := t0.Clone()
	require.True(t, t0.Equal(t1))
	MutableFlatData(t1, func(flat []float32) { flat[0] = 1.0001 })
	assert.False(t, t0.Equal(t1))
	assert.True(t, t0.InDelta(t1, 1e-3))
	assert.False(t, t0.InDelta(t1, 1e-5))
	assert.False(t, t0.Equal(FromValue([]float64{1, 2, 3})))
	assert.Equal(t, "(Float32)[3]: [1 2 3]", t0.String())
}

func TestFloatConversions(t *testing.T) {
	for _, dtype := range []dtypes.DType{dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64} {
		t.Run(dtype.String(), func(t *testing.T) {
			require.True(t, IsSupportedFloat(dtype))
			tensor := FromFloat64s(dtype, []float64{0.5, -2, 4, 1.25}, 2, 2)
			require.Equal(t, dtype, tensor.DType())
			require.Equal(t, []float64{0.5, -2, 4, 1.25}, ToFloat64s(tensor))
			require.Equal(t, []float32{0.5, -2, 4, 1.25}, ToFloat32s(tensor))
			AssignFloat32s(tensor, []float32{1, 2, 3, 4})
			require.Equal(t, []float64{1, 2, 3, 4}, ToFloat64s(tensor))
		})
	}
	require.False(t, IsSupportedFloat(dtypes.Int32))
	require.Panics(t, func() { ToFloat64s(FromValue([]int32{1})) })
}

func TestConcurrentReaders(t *testing.T) {
	tensor := FromValue([]float64{1, 2, 3, 4})
	var wg sync.WaitGroup
	sums := make([]float64, 8)
	for ii := range sums {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ConstFlatData(tensor, func(flat []float64) {
				for _, v := range flat {
					sums[ii] += v
				}
			})
		}()
	}
	wg.Wait()
	for _, sum := range sums {
		require.Equal(t, 10.0, sum)
	}
}
