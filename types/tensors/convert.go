// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/x448/float16"
)

// ToFloat64s returns a copy of the tensor values converted to float64.
// It panics if the tensor's dtype is not a float.
func ToFloat64s(t *Tensor) (values []float64) {
	values = make([]float64, t.Size())
	t.ConstFlatData(func(flat any) {
		switch src := flat.(type) {
		case []float64:
			copy(values, src)
		case []float32:
			for ii, v := range src {
				values[ii] = float64(v)
			}
		case []float16.Float16:
			for ii, v := range src {
				values[ii] = float64(v.Float32())
			}
		case []bfloat16.BFloat16:
			for ii, v := range src {
				values[ii] = float64(v.Float32())
			}
		default:
			exceptions.Panicf("tensors.ToFloat64s: dtype %s is not a supported float", t.DType())
		}
	})
	return
}

// ToFloat32s returns a copy of the tensor values converted to float32.
// It panics if the tensor's dtype is not a float.
func ToFloat32s(t *Tensor) (values []float32) {
	values = make([]float32, t.Size())
	t.ConstFlatData(func(flat any) {
		switch src := flat.(type) {
		case []float32:
			copy(values, src)
		case []float64:
			for ii, v := range src {
				values[ii] = float32(v)
			}
		case []float16.Float16:
			for ii, v := range src {
				values[ii] = v.Float32()
			}
		case []bfloat16.BFloat16:
			for ii, v := range src {
				values[ii] = v.Float32()
			}
		default:
			exceptions.Panicf("tensors.ToFloat32s: dtype %s is not a supported float", t.DType())
		}
	})
	return
}

// AssignFloat64s converts the values to the tensor's dtype and stores them in the tensor.
// It panics if the tensor's dtype is not a float, or if the number of values doesn't match.
func AssignFloat64s(t *Tensor, values []float64) {
	if len(values) != t.Size() {
		exceptions.Panicf("tensors.AssignFloat64s: %d values given for tensor shaped %s", len(values), t.Shape())
	}
	t.MutableFlatData(func(flat any) {
		switch dst := flat.(type) {
		case []float64:
			copy(dst, values)
		case []float32:
			for ii, v := range values {
				dst[ii] = float32(v)
			}
		case []float16.Float16:
			for ii, v := range values {
				dst[ii] = float16.Fromfloat32(float32(v))
			}
		case []bfloat16.BFloat16:
			for ii, v := range values {
				dst[ii] = bfloat16.FromFloat32(float32(v))
			}
		default:
			exceptions.Panicf("tensors.AssignFloat64s: dtype %s is not a supported float", t.DType())
		}
	})
}

// AssignFloat32s converts the values to the tensor's dtype and stores them in the tensor.
// It panics if the tensor's dtype is not a float, or if the number of values doesn't match.
func AssignFloat32s(t *Tensor, values []float32) {
	if len(values) != t.Size() {
		exceptions.Panicf("tensors.AssignFloat32s: %d values given for tensor shaped %s", len(values), t.Shape())
	}
	t.MutableFlatData(func(flat any) {
		switch dst := flat.(type) {
		case []float32:
			copy(dst, values)
		case []float64:
			for ii, v := range values {
				dst[ii] = float64(v)
			}
		case []float16.Float16:
			for ii, v := range values {
				dst[ii] = float16.Fromfloat32(v)
			}
		case []bfloat16.BFloat16:
			for ii, v := range values {
				dst[ii] = bfloat16.FromFloat32(v)
			}
		default:
			exceptions.Panicf("tensors.AssignFloat32s: dtype %s is not a supported float", t.DType())
		}
	})
}

// FromFloat64s creates a tensor of the given float dtype and dimensions, converting the values given.
func FromFloat64s(dtype dtypes.DType, values []float64, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtype, dimensions...))
	AssignFloat64s(t, values)
	return t
}

// IsSupportedFloat returns whether the dtype is one of the float dtypes the conversion functions handle.
func IsSupportedFloat(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64:
		return true
	}
	return false
}
