// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/xslices"
)

// FromShape creates a zero-filled Tensor. It panics if the shape or its dtype are not usable.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	elemType := shape.DType.GoType()
	if elemType == nil {
		exceptions.Panicf("tensors.FromShape(%s): no Go type for dtype %s", shape, shape.DType)
	}
	t := newTensor(shape)
	t.flat = reflect.MakeSlice(reflect.SliceOf(elemType), shape.Size(), shape.Size()).Interface()
	return t
}

// Clone returns a Tensor with the same shape and its own copy of the data.
func (t *Tensor) Clone() *Tensor {
	clone := FromShape(t.shape.Clone())
	t.ConstFlatData(func(src any) {
		reflect.Copy(reflect.ValueOf(clone.flat), reflect.ValueOf(src))
	})
	return clone
}

// ConstFlatData calls accessFn with the underlying flat slice, typed after the tensor's dtype.
// Scalars are a slice of one element.
//
// The tensor is read-locked while accessFn runs, and accessFn must not modify the slice nor keep it
// after returning. Use Tensor.LayoutStrides to map indices to flat positions.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	t.mu.RLock()
	defer t.mu.RUnlock()
	accessFn(t.flat)
}

// MutableFlatData is like ConstFlatData, but the tensor is write-locked and accessFn may change
// the values in the slice.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.AssertValid()
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// checkGenericDType panics if T is not the Go type used to store t.
func checkGenericDType[T dtypes.Supported](t *Tensor, caller string) {
	if want := dtypes.FromGenericsType[T](); t.shape.DType != want {
		exceptions.Panicf("tensors.%s[%s] used with a tensor of dtype %s", caller, want, t.shape.DType)
	}
}

// ConstFlatData is the typed version of Tensor.ConstFlatData. It panics if T doesn't match the dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	checkGenericDType[T](t, "ConstFlatData")
	t.ConstFlatData(func(flat any) { accessFn(flat.([]T)) })
}

// MutableFlatData is the typed version of Tensor.MutableFlatData. It panics if T doesn't match the dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	checkGenericDType[T](t, "MutableFlatData")
	t.MutableFlatData(func(flat any) { accessFn(flat.([]T)) })
}

// AssignFlatData overwrites the contents of t with values, which must have exactly t.Size() elements.
func AssignFlatData[T dtypes.Supported](t *Tensor, values []T) {
	MutableFlatData(t, func(flat []T) {
		if len(flat) != len(values) {
			exceptions.Panicf("tensors.AssignFlatData: got %d values for shape %s (size %d)",
				len(values), t.shape, len(flat))
		}
		copy(flat, values)
	})
}

// CopyFlatData returns a copy of the flat contents of t.
func CopyFlatData[T dtypes.Supported](t *Tensor) (values []T) {
	ConstFlatData(t, func(flat []T) { values = xslices.Copy(flat) })
	return
}

// ToScalar returns the value of a scalar Tensor.
func ToScalar[T dtypes.Supported](t *Tensor) (value T) {
	if !t.shape.IsScalar() {
		exceptions.Panicf("tensors.ToScalar: tensor of shape %s is not a scalar", t.shape)
	}
	ConstFlatData(t, func(flat []T) { value = flat[0] })
	return
}

// FromScalar creates a scalar Tensor, with the dtype of value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions creates a Tensor with the given dimensions and every element set to value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtypes.FromGenericsType[T](), dimensions...))
	t.MutableFlatData(func(flat any) {
		flatV := reflect.ValueOf(flat)
		valueV := reflect.ValueOf(value).Convert(flatV.Type().Elem())
		for ii := range flatV.Len() {
			flatV.Index(ii).Set(valueV)
		}
	})
	return t
}

// FromFlatDataAndDimensions creates a Tensor with the given dimensions holding a copy of data, laid
// out in row-major order. It panics if len(data) doesn't match the dimensions.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.Size() != len(data) {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: %d values given for shape %s (size %d)",
			len(data), shape, shape.Size())
	}
	t := FromShape(shape)
	t.MutableFlatData(func(flat any) {
		_, _ = flattenInto(reflect.ValueOf(flat), 0, reflect.ValueOf(data), []int{len(data)})
	})
	return t
}

// MultiDimensionSlice enumerates the scalars and nested slices (up to rank 5) accepted by FromValue.
type MultiDimensionSlice interface {
	bool | float32 | float64 | int | int32 | int64 |
		[]bool | []float32 | []float64 | []int | []int32 | []int64 |
		[][]bool | [][]float32 | [][]float64 | [][]int | [][]int32 | [][]int64 |
		[][][]bool | [][][]float32 | [][][]float64 | [][][]int | [][][]int32 | [][][]int64 |
		[][][][]bool | [][][][]float32 | [][][][]float64 | [][][][]int | [][][][]int32 | [][][][]int64 |
		[][][][][]bool | [][][][][]float32 | [][][][][]float64 | [][][][][]int | [][][][][]int32 | [][][][][]int64
}

// FromValue creates a Tensor from a scalar or a nested slice. Nested slices must be regular (all
// sub-slices of an axis with the same length), and Go int is stored as Int64.
//
// It panics for empty or irregular slices. Prefer FromFlatDataAndDimensions for large data.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	v := reflect.ValueOf(value)
	var dims []int
	leaf := v
	for leaf.Kind() == reflect.Slice {
		if leaf.Len() == 0 {
			exceptions.Panicf("tensors.FromValue(%T): empty slices can't be converted", value)
		}
		dims = append(dims, leaf.Len())
		leaf = leaf.Index(0)
	}
	dtype := dtypes.FromGoType(leaf.Type())
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("tensors.FromValue(%T): no dtype for Go type %s", value, leaf.Type())
	}

	t := FromShape(shapes.Make(dtype, dims...))
	var err error
	t.MutableFlatData(func(flat any) {
		_, err = flattenInto(reflect.ValueOf(flat), 0, v, dims)
	})
	if err != nil {
		panic(errors.WithMessagef(err, "tensors.FromValue(%T)", value))
	}
	return t
}

// flattenInto writes the leaves of v, of the given dimensions, into dst starting at pos. It returns the
// position following the last element written.
func flattenInto(dst reflect.Value, pos int, v reflect.Value, dims []int) (int, error) {
	elemType := dst.Type().Elem()
	if len(dims) == 0 {
		dst.Index(pos).Set(v.Convert(elemType))
		return pos + 1, nil
	}
	if v.Len() != dims[0] {
		return pos, errors.Errorf("irregular slices: found a sub-slice of length %d, expected %d", v.Len(), dims[0])
	}
	if len(dims) == 1 {
		for ii := range dims[0] {
			dst.Index(pos + ii).Set(v.Index(ii).Convert(elemType))
		}
		return pos + dims[0], nil
	}
	var err error
	for ii := range dims[0] {
		if pos, err = flattenInto(dst, pos, v.Index(ii), dims[1:]); err != nil {
			return pos, err
		}
	}
	return pos, nil
}

// Value returns a copy of the contents as a nested slice with the tensor's dimensions, or the bare
// value for scalars. Meant for tests and printing small tensors.
func (t *Tensor) Value() any {
	var result any
	t.ConstFlatData(func(flat any) {
		flatV := reflect.ValueOf(flat)
		if t.shape.IsScalar() {
			result = flatV.Index(0).Interface()
			return
		}
		level := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
		reflect.Copy(level, flatV)

		// Group the innermost axis first, one nesting level per axis.
		dims := t.shape.Dimensions
		for axis := len(dims) - 1; axis > 0; axis-- {
			chunk, numChunks := dims[axis], 1
			for _, dim := range dims[:axis] {
				numChunks *= dim
			}
			grouped := reflect.MakeSlice(reflect.SliceOf(level.Type()), numChunks, numChunks)
			for ii := range numChunks {
				grouped.Index(ii).Set(level.Slice(ii*chunk, (ii+1)*chunk))
			}
			level = grouped
		}
		result = level.Interface()
	})
	return result
}

// Equal returns whether t and other have the same shape and the same values.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	var equal bool
	t.ConstFlatData(func(flat any) {
		other.ConstFlatData(func(otherFlat any) {
			equal = reflect.DeepEqual(flat, otherFlat)
		})
	})
	return equal
}

// InDelta returns whether t and other have the same shape and every pair of elements differ by at
// most delta. Non-float tensors are compared with Equal.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	if !t.DType().IsFloat() {
		return t.Equal(other)
	}
	values, otherValues := ToFloat64s(t), ToFloat64s(other)
	for ii, v := range values {
		if diff := v - otherValues[ii]; diff > delta || diff < -delta {
			return false
		}
	}
	return true
}

// maxStringSize is the largest tensor whose values Tensor.String prints.
const maxStringSize = 64

// String returns the shape, and the values if there are at most maxStringSize of them.
func (t *Tensor) String() string {
	if !t.Ok() {
		return "Tensor(invalid)"
	}
	if t.Size() > maxStringSize {
		return fmt.Sprintf("%s: (%d values)", t.shape, t.Size())
	}
	return fmt.Sprintf("%s: %v", t.shape, t.Value())
}
