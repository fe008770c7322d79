// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layers holds a collection of common modules used to build models: linear (dense) layers,
// layer normalization, activations and dropout, and Sequential to chain them.
//
// All modules implement the Module interface. Modules holding variables (parameters) also implement
// HasVariables, and those that know how to re-initialize their weights implement WeightInitializer.
package layers

import (
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
)

const (
	// ParamDType is the context hyperparameter with the name of the dtype used for the variables of the
	// layers, e.g.: "float32", "float64", "float16" or "bfloat16". Default is "float32".
	ParamDType = "dtype"
)

// Module is a transformation of a tensor, the building block of models.
type Module interface {
	// Forward transforms x. It must be safe to call concurrently, as long as the variables are not
	// being changed.
	Forward(x *tensors.Tensor) (*tensors.Tensor, error)

	// String returns a short description of the module.
	String() string
}

// HasVariables is implemented by modules that hold variables, typically its trainable parameters.
type HasVariables interface {
	Variables() []*context.Variable
}

// WeightInitializer is implemented by modules that can (re-)initialize their weights.
//
// The gain scales orthogonal initializations. ctx provides the random number generator and
// hyperparameters.
type WeightInitializer interface {
	InitWeights(ctx *context.Context, gain float64) error
}

// DTypeFromContext returns the dtype configured with ParamDType, defaulting to Float32.
// Names are case-insensitive, and the short forms "f16", "bf16", "f32" and "f64" are accepted.
//
// It returns an error wrapping shapes.ErrInvalidShape if the dtype is unknown or not a float.
func DTypeFromContext(ctx *context.Context) (dtypes.DType, error) {
	name := context.GetParamOr(ctx, ParamDType, "float32")
	for _, dtype := range floatDTypes {
		if strings.EqualFold(name, dtype.String()) || strings.EqualFold(name, dtypeShortNames[dtype]) {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Wrapf(shapes.ErrInvalidShape,
		"unknown dtype %q set in %q, layers only support %v", name, ParamDType, floatDTypes)
}

var (
	floatDTypes     = []dtypes.DType{dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64}
	dtypeShortNames = map[dtypes.DType]string{
		dtypes.Float16:  "f16",
		dtypes.BFloat16: "bf16",
		dtypes.Float32:  "f32",
		dtypes.Float64:  "f64",
	}
)

// CheckFloatDType returns an error wrapping shapes.ErrInvalidShape if dtype cannot be used for
// the variables of a layer.
func CheckFloatDType(dtype dtypes.DType) error {
	if !tensors.IsSupportedFloat(dtype) {
		return errors.Wrapf(shapes.ErrInvalidShape, "dtype %s is not supported for layers, only float dtypes are", dtype)
	}
	return nil
}

// checkInput verifies x is a valid input for a layer with the given dtype and number of input features.
func checkInput(x *tensors.Tensor, dtype dtypes.DType, inFeatures int) error {
	if x == nil || !x.Ok() {
		return errors.Wrap(shapes.ErrShapeMismatch, "invalid input tensor")
	}
	shape := x.Shape()
	if err := shape.CheckMinRank(1); err != nil {
		return err
	}
	if shape.DType != dtype {
		return errors.Wrapf(shapes.ErrShapeMismatch, "input dtype %s doesn't match the layer's dtype %s", shape.DType, dtype)
	}
	if shape.Dim(-1) != inFeatures {
		return errors.Wrapf(shapes.ErrShapeMismatch, "input shape %s: last axis should have dimension %d",
			shape, inFeatures)
	}
	return nil
}
