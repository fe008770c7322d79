// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations implements several common activations, and includes a generic Apply method to apply an
// activation by its type.
//
// There is also FromName to convert an activation name (string) to its type, and FromContext that picks
// an activation based on the hyperparameter ParamActivation defined in a context.
package activations

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/types/tensors"
)

const (
	// ParamActivation context hyperparameter defines the activation to use, for models using FromContext.
	// Available values are: `none`, `relu`, `leaky_relu`, `sigmoid`, `tanh`, `selu`, `gelu` or `swish` (same as `silu`).
	// The default is `relu`.
	// See activations.TypeValues for complete list.
	ParamActivation = "activation"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeLeakyRelu -> "leaky_relu"), and can be converted
// from string by using TypeString or FromName.
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeSigmoid
	TypeLeakyRelu
	TypeSelu

	TypeSwish

	// TypeSilu is an alias to TypeSwish
	TypeSilu

	TypeTanh
	TypeGelu
)

var typeNames = []string{"none", "relu", "sigmoid", "leaky_relu", "selu", "swish", "silu", "tanh", "gelu"}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// TypeValues returns all values of the Type enum.
func TypeValues() []Type {
	values := make([]Type, len(typeNames))
	for ii := range values {
		values[ii] = Type(ii)
	}
	return values
}

// TypeString returns the Type for the given name. It's case-insensitive.
func TypeString(name string) (Type, error) {
	for ii, typeName := range typeNames {
		if strings.EqualFold(name, typeName) {
			return Type(ii), nil
		}
	}
	return TypeNone, errors.Errorf("%q does not belong to activations.Type values", name)
}

// FromContext picks an activation type from the context using [ParamActivation] parameter.
//
// It defaults to "relu".
func FromContext(ctx *context.Context) Type {
	return FromName(context.GetParamOr(ctx, ParamActivation, "relu"))
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// And empty string is converted to TypeNone.
func FromName(activationName string) Type {
	if activationName == "" {
		return TypeNone
	}
	activation, err := TypeString(activationName)
	if err != nil {
		exceptions.Panicf("invalid activation name %q: options are %v", activationName, TypeValues())
	}
	return activation
}

// Fn returns the scalar function of the activation.
func Fn(activation Type) func(x float64) float64 {
	switch activation {
	case TypeNone:
		return func(x float64) float64 { return x }
	case TypeRelu:
		return Relu
	case TypeLeakyRelu:
		return LeakyRelu
	case TypeSigmoid:
		return Sigmoid
	case TypeTanh:
		return math.Tanh
	case TypeSwish, TypeSilu:
		return Swish
	case TypeSelu:
		return Selu
	case TypeGelu:
		return Gelu
	}
	exceptions.Panicf("Apply got invalid activation value %q: options are %v", activation, TypeValues())
	return nil
}

// Apply the given activation type to x and returns a new tensor with the same shape and dtype.
// The TypeNone activation returns x itself.
//
// See TypeValues for valid values.
func Apply(activation Type, x *tensors.Tensor) *tensors.Tensor {
	if activation == TypeNone {
		return x
	}
	fn := Fn(activation)
	values := tensors.ToFloat64s(x)
	for ii, v := range values {
		values[ii] = fn(v)
	}
	return tensors.FromFloat64s(x.DType(), values, x.Shape().Dimensions...)
}

// Relu activation function. It returns max(x, 0).
func Relu(x float64) float64 {
	return max(x, 0)
}

// LeakyReluAlpha is the slope used by LeakyRelu for negative values.
const LeakyReluAlpha = 0.01

// LeakyRelu activation function. It allows a small gradient when the unit is not active (x < 0).
//
// It returns `x if x >= 0; LeakyReluAlpha*x if x < 0`.
func LeakyRelu(x float64) float64 {
	if x >= 0 {
		return x
	}
	return LeakyReluAlpha * x
}

// Sigmoid returns 1/(1+exp(-x)).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Swish activation (or SiLU) returns `x * Sigmoid(x)`.
func Swish(x float64) float64 {
	return x * Sigmoid(x)
}

const (
	SeluAlpha = 1.67326324
	SeluScale = 1.05070098
)

// Selu stands for Scaled Exponential Linear Unit (SELU) activation function is defined as:
// . $SeluScale * x$ if $x > 0$
// . $SeluScale * SeluAlpha * (e^x - 1)$ if $x < 0$
func Selu(x float64) float64 {
	if x > 0 {
		return SeluScale * x
	}
	return SeluScale * SeluAlpha * (math.Exp(x) - 1)
}

// Gelu is the Gaussian Error Linear Unit, `x * Φ(x)` where Φ is the standard normal cumulative distribution,
// computed exactly with the error function.
func Gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}
