// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializers include several weight initializers, to be used with the variables of a context.
// They implement the VariableInitializer type.
package initializers

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/spectralrl/goensemble/types/tensors"
	"golang.org/x/exp/rand"
)

// VariableInitializer fills the tensor t with initial values, drawing randomness (if any) from rng.
//
// Initializers of this package only accept float tensors, and panic otherwise.
type VariableInitializer func(rng *rand.Rand, t *tensors.Tensor)

func assertFloat(name string, t *tensors.Tensor) {
	if !tensors.IsSupportedFloat(t.DType()) {
		exceptions.Panicf("initializers.%s: cannot initialize non-float tensor shaped %s", name, t.Shape())
	}
}

// Zero initializes variables with zero.
func Zero(_ *rand.Rand, t *tensors.Tensor) {
	assertFloat("Zero", t)
	tensors.AssignFloat64s(t, make([]float64, t.Size()))
}

// One initializes variables with one.
func One(_ *rand.Rand, t *tensors.Tensor) {
	assertFloat("One", t)
	values := make([]float64, t.Size())
	for ii := range values {
		values[ii] = 1
	}
	tensors.AssignFloat64s(t, values)
}

// RandomUniformFn return an initializer that generates random uniform values from [min, max).
func RandomUniformFn(min, max float64) VariableInitializer {
	return func(rng *rand.Rand, t *tensors.Tensor) {
		assertFloat("RandomUniformFn", t)
		values := make([]float64, t.Size())
		for ii := range values {
			values[ii] = min + (max-min)*rng.Float64()
		}
		tensors.AssignFloat64s(t, values)
	}
}

// RandomNormalFn returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func RandomNormalFn(stddev float64) VariableInitializer {
	return func(rng *rand.Rand, t *tensors.Tensor) {
		assertFloat("RandomNormalFn", t)
		values := make([]float64, t.Size())
		for ii := range values {
			values[ii] = stddev * rng.NormFloat64()
		}
		tensors.AssignFloat64s(t, values)
	}
}

// FanInUniform returns an initializer that draws every element independently from U[-bound, bound],
// with bound = 1/sqrt(fanIn). This is the usual initialization of the weights and biases of a linear layer
// with fanIn input features.
func FanInUniform(fanIn int) VariableInitializer {
	if fanIn <= 0 {
		exceptions.Panicf("initializers.FanInUniform: fanIn must be > 0, got %d", fanIn)
	}
	bound := 1.0 / math.Sqrt(float64(fanIn))
	return RandomUniformFn(-bound, bound)
}
