// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/internal/kernels"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/context/initializers"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/spectralrl/goensemble/types/xslices"
	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"
)

// Linear is a plain (single member) linear layer: y = x·W + b, with W shaped [inFeatures, outFeatures]
// and b shaped [outFeatures].
type Linear struct {
	inFeatures, outFeatures int
	dtype                   dtypes.DType
	weights, biases         *context.Variable
}

var (
	_ Module            = (*Linear)(nil)
	_ HasVariables      = (*Linear)(nil)
	_ WeightInitializer = (*Linear)(nil)
)

// NewLinear creates a Linear layer with variables "weights" and, if useBias, "biases" in the current scope
// of ctx. The dtype is taken from the ParamDType hyperparameter.
//
// Weights and biases are initialized with initializers.FanInUniform(inFeatures).
//
// It returns an error wrapping shapes.ErrInvalidShape if inFeatures or outFeatures are not positive.
func NewLinear(ctx *context.Context, inFeatures, outFeatures int, useBias bool) (*Linear, error) {
	dtype, err := DTypeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, errors.Wrapf(shapes.ErrInvalidShape, "layers.NewLinear(in_features=%d, out_features=%d) must be positive",
			inFeatures, outFeatures)
	}
	l := &Linear{inFeatures: inFeatures, outFeatures: outFeatures, dtype: dtype}
	l.weights, err = ctx.VariableWithValue("weights", tensors.FromShape(shapes.Make(dtype, inFeatures, outFeatures)))
	if err != nil {
		return nil, err
	}
	if useBias {
		l.biases, err = ctx.VariableWithValue("biases", tensors.FromShape(shapes.Make(dtype, outFeatures)))
		if err != nil {
			return nil, err
		}
	}
	initFn := initializers.FanInUniform(inFeatures)
	ctx.WithRNG(func(rng *rand.Rand) {
		for _, v := range l.Variables() {
			initFn(rng, v.Value())
		}
	})
	klog.V(1).Infof("created %s in scope %q", l, ctx.Scope())
	return l, nil
}

// String implements Module.
func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=%v)", l.inFeatures, l.outFeatures, l.biases != nil)
}

// Variables implements HasVariables.
func (l *Linear) Variables() []*context.Variable {
	if l.biases == nil {
		return []*context.Variable{l.weights}
	}
	return []*context.Variable{l.weights, l.biases}
}

// Weights variable, shaped [inFeatures, outFeatures].
func (l *Linear) Weights() *context.Variable { return l.weights }

// Biases variable, shaped [outFeatures], or nil if the layer has no bias.
func (l *Linear) Biases() *context.Variable { return l.biases }

// Forward implements Module. x must be shaped [..., inFeatures], and the output is shaped [..., outFeatures].
func (l *Linear) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	if err := checkInput(x, l.dtype, l.inFeatures); err != nil {
		return nil, errors.WithMessagef(err, "%s", l)
	}
	leading := x.Shape().Dimensions[:x.Rank()-1]
	p := kernels.ContractParams{
		EnsembleSize: 1,
		BatchSize:    xslices.Product(leading),
		InFeatures:   l.inFeatures,
		OutFeatures:  l.outFeatures,
		Shared:       true,
	}
	var biases *tensors.Tensor
	if l.biases != nil {
		biases = l.biases.Value()
	}
	outputDims := append(xslices.Copy(leading), l.outFeatures)
	return kernels.ContractTensors(x, l.weights.Value(), biases, p, outputDims...), nil
}

// InitWeights implements WeightInitializer: weights are set to an orthogonal matrix scaled by gain, and
// the biases are zeroed.
func (l *Linear) InitWeights(ctx *context.Context, gain float64) error {
	ctx.WithRNG(func(rng *rand.Rand) {
		initializers.Orthogonal(gain)(rng, l.weights.Value())
	})
	if l.biases != nil {
		initializers.Zero(nil, l.biases.Value())
	}
	return nil
}
