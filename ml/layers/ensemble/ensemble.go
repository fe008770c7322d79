// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ensemble implements Linear, a linear layer that evaluates E independent affine maps
// (the ensemble members) in a single batched contraction.
//
// The parameters of all members are packed along a trailing ensemble axis: weights are shaped
// [inFeatures, outFeatures, E] and biases [outFeatures, E]. Inputs are either shared by all
// members (shaped [..., inFeatures]) or given per member (shaped [E, ..., inFeatures]), and
// the output is always shaped [E, ..., outFeatures], so ensemble layers can be chained.
//
// Example:
//
//	layer, err := ensemble.New(ctx.In("critic"), 17, 64).EnsembleSize(5).Done()
//	if err != nil { ... }
//	y, err := layer.Forward(x)  // x: [batch, 17] -> y: [5, batch, 64]
package ensemble

import (
	"fmt"
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/internal/kernels"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/context/initializers"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/spectralrl/goensemble/types/xslices"
	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"
)

const (
	// ParamEnsembleSize is the context hyperparameter with the default number of ensemble members. Default is 1.
	ParamEnsembleSize = "ensemble_size"

	// ParamShareInput is the context hyperparameter with the default input sharing mode. Default is true.
	ParamShareInput = "ensemble_share_input"

	// ParamWeightInit is the context hyperparameter that selects what Linear.InitWeights does:
	// WeightInitFanInUniform (default) or WeightInitOrthogonal.
	ParamWeightInit = "ensemble_weight_init"

	// WeightInitFanInUniform re-runs Linear.ResetParameters.
	WeightInitFanInUniform = "fan_in_uniform"

	// WeightInitOrthogonal initializes each member's weights with an independent orthogonal matrix
	// scaled by the gain, and zeroes the biases.
	WeightInitOrthogonal = "orthogonal"
)

// Config for an ensemble Linear layer. Create it with New, set the options and call Done.
type Config struct {
	ctx                                   *context.Context
	inFeatures, outFeatures, ensembleSize int
	shareInput, useBias                   bool
	dtype                                 dtypes.DType

	// ensembleSizeErr is set if ParamEnsembleSize holds an invalid value, and cleared by EnsembleSize.
	ensembleSizeErr error
}

// New starts the configuration of an ensemble Linear layer, with variables in the current scope of ctx.
//
// Defaults are read from the context hyperparameters ParamEnsembleSize, ParamShareInput and
// layers.ParamDType. Bias is enabled by default.
func New(ctx *context.Context, inFeatures, outFeatures int) *Config {
	c := &Config{
		ctx:         ctx,
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		shareInput:  context.GetParamOr(ctx, ParamShareInput, true),
		useBias:     true,
	}
	c.ensembleSize, c.ensembleSizeErr = EnsembleSizeFromContext(ctx)
	return c
}

// EnsembleSizeFromContext returns the ensemble size set with ParamEnsembleSize, or 1 if not set.
//
// Any integer type is accepted, as well as floats with an integral value. Other values return an
// error wrapping shapes.ErrInvalidShape.
func EnsembleSizeFromContext(ctx *context.Context) (int, error) {
	value, found := ctx.GetParam(ParamEnsembleSize)
	if !found {
		return 1, nil
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return integralSize(float64(v))
	case float64:
		return integralSize(v)
	}
	return 0, errors.Wrapf(shapes.ErrInvalidShape, "%q must be an integer, got %v (%T)", ParamEnsembleSize, value, value)
}

func integralSize(v float64) (int, error) {
	if math.Trunc(v) != v || math.IsInf(v, 0) {
		return 0, errors.Wrapf(shapes.ErrInvalidShape, "%q must be an integer, got %g", ParamEnsembleSize, v)
	}
	return int(v), nil
}

// EnsembleSize sets the number of members of the ensemble, overriding ParamEnsembleSize.
func (c *Config) EnsembleSize(size int) *Config {
	c.ensembleSize = size
	c.ensembleSizeErr = nil
	return c
}

// ShareInput sets whether all members take the same input (shaped [..., inFeatures]), or whether
// each member takes its own (input shaped [E, ..., inFeatures]).
func (c *Config) ShareInput(share bool) *Config {
	c.shareInput = share
	return c
}

// UseBias sets whether the layer has a trainable bias. If false, the bias is a constant zero.
func (c *Config) UseBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// DType sets the dtype of the variables, overriding layers.ParamDType. It must be a float dtype.
func (c *Config) DType(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// Done creates the layer variables ("weights" and "biases") and initializes them with
// Linear.ResetParameters.
//
// It returns an error wrapping shapes.ErrInvalidShape if any of inFeatures, outFeatures or ensemble
// size is not positive, or if the dtype is not a float.
func (c *Config) Done() (*Linear, error) {
	dtype := c.dtype
	if dtype == dtypes.InvalidDType {
		var err error
		dtype, err = layers.DTypeFromContext(c.ctx)
		if err != nil {
			return nil, err
		}
	} else if err := layers.CheckFloatDType(dtype); err != nil {
		return nil, err
	}
	if c.ensembleSizeErr != nil {
		return nil, errors.WithMessage(c.ensembleSizeErr, "ensemble.New")
	}
	if c.inFeatures <= 0 || c.outFeatures <= 0 || c.ensembleSize <= 0 {
		return nil, errors.Wrapf(shapes.ErrInvalidShape,
			"ensemble.New(in_features=%d, out_features=%d, ensemble_size=%d): all must be positive",
			c.inFeatures, c.outFeatures, c.ensembleSize)
	}

	l := &Linear{
		ctx:          c.ctx,
		inFeatures:   c.inFeatures,
		outFeatures:  c.outFeatures,
		ensembleSize: c.ensembleSize,
		shareInput:   c.shareInput,
		useBias:      c.useBias,
		dtype:        dtype,
	}
	weightsShape := shapes.Make(dtype, c.inFeatures, c.outFeatures, c.ensembleSize)
	biasesShape := shapes.Make(dtype, c.outFeatures, c.ensembleSize)
	// Both variables are checked first, so a failure doesn't leave one of them behind.
	if err := c.ctx.CheckVariable("weights", weightsShape); err != nil {
		return nil, err
	}
	if err := c.ctx.CheckVariable("biases", biasesShape); err != nil {
		return nil, err
	}
	var err error
	l.weights, err = c.ctx.VariableWithValue("weights", tensors.FromShape(weightsShape))
	if err != nil {
		return nil, err
	}
	l.biases, err = c.ctx.VariableWithValue("biases", tensors.FromShape(biasesShape))
	if err != nil {
		return nil, err
	}
	l.biases.SetTrainable(c.useBias)
	if err = l.ResetParameters(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("created %s in scope %q", l, c.ctx.Scope())
	return l, nil
}

// Linear is an ensemble of linear layers evaluated together. Create it with New.
//
// Forward can be called concurrently, as long as the variables are not being changed.
// ResetParameters and InitWeights must not run concurrently with Forward or with each other.
type Linear struct {
	ctx                                   *context.Context
	inFeatures, outFeatures, ensembleSize int
	shareInput, useBias                   bool
	dtype                                 dtypes.DType

	// weights shaped [inFeatures, outFeatures, ensembleSize] and biases shaped [outFeatures, ensembleSize].
	// If !useBias, biases is non-trainable and always zero.
	weights, biases *context.Variable
}

var (
	_ layers.Module            = (*Linear)(nil)
	_ layers.HasVariables      = (*Linear)(nil)
	_ layers.WeightInitializer = (*Linear)(nil)
)

// InFeatures is the number of input features of each member.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures is the number of output features of each member.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// EnsembleSize is the number of members.
func (l *Linear) EnsembleSize() int { return l.ensembleSize }

// ShareInput returns whether all members take the same input.
func (l *Linear) ShareInput() bool { return l.shareInput }

// UseBias returns whether the layer has a trainable bias.
func (l *Linear) UseBias() bool { return l.useBias }

// DType of the variables.
func (l *Linear) DType() dtypes.DType { return l.dtype }

// Weights variable, shaped [inFeatures, outFeatures, ensembleSize].
func (l *Linear) Weights() *context.Variable { return l.weights }

// Biases variable, shaped [outFeatures, ensembleSize]. If the layer doesn't use bias, it is a
// non-trainable zero.
func (l *Linear) Biases() *context.Variable { return l.biases }

// Variables implements layers.HasVariables. Only trainable variables are returned.
func (l *Linear) Variables() []*context.Variable {
	if !l.useBias {
		return []*context.Variable{l.weights}
	}
	return []*context.Variable{l.weights, l.biases}
}

// String implements layers.Module.
func (l *Linear) String() string {
	return fmt.Sprintf("ensemble.Linear(in_features=%d, out_features=%d, ensemble_size=%d, share_input=%v, bias=%v)",
		l.inFeatures, l.outFeatures, l.ensembleSize, l.shareInput, l.useBias)
}

// ResetParameters draws every element of the weights, and of the biases if trainable, independently
// from U[-1/sqrt(inFeatures), 1/sqrt(inFeatures)], using the context random number generator.
// A disabled (zero) bias is left untouched.
func (l *Linear) ResetParameters() error {
	l.resetParameters(l.ctx)
	return nil
}

func (l *Linear) resetParameters(ctx *context.Context) {
	initFn := initializers.FanInUniform(l.inFeatures)
	ctx.WithRNG(func(rng *rand.Rand) {
		initFn(rng, l.weights.Value())
		if l.useBias {
			initFn(rng, l.biases.Value())
		}
	})
	klog.V(1).Infof("%s: parameters reset", l.weights.Scope())
}

// InitWeights implements layers.WeightInitializer. What it does depends on the ParamWeightInit
// hyperparameter (read from ctx):
//
//   - WeightInitFanInUniform (default): same as ResetParameters, using ctx random number generator.
//     gain is ignored.
//   - WeightInitOrthogonal: the weights of each member are set to an independent orthogonal matrix
//     scaled by gain, and trainable biases are zeroed.
func (l *Linear) InitWeights(ctx *context.Context, gain float64) error {
	policy := context.GetParamOr(ctx, ParamWeightInit, WeightInitFanInUniform)
	switch policy {
	case WeightInitFanInUniform:
		l.resetParameters(ctx)
	case WeightInitOrthogonal:
		ctx.WithRNG(func(rng *rand.Rand) {
			initializers.OrthogonalSlices(gain)(rng, l.weights.Value())
		})
		if l.useBias {
			initializers.Zero(nil, l.biases.Value())
		}
	default:
		return errors.Errorf("unknown value %q for hyperparameter %q, valid values are %q or %q",
			policy, ParamWeightInit, WeightInitFanInUniform, WeightInitOrthogonal)
	}
	return nil
}

// Forward implements layers.Module.
//
// If the layer shares the input, x must be shaped [..., inFeatures]. Otherwise, x must be shaped
// [E, ..., inFeatures] and member e only sees x[e]. In both cases the output is shaped [E, ..., outFeatures],
// where
//
//	output[e, ..., k] = Σ_j x[(e,) ..., j] * weights[j, k, e] + biases[k, e]
//
// It returns an error wrapping shapes.ErrShapeMismatch if x's last axis is not inFeatures, if x's first
// axis is not E (non-shared input), or if x's dtype is not the layer's dtype.
func (l *Linear) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	if x == nil || !x.Ok() {
		return nil, errors.Wrapf(shapes.ErrShapeMismatch, "%s: invalid input tensor", l)
	}
	shape := x.Shape()
	minRank := 1
	if !l.shareInput {
		minRank = 2
	}
	if err := shape.CheckMinRank(minRank); err != nil {
		return nil, errors.WithMessagef(err, "%s", l)
	}
	if shape.DType != l.dtype {
		return nil, errors.Wrapf(shapes.ErrShapeMismatch, "%s: input dtype %s doesn't match layer dtype %s",
			l, shape.DType, l.dtype)
	}
	if shape.Dim(-1) != l.inFeatures {
		return nil, errors.Wrapf(shapes.ErrShapeMismatch, "%s: input shape %s should have last axis with dimension %d",
			l, shape, l.inFeatures)
	}
	batchAxes := shape.Dimensions[:shape.Rank()-1]
	if !l.shareInput {
		if shape.Dimensions[0] != l.ensembleSize {
			return nil, errors.Wrapf(shapes.ErrShapeMismatch,
				"%s: input shape %s should have first axis with dimension %d (ensemble size)",
				l, shape, l.ensembleSize)
		}
		batchAxes = batchAxes[1:]
	}

	p := kernels.ContractParams{
		EnsembleSize: l.ensembleSize,
		BatchSize:    xslices.Product(batchAxes),
		InFeatures:   l.inFeatures,
		OutFeatures:  l.outFeatures,
		Shared:       l.shareInput,
	}
	var biases *tensors.Tensor
	if l.useBias {
		biases = l.biases.Value()
	}
	outputDims := make([]int, 0, len(batchAxes)+2)
	outputDims = append(outputDims, l.ensembleSize)
	outputDims = append(outputDims, batchAxes...)
	outputDims = append(outputDims, l.outFeatures)
	return kernels.ContractTensors(x, l.weights.Value(), biases, p, outputDims...), nil
}

// Member returns copies of the weights (shaped [inFeatures, outFeatures]) and biases (shaped [outFeatures])
// of the ensemble member e.
func (l *Linear) Member(e int) (weights, biases *tensors.Tensor, err error) {
	if e < 0 || e >= l.ensembleSize {
		return nil, nil, errors.Errorf("%s: member %d out of range", l, e)
	}
	allWeights := tensors.ToFloat64s(l.weights.Value())
	memberWeights := make([]float64, l.inFeatures*l.outFeatures)
	for ii := range memberWeights {
		memberWeights[ii] = allWeights[ii*l.ensembleSize+e]
	}
	allBiases := tensors.ToFloat64s(l.biases.Value())
	memberBiases := make([]float64, l.outFeatures)
	for k := range memberBiases {
		memberBiases[k] = allBiases[k*l.ensembleSize+e]
	}
	weights = tensors.FromFloat64s(l.dtype, memberWeights, l.inFeatures, l.outFeatures)
	biases = tensors.FromFloat64s(l.dtype, memberBiases, l.outFeatures)
	return
}
