// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fnn

import (
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/ml/layers/activations"
	"github.com/spectralrl/goensemble/ml/layers/ensemble"
	"github.com/spectralrl/goensemble/types/xslices"
	"k8s.io/klog/v2"
)

// MLPConfig is created with NewEnsembleMLP and can be configured with its methods, or simply setting the
// corresponding hyperparameters in the context.
type MLPConfig struct {
	ctx                 *context.Context
	inputDim, outputDim int
	hiddenDims          []int
	ensembleSize        int
	shareInput          bool
	activation          activations.Type
	normalization       string
	dropoutRate         float64
	ensembleSizeErr     error
}

// NewEnsembleMLP starts the configuration of a multi-layer perceptron made of ensemble miniblocks,
// mapping inputDim features to outputDim features for each member.
//
// The hidden layers are miniblocks with normalization, activation and dropout, and the output layer is
// a bare ensemble linear layer. Only the first layer may share its input: the following layers always
// take the [E, ..., features] output of the previous one.
//
// Defaults are taken from the hyperparameters ParamHiddenDims, activations.ParamActivation,
// ParamNormalization, ParamDropoutRate, ensemble.ParamEnsembleSize and ensemble.ParamShareInput.
func NewEnsembleMLP(ctx *context.Context, inputDim, outputDim int) *MLPConfig {
	c := &MLPConfig{
		ctx:           ctx,
		inputDim:      inputDim,
		outputDim:     outputDim,
		hiddenDims:    xslices.Copy(context.GetParamOr(ctx, ParamHiddenDims, []int(nil))),
		shareInput:    context.GetParamOr(ctx, ensemble.ParamShareInput, true),
		activation:    activations.FromContext(ctx),
		normalization: context.GetParamOr(ctx, ParamNormalization, NormalizationNone),
		dropoutRate:   context.GetParamOr(ctx, ParamDropoutRate, 0.0),
	}
	c.ensembleSize, c.ensembleSizeErr = ensemble.EnsembleSizeFromContext(ctx)
	return c
}

// HiddenDims sets the dimensions of the hidden layers. No dimensions means no hidden layers.
func (c *MLPConfig) HiddenDims(dims ...int) *MLPConfig {
	c.hiddenDims = dims
	return c
}

// EnsembleSize sets the number of members of the ensemble.
func (c *MLPConfig) EnsembleSize(size int) *MLPConfig {
	c.ensembleSize = size
	c.ensembleSizeErr = nil
	return c
}

// ShareInput sets whether the input is shared by all members (shaped [..., inputDim]), or given
// per member (shaped [E, ..., inputDim]).
func (c *MLPConfig) ShareInput(share bool) *MLPConfig {
	c.shareInput = share
	return c
}

// Activation of the hidden layers.
func (c *MLPConfig) Activation(activation activations.Type) *MLPConfig {
	c.activation = activation
	return c
}

// Normalization of the hidden layers: NormalizationLayer or NormalizationNone.
func (c *MLPConfig) Normalization(normalization string) *MLPConfig {
	c.normalization = normalization
	return c
}

// Dropout rate of the hidden layers. Any rate <= 0 means no dropout.
func (c *MLPConfig) Dropout(rate float64) *MLPConfig {
	c.dropoutRate = rate
	return c
}

// Done builds the MLP.
func (c *MLPConfig) Done() (*layers.Sequential, error) {
	if c.ensembleSizeErr != nil {
		return nil, errors.WithMessage(c.ensembleSizeErr, "fnn.NewEnsembleMLP")
	}
	model := layers.NewSequential()
	prevDim := c.inputDim
	for ii, dim := range c.hiddenDims {
		block, err := MiniBlock(c.ctx.Inf("hidden_%d", ii), prevDim, dim).
			Ensemble(c.ensembleSize, ii == 0 && c.shareInput).
			Normalization(c.normalization).
			Activation(c.activation).
			Dropout(c.dropoutRate).
			Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "fnn.NewEnsembleMLP hidden layer #%d", ii)
		}
		model.Append(block...)
		prevDim = dim
	}
	output, err := MiniBlock(c.ctx.In("output"), prevDim, c.outputDim).
		Ensemble(c.ensembleSize, len(c.hiddenDims) == 0 && c.shareInput).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "fnn.NewEnsembleMLP output layer")
	}
	model.Append(output...)
	klog.V(1).Infof("fnn.NewEnsembleMLP in scope %q: %d modules", c.ctx.Scope(), model.Len())
	return model, nil
}
