// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fnn

import (
	"math"

	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/ml/layers/activations"
	"github.com/spectralrl/goensemble/ml/layers/ensemble"
)

// MiniBlockConfig is created with MiniBlock, configured with its methods, and then Done builds the modules.
type MiniBlockConfig struct {
	ctx                 *context.Context
	inputDim, outputDim int
	normalization       string
	activation          activations.Type
	dropoutRate         float64
	useEnsemble         bool
	ensembleSize        int
	shareInput, useBias bool
}

// MiniBlock starts the configuration of a miniblock mapping inputDim features to outputDim features.
// Variables are created under the current scope of ctx.
//
// By default, it has a plain linear layer with bias, and no normalization, activation or dropout.
func MiniBlock(ctx *context.Context, inputDim, outputDim int) *MiniBlockConfig {
	return &MiniBlockConfig{
		ctx:           ctx,
		inputDim:      inputDim,
		outputDim:     outputDim,
		normalization: NormalizationNone,
		activation:    activations.TypeNone,
		ensembleSize:  1,
		shareInput:    true,
		useBias:       true,
	}
}

// Normalization sets the normalization applied after the linear layer: NormalizationLayer or NormalizationNone.
func (c *MiniBlockConfig) Normalization(normalization string) *MiniBlockConfig {
	c.normalization = normalization
	return c
}

// Activation sets the activation applied after normalization. activations.TypeNone means no activation.
func (c *MiniBlockConfig) Activation(activation activations.Type) *MiniBlockConfig {
	c.activation = activation
	return c
}

// Dropout sets the dropout rate applied at the end of the block. Any rate <= 0 means no dropout.
func (c *MiniBlockConfig) Dropout(rate float64) *MiniBlockConfig {
	c.dropoutRate = rate
	return c
}

// Ensemble makes the block use an ensemble.Linear layer with the given size and input sharing mode,
// instead of a plain layers.Linear.
func (c *MiniBlockConfig) Ensemble(size int, shareInput bool) *MiniBlockConfig {
	c.useEnsemble = true
	c.ensembleSize = size
	c.shareInput = shareInput
	return c
}

// UseBias sets whether the linear layer has a bias.
func (c *MiniBlockConfig) UseBias(useBias bool) *MiniBlockConfig {
	c.useBias = useBias
	return c
}

// Done builds the modules of the block, in order: linear layer, normalization (if any),
// activation (if any) and dropout (if rate > 0).
func (c *MiniBlockConfig) Done() ([]layers.Module, error) {
	var modules []layers.Module
	var linear layers.Module
	var err error
	if c.useEnsemble {
		linear, err = ensemble.New(c.ctx, c.inputDim, c.outputDim).
			EnsembleSize(c.ensembleSize).
			ShareInput(c.shareInput).
			UseBias(c.useBias).
			Done()
	} else {
		linear, err = layers.NewLinear(c.ctx, c.inputDim, c.outputDim, c.useBias)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "miniblock in scope %q", c.ctx.Scope())
	}
	modules = append(modules, linear)

	norm, err := newNormalization(c.ctx, c.normalization, c.outputDim)
	if err != nil {
		return nil, errors.WithMessagef(err, "miniblock in scope %q", c.ctx.Scope())
	}
	if norm != nil {
		modules = append(modules, norm)
	}
	if c.activation != activations.TypeNone {
		modules = append(modules, layers.Activation{Type: c.activation})
	}
	if c.dropoutRate > 0 || math.IsNaN(c.dropoutRate) {
		dropout, err := layers.NewDropout(c.ctx, c.dropoutRate)
		if err != nil {
			return nil, errors.WithMessagef(err, "miniblock in scope %q", c.ctx.Scope())
		}
		modules = append(modules, dropout)
	}
	return modules, nil
}
