// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fnn implements builders for feedforward networks made of miniblocks: a linear layer (plain or
// ensemble), optionally followed by normalization, activation and dropout.
//
// It also provides support for various hyperparameter configuration, so the defaults can be given by
// the context parameters.
//
// E.g: an ensemble of 5 critics, each with 2 hidden layers of 256 units:
//
//	critic, err := fnn.NewEnsembleMLP(ctx.In("critic"), observationDim+actionDim, 1).
//		HiddenDims(256, 256).
//		EnsembleSize(5).
//		Activation(activations.TypeRelu).
//		Normalization("layer").
//		Done()
//	q, err := critic.Forward(x)  // x: [batch, observationDim+actionDim] -> q: [5, batch, 1]
package fnn

import (
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
)

const (
	// ParamHiddenDims is the hyperparameter ([]int) that defines the default dimensions of the hidden layers.
	// The default is no hidden layers.
	ParamHiddenDims = "fnn_hidden_dims"

	// ParamNormalization is the hyperparameter that defines the default normalization of the hidden layers:
	// "layer" or "none". The default is "none".
	ParamNormalization = "fnn_normalization"

	// ParamDropoutRate is the hyperparameter that defines the default dropout rate of the hidden layers.
	// The default is 0, meaning no dropout. Any value <= 0 disables dropout.
	ParamDropoutRate = "fnn_dropout_rate"
)

const (
	// NormalizationNone means no normalization.
	NormalizationNone = "none"

	// NormalizationLayer means layer normalization, see layers.LayerNorm.
	NormalizationLayer = "layer"
)

// newNormalization returns the normalization module for the given name, or nil for no normalization.
func newNormalization(ctx *context.Context, normalization string, dim int) (layers.Module, error) {
	switch normalization {
	case "", NormalizationNone:
		return nil, nil
	case NormalizationLayer:
		return layers.NewLayerNorm(ctx.In("layer_norm"), dim)
	}
	return nil, errors.Errorf("unknown normalization %q, valid values are %q or %q",
		normalization, NormalizationLayer, NormalizationNone)
}
