// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/types/tensors"
	"golang.org/x/exp/rand"
)

const (
	// ParamDropoutRate is the context hyperparameter with the default dropout rate. Default is 0.
	ParamDropoutRate = "dropout_rate"
)

// Dropout randomly zeroes values of its input with probability rate while training (see
// context.Context.IsTraining), and scales the remaining ones by 1/(1-rate). In inference it is the identity.
//
// A rate <= 0 means no dropout.
type Dropout struct {
	ctx  *context.Context
	rate float64
}

var _ Module = (*Dropout)(nil)

// NewDropout returns a Dropout module using ctx for the training status and the random number generator.
//
// A rate <= 0 disables dropout, and rate >= 1 or NaN is an error.
func NewDropout(ctx *context.Context, rate float64) (*Dropout, error) {
	if rate >= 1 || math.IsNaN(rate) {
		return nil, errors.Errorf("layers.NewDropout: rate must be < 1, got %g", rate)
	}
	return &Dropout{ctx: ctx, rate: max(rate, 0)}, nil
}

// Rate of dropout.
func (d *Dropout) Rate() float64 { return d.rate }

// String implements Module.
func (d *Dropout) String() string {
	return fmt.Sprintf("Dropout(p=%g)", d.rate)
}

// Forward implements Module. When not training, or if rate is 0, it returns x itself.
func (d *Dropout) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	if x == nil || !x.Ok() {
		return nil, errors.New("layers.Dropout: invalid input tensor")
	}
	if d.rate <= 0 || !d.ctx.IsTraining() {
		return x, nil
	}
	values := tensors.ToFloat64s(x)
	scale := 1 / (1 - d.rate)
	d.ctx.WithRNG(func(rng *rand.Rand) {
		for ii := range values {
			if rng.Float64() < d.rate {
				values[ii] = 0
			} else {
				values[ii] *= scale
			}
		}
	})
	return tensors.FromFloat64s(x.DType(), values, x.Shape().Dimensions...), nil
}
