// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/context/initializers"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
)

// DefaultLayerNormEpsilon is added to the variance before taking the square root.
const DefaultLayerNormEpsilon = 1e-5

// LayerNorm normalizes its input over the last axis, and then applies a learned scale ("gain") and
// offset ("offset"), both shaped [dim].
//
// Layer normalization behaves the same during training and inference, as opposed to batch normalization.
type LayerNorm struct {
	dim          int
	epsilon      float64
	dtype        dtypes.DType
	gain, offset *context.Variable
}

var (
	_ Module       = (*LayerNorm)(nil)
	_ HasVariables = (*LayerNorm)(nil)
)

// NewLayerNorm creates a LayerNorm for inputs with last axis of dimension dim. The gain is initialized
// with ones and the offset with zeros.
func NewLayerNorm(ctx *context.Context, dim int) (*LayerNorm, error) {
	dtype, err := DTypeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, errors.Wrapf(shapes.ErrInvalidShape, "layers.NewLayerNorm(dim=%d) must be positive", dim)
	}
	ln := &LayerNorm{dim: dim, epsilon: DefaultLayerNormEpsilon, dtype: dtype}
	ln.gain, err = ctx.VariableWithValue("gain", tensors.FromShape(shapes.Make(dtype, dim)))
	if err != nil {
		return nil, err
	}
	initializers.One(nil, ln.gain.Value())
	ln.offset, err = ctx.VariableWithValue("offset", tensors.FromShape(shapes.Make(dtype, dim)))
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Epsilon sets the value added to the variance for numerical stability. It returns itself.
func (ln *LayerNorm) Epsilon(value float64) *LayerNorm {
	ln.epsilon = value
	return ln
}

// String implements Module.
func (ln *LayerNorm) String() string {
	return fmt.Sprintf("LayerNorm(%d, epsilon=%g)", ln.dim, ln.epsilon)
}

// Variables implements HasVariables.
func (ln *LayerNorm) Variables() []*context.Variable {
	return []*context.Variable{ln.gain, ln.offset}
}

// Forward implements Module.
func (ln *LayerNorm) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	if err := checkInput(x, ln.dtype, ln.dim); err != nil {
		return nil, errors.WithMessagef(err, "%s", ln)
	}
	values := tensors.ToFloat64s(x)
	gain := tensors.ToFloat64s(ln.gain.Value())
	offset := tensors.ToFloat64s(ln.offset.Value())
	for start := 0; start < len(values); start += ln.dim {
		row := values[start : start+ln.dim]
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(ln.dim)
		var variance float64
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(ln.dim)
		scale := 1 / math.Sqrt(variance+ln.epsilon)
		for ii, v := range row {
			row[ii] = (v-mean)*scale*gain[ii] + offset[ii]
		}
	}
	return tensors.FromFloat64s(ln.dtype, values, x.Shape().Dimensions...), nil
}
