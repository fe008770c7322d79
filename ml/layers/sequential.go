// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers/activations"
	"github.com/spectralrl/goensemble/types/tensors"
)

// Activation wraps an activations.Type as a Module.
type Activation struct {
	Type activations.Type
}

var _ Module = Activation{}

// String implements Module.
func (a Activation) String() string {
	return fmt.Sprintf("Activation(%s)", a.Type)
}

// Forward implements Module.
func (a Activation) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	if x == nil || !x.Ok() {
		return nil, errors.New("layers.Activation: invalid input tensor")
	}
	return activations.Apply(a.Type, x), nil
}

// Sequential chains modules: the output of one is the input of the next.
type Sequential struct {
	modules []Module
}

var (
	_ Module            = (*Sequential)(nil)
	_ HasVariables      = (*Sequential)(nil)
	_ WeightInitializer = (*Sequential)(nil)
)

// NewSequential creates a Sequential with the given modules.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Append modules to the end of the chain. It returns itself.
func (s *Sequential) Append(modules ...Module) *Sequential {
	s.modules = append(s.modules, modules...)
	return s
}

// Modules returns the chained modules.
func (s *Sequential) Modules() []Module { return s.modules }

// Len returns the number of chained modules.
func (s *Sequential) Len() int { return len(s.modules) }

// Forward implements Module.
func (s *Sequential) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	var err error
	for ii, module := range s.modules {
		x, err = module.Forward(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "Sequential module #%d", ii)
		}
	}
	return x, nil
}

// String implements Module. It lists one module per line.
func (s *Sequential) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(\n")
	for ii, module := range s.modules {
		description := strings.ReplaceAll(module.String(), "\n", "\n  ")
		_, _ = fmt.Fprintf(&sb, "  (%d): %s\n", ii, description)
	}
	sb.WriteString(")")
	return sb.String()
}

// Variables implements HasVariables, returning the variables of all chained modules.
func (s *Sequential) Variables() (vars []*context.Variable) {
	for _, module := range s.modules {
		if hasVars, ok := module.(HasVariables); ok {
			vars = append(vars, hasVars.Variables()...)
		}
	}
	return
}

// InitWeights implements WeightInitializer by calling InitWeights on all chained modules.
func (s *Sequential) InitWeights(ctx *context.Context, gain float64) error {
	return InitWeights(ctx, gain, s.modules...)
}

// InitWeights re-initializes the weights of the given modules, for those that implement WeightInitializer.
// Other modules are left untouched.
//
// Plain Linear layers get orthogonal weights scaled by gain and zero biases, while ensemble layers
// apply their own per-member rule.
func InitWeights(ctx *context.Context, gain float64, modules ...Module) error {
	for _, module := range modules {
		initializer, ok := module.(WeightInitializer)
		if !ok {
			continue
		}
		if err := initializer.InitWeights(ctx, gain); err != nil {
			return errors.WithMessagef(err, "initializing weights of %s", module)
		}
	}
	return nil
}
