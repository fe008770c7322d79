// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
)

// Variable is a value shared among the layers of a model, usually a weight, that is
// stored in a Context under a scope and a name.
//
// The value can be read concurrently. Replacing it with SetValue must not be done concurrently
// with readers of the value.
type Variable struct {
	name, scope string

	mu        sync.RWMutex
	value     *tensors.Tensor
	trainable bool
}

// Name of the variable within the scope.
func (v *Variable) Name() string { return v.name }

// Scope where the variable was created.
func (v *Variable) Scope() string { return v.scope }

// ScopeAndName is a convenience function that returns the combined scope and name of the variable.
// E.g.: "/critic/layer_0/weights".
func (v *Variable) ScopeAndName() string {
	if v.scope == RootScope {
		return RootScope + v.name
	}
	return v.scope + ScopeSeparator + v.name
}

// String implements stringer.
func (v *Variable) String() string {
	return fmt.Sprintf("%s %s", v.ScopeAndName(), v.Shape())
}

// Shape returns the variable shape.
func (v *Variable) Shape() shapes.Shape {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value.Shape()
}

// Value returns the tensor holding the variable value. Use it read-only: to change the
// values use SetValue or tensors.MutableFlatData.
func (v *Variable) Value() *tensors.Tensor {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// SetValue replaces the variable value. The new value must have the same shape.
func (v *Variable) SetValue(value *tensors.Tensor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if value == nil || !value.Shape().Equal(v.value.Shape()) {
		var got shapes.Shape
		if value != nil {
			got = value.Shape()
		}
		return errors.Wrapf(shapes.ErrShapeMismatch, "variable %s has shape %s, cannot set value with shape %s",
			v.ScopeAndName(), v.value.Shape(), got)
	}
	v.value = value
	return nil
}

// Trainable returns whether the variable is trainable, that is, whether it is a parameter an
// optimizer would update.
func (v *Variable) Trainable() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.trainable
}

// SetTrainable sets the variable trainable status. It returns itself to allow cascading calls.
func (v *Variable) SetTrainable(trainable bool) *Variable {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.trainable = trainable
	return v
}
