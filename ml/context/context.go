// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package context defines the Context and Variable types: Context organizes the hyperparameters,
// the variables and the random number generator shared by the layers of a model.
//
// A Context is a thin reference: a current scope (similar to a current directory) plus a pointer
// to the data shared by all references of the same tree. One changes scope with Context.In, which
// returns a new reference with the new scope set, still sharing everything else. E.g.:
//
//	ctx := context.New()
//	ctx.SetParam("ensemble_size", 5)
//	critic := ctx.In("critic")
//	critic.SetParam("ensemble_share_input", false)  // Only affects layers under "/critic".
//	layer, err := ensemble.New(critic.In("layer_0"), 17, 64).Done()
package context

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"
)

const (
	// ScopeSeparator is used between levels of scope. Scope names cannot use this character.
	ScopeSeparator = "/"

	// RootScope is the scope at the very root.
	RootScope = ScopeSeparator
)

const (
	// ParamRNGSeed is the context parameter (int) used to seed the random number generator when
	// it is first used. If not set, the generator is seeded from the clock.
	ParamRNGSeed = "rng_seed"

	// ParamTraining is the context parameter (bool) indicating whether the model is being used for
	// training. Layers like Dropout only act in training mode. Default is false.
	ParamTraining = "training"
)

// Context organizes the hyperparameters, variables and randomness of a model.
// See package documentation for details.
type Context struct {
	// scope for currently created variables and parameters.
	scope string

	// reuse of existing variables, if set to true.
	reuse bool

	data *contextData
}

// scopedVariableMap name to variable within a scope.
type scopedVariableMap map[string]*Variable

// contextData is shared among all Context references of the same tree.
type contextData struct {
	// params holds a model's building (hyper)parameters. Context is agnostic about their
	// semantics: they are interpreted by the various components independently.
	params *ScopedParams

	mu sync.RWMutex

	// variablesMap for this context organized per scope.
	variablesMap map[string]scopedVariableMap

	// variables is a plain list of all variables, in creation order.
	variables []*Variable

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns an empty context at the root scope.
func New() *Context {
	return &Context{
		scope: RootScope,
		data: &contextData{
			params:       NewScopedParams(),
			variablesMap: make(map[string]scopedVariableMap),
		},
	}
}

func (ctx *Context) copy() *Context {
	ctx2 := *ctx
	return &ctx2
}

// Scope returns the full scope path.
func (ctx *Context) Scope() string {
	return ctx.scope
}

// EscapeScopeName replaces ScopeSeparator in the string by "_".
func EscapeScopeName(scopeName string) string {
	return strings.ReplaceAll(scopeName, ScopeSeparator, "_")
}

// In returns a new reference to the Context with the extra given scope. No ScopeSeparator ("/") is
// allowed in scope.
//
// It panics with an empty scope or a scope with a separator.
func (ctx *Context) In(scope string) *Context {
	if scope == "" {
		exceptions.Panicf("context.In: cannot use empty scope")
	}
	if strings.Contains(scope, ScopeSeparator) {
		exceptions.Panicf("context.In: cannot use separator %q in scope element %q", ScopeSeparator, scope)
	}
	if ctx.scope == RootScope {
		return ctx.InAbsPath(ScopeSeparator + scope)
	}
	return ctx.InAbsPath(ctx.scope + ScopeSeparator + scope)
}

// Inf returns a new reference to the Context with the extra given scope built with fmt.Sprintf.
func (ctx *Context) Inf(format string, args ...any) *Context {
	return ctx.In(fmt.Sprintf(format, args...))
}

// InAbsPath returns a new reference to the Context with the given absolute scope path. It should start
// and have each element separated by ScopeSeparator.
func (ctx *Context) InAbsPath(scopePath string) *Context {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		exceptions.Panicf("context.InAbsPath: absolute scope path must start with separator %q, instead got %q",
			ScopeSeparator, scopePath)
	}
	ctx2 := ctx.copy()
	ctx2.scope = scopePath
	return ctx2
}

// SplitScope splits a "scope and name" path into its scope and name. E.g.: "/a/b/x" -> ("/a/b", "x"),
// "/x" -> ("/", "x"). If the path doesn't start with ScopeSeparator, scope is "" and name is the whole path.
func SplitScope(scopeAndName string) (scope, name string) {
	if !strings.HasPrefix(scopeAndName, ScopeSeparator) {
		return "", scopeAndName
	}
	separationIdx := strings.LastIndex(scopeAndName, ScopeSeparator)
	name = scopeAndName[separationIdx+1:]
	if separationIdx == 0 {
		return RootScope, name
	}
	return scopeAndName[:separationIdx], name
}

// Reuse returns a new reference to the Context set to reuse existing variables: VariableWithValue will
// return the existing variable (if the shape matches) instead of failing.
func (ctx *Context) Reuse() *Context {
	if ctx.reuse {
		return ctx
	}
	ctx2 := ctx.copy()
	ctx2.reuse = true
	return ctx2
}

// IsReuse returns whether Context is marked for reuse.
func (ctx *Context) IsReuse() bool { return ctx.reuse }

// GetParam returns the value for the given param key, searching successively from
// the current scope back to the root scope ("/"), in case the key is not found.
//
// E.g: if current scope is "/a/b", it will search for the key in "/a/b" scope, then
// in "/a" and finally in "/", and return the first result found.
func (ctx *Context) GetParam(key string) (value any, found bool) {
	return ctx.data.params.Get(ctx.scope, key)
}

// SetParam sets the given param in the current scope. It will be visible (by GetParam)
// within this scope and descendant scopes (but not by other scopes).
func (ctx *Context) SetParam(key string, value any) {
	ctx.data.params.Set(ctx.scope, key, value)
}

// SetParams sets a collection of parameters in the current scope, as with SetParam.
func (ctx *Context) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		ctx.data.params.Set(ctx.scope, key, value)
	}
}

// EnumerateParams enumerates all parameters for all scopes, sorted by scope and then key.
func (ctx *Context) EnumerateParams(fn func(scope, key string, value any)) {
	ctx.data.params.Enumerate(fn)
}

// GetParamOr either returns the value for the given param key in the context `ctx`,
// searching successively from the current scope back to the root scope ("/"), or if the
// key is not found, returns the given default value.
//
// If the value cannot be converted to T, it logs an error and returns defaultValue.
func GetParamOr[T any](ctx *Context, key string, defaultValue T) T {
	valueAny, found := ctx.GetParam(key)
	if !found {
		return defaultValue
	}
	if value, ok := valueAny.(T); ok {
		return value
	}

	// Try converting, for instance, an int could be converted to float64.
	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(defaultValue)
	if v.IsValid() && typeOfT != nil && v.CanConvert(typeOfT) {
		// Numbers can't be converted to strings.
		if typeOfT.Kind() != reflect.String || v.Kind() == reflect.String {
			return v.Convert(typeOfT).Interface().(T)
		}
	}
	klog.Errorf("Tried to read hyperparameter %q as %T, but failed because it was type %T.",
		key, defaultValue, valueAny)
	return defaultValue
}

// IsTraining returns whether the context is set for training: see ParamTraining.
func (ctx *Context) IsTraining() bool {
	return GetParamOr(ctx, ParamTraining, false)
}

// SetTraining marks the context (at its current scope) for training or inference.
func (ctx *Context) SetTraining(value bool) {
	ctx.SetParam(ParamTraining, value)
}

// GetVariable returns the variable in the current scope with the given name, or nil if it doesn't exist.
func (ctx *Context) GetVariable(name string) *Variable {
	return ctx.GetVariableByScopeAndName(ctx.scope, name)
}

// GetVariableByScopeAndName returns the variable with the given scope and name, or nil if it doesn't exist.
func (ctx *Context) GetVariableByScopeAndName(scope, name string) *Variable {
	ctx.data.mu.RLock()
	defer ctx.data.mu.RUnlock()
	scopeVars, ok := ctx.data.variablesMap[scope]
	if !ok {
		return nil
	}
	return scopeVars[name]
}

// VariableWithValue creates a variable in the current scope, holding the given tensor.
// The variable takes ownership of the tensor.
//
// By default, it is an error to create a variable that already exists. If the context is in
// Reuse mode, the existing variable is returned instead, as long as it has the same shape.
//
// Variables are created trainable.
func (ctx *Context) VariableWithValue(name string, value *tensors.Tensor) (*Variable, error) {
	if value == nil || !value.Ok() {
		return nil, errors.Errorf("invalid value for variable %q in scope %q", name, ctx.scope)
	}
	data := ctx.data
	data.mu.Lock()
	defer data.mu.Unlock()
	existing, err := ctx.lookupForCreationLocked(name, value.Shape())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	scopeVars, ok := data.variablesMap[ctx.scope]
	if !ok {
		scopeVars = make(scopedVariableMap)
		data.variablesMap[ctx.scope] = scopeVars
	}
	v := &Variable{
		name:      name,
		scope:     ctx.scope,
		value:     value,
		trainable: true,
	}
	scopeVars[name] = v
	data.variables = append(data.variables, v)
	klog.V(2).Infof("context: created variable %s", v)
	return v, nil
}

// CheckVariable returns the error VariableWithValue would return for a variable with the given name
// and shape in the current scope, without creating anything. It returns nil if the variable can be
// created, or reused in Reuse mode.
func (ctx *Context) CheckVariable(name string, shape shapes.Shape) error {
	ctx.data.mu.RLock()
	defer ctx.data.mu.RUnlock()
	_, err := ctx.lookupForCreationLocked(name, shape)
	return err
}

// lookupForCreationLocked returns the variable to reuse for name, or nil if a new one should be created.
// ctx.data.mu must be held.
func (ctx *Context) lookupForCreationLocked(name string, shape shapes.Shape) (*Variable, error) {
	if name == "" || strings.Contains(name, ScopeSeparator) {
		return nil, errors.Errorf("invalid variable name %q in scope %q", name, ctx.scope)
	}
	v, found := ctx.data.variablesMap[ctx.scope][name]
	if !found {
		return nil, nil
	}
	if !ctx.reuse {
		return nil, errors.Errorf("variable %q already exists in scope %q, use Context.Reuse() to reuse it",
			name, ctx.scope)
	}
	if !v.Shape().Equal(shape) {
		return nil, errors.Errorf("reusing variable %q in scope %q with shape %s, but requested shape %s",
			name, ctx.scope, v.Shape(), shape)
	}
	return v, nil
}

// EnumerateVariables will call fn for each variable in the context, in creation order.
// Notice the order of visitation is deterministic.
func (ctx *Context) EnumerateVariables(fn func(v *Variable)) {
	ctx.data.mu.RLock()
	variables := make([]*Variable, len(ctx.data.variables))
	copy(variables, ctx.data.variables)
	ctx.data.mu.RUnlock()
	for _, v := range variables {
		fn(v)
	}
}

// EnumerateVariablesInScope is similar to EnumerateVariables, but enumerate only those under the current
// context scope (including sub-scopes).
func (ctx *Context) EnumerateVariablesInScope(fn func(v *Variable)) {
	prefix := ctx.scope
	if prefix != RootScope {
		prefix += ScopeSeparator
	}
	ctx.EnumerateVariables(func(v *Variable) {
		if ctx.scope == RootScope || v.scope == ctx.scope || strings.HasPrefix(v.scope, prefix) {
			fn(v)
		}
	})
}

// NumVariables return the number of variables in this Context.
func (ctx *Context) NumVariables() int {
	ctx.data.mu.RLock()
	defer ctx.data.mu.RUnlock()
	return len(ctx.data.variables)
}

// NumParameters returns the summed-up number of all variables.
// It ignores the `DType`, so a `float64` will count as much as a `uint8`.
func (ctx *Context) NumParameters() int {
	total := 0
	ctx.EnumerateVariables(func(v *Variable) {
		total += v.Shape().Size()
	})
	return total
}

// Memory returns the total number of bytes used to store the values of the variables.
func (ctx *Context) Memory() uintptr {
	var total uintptr
	ctx.EnumerateVariables(func(v *Variable) {
		total += v.Shape().Memory()
	})
	return total
}
