// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"strings"
	"sync"

	"github.com/spectralrl/goensemble/types/xslices"
)

// ScopedParams provides a mapping from string to any data type that is "scoped":
//
//   - For every scope there is a map of string to data.
//   - Accessing a key triggers a search from the current scope up to the root scope, the
//     first result found is returned.
//
// Example: let's say the current ScopedParams hold:
//
//	Scope: "/": { "x":10, "y": 20, "z": 40 }
//	Scope: "/a": { "y": 30 }
//	Scope: "/a/b": { "x": 100 }
//
//	ScopedParams.Get("/a/b", "x") -> 100
//	ScopedParams.Get("/a/b", "y") -> 30
//	ScopedParams.Get("/a/b", "z") -> 40
//	ScopedParams.Get("/a/b", "w") -> Not found.
//
// Notice that "/" (== ScopeSeparator constant) separates parts of the scope path, and the root
// scope is referred to as "/". There is no "empty" scope, and every scope name must start with
// a ScopeSeparator.
//
// It is safe for concurrent use.
type ScopedParams struct {
	mu         sync.RWMutex
	scopeToMap map[string]map[string]any
}

// NewScopedParams create an empty ScopedParams.
func NewScopedParams() *ScopedParams {
	return &ScopedParams{
		scopeToMap: make(map[string]map[string]any),
	}
}

// Set sets the value for the given key, in the given scope.
func (p *ScopedParams) Set(scope, key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dataMap, found := p.scopeToMap[scope]
	if !found || dataMap == nil {
		dataMap = make(map[string]any)
		p.scopeToMap[scope] = dataMap
	}
	dataMap[key] = value
}

// Get retrieves the value for the given key in the given scope or any parent scope.
// E.g: Get("/a/b", "myKey") will search for "myKey" in scopes "/a/b", "/a" and "/"
// consecutively until "myKey" is found.
//
// It returns the first value found if any, and whether some value was found.
func (p *ScopedParams) Get(scope, key string) (value any, found bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for {
		if dataMap, ok := p.scopeToMap[scope]; ok {
			if value, found = dataMap[key]; found {
				return
			}
		}
		if scope == RootScope || scope == "" {
			return nil, false
		}
		scope = parentScope(scope)
	}
}

// parentScope of scope, e.g. "/a/b" -> "/a", "/a" -> "/".
func parentScope(scope string) string {
	idx := strings.LastIndex(scope, ScopeSeparator)
	if idx <= 0 {
		return RootScope
	}
	return scope[:idx]
}

// Enumerate enumerates all parameters stored in the ScopedParams structure and calls the given closure with
// them, sorted by scope and then by key.
func (p *ScopedParams) Enumerate(fn func(scope, key string, value any)) {
	p.mu.RLock()
	type entry struct {
		scope, key string
		value      any
	}
	var entries []entry
	for _, scope := range xslices.SortedKeys(p.scopeToMap) {
		keyValues := p.scopeToMap[scope]
		for _, key := range xslices.SortedKeys(keyValues) {
			entries = append(entries, entry{scope, key, keyValues[key]})
		}
	}
	p.mu.RUnlock()
	for _, e := range entries {
		fn(e.scope, e.key, e.value)
	}
}
