// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"time"

	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"
)

// SetRNGSeed resets the random number generator of the context tree with the given seed.
func (ctx *Context) SetRNGSeed(seed uint64) {
	data := ctx.data
	data.rngMu.Lock()
	defer data.rngMu.Unlock()
	data.rng = rand.New(rand.NewSource(seed))
}

// WithRNG calls fn with the random number generator of the context tree, holding its lock.
// fn must not call WithRNG itself.
//
// If the generator hasn't been used yet, it is created with the seed given by the ParamRNGSeed
// parameter, if set, or with a clock based seed otherwise.
func (ctx *Context) WithRNG(fn func(rng *rand.Rand)) {
	data := ctx.data
	data.rngMu.Lock()
	defer data.rngMu.Unlock()
	if data.rng == nil {
		var seed uint64
		if _, found := ctx.GetParam(ParamRNGSeed); found {
			seed = uint64(GetParamOr(ctx, ParamRNGSeed, int64(0)))
		} else {
			seed = uint64(time.Now().UnixNano())
			klog.V(1).Infof("context: random number generator seeded from clock with %d", seed)
		}
		data.rng = rand.New(rand.NewSource(seed))
	}
	fn(data.rng)
}
