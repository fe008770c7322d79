// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels implements the CPU numeric kernels used by the layers.
//
// The main one is EnsembleContract, the batched contraction evaluating E affine maps
// in a single call.
package kernels

import (
	"github.com/gomlx/exceptions"
	"github.com/spectralrl/goensemble/internal/workerspool"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
	"k8s.io/klog/v2"
)

// Float is the constraint of the types the kernels compute with.
type Float interface {
	float32 | float64
}

// ContractParams describes the operands of EnsembleContract.
//
// The operands are flat row-major slices:
//
//   - x: [BatchSize, InFeatures] if Shared, else [EnsembleSize, BatchSize, InFeatures].
//   - weights: [InFeatures, OutFeatures, EnsembleSize].
//   - biases: [OutFeatures, EnsembleSize], or nil for no bias.
//   - output: [EnsembleSize, BatchSize, OutFeatures].
//
// BatchSize is the product of all the "batch" axes of the input.
type ContractParams struct {
	EnsembleSize, BatchSize, InFeatures, OutFeatures int
	Shared                                           bool
}

// xStride returns the stride of the ensemble axis of x: 0 means x is broadcast to all members.
func (p ContractParams) xStride() int {
	if p.Shared {
		return 0
	}
	return p.BatchSize * p.InFeatures
}

func (p ContractParams) xSize() int {
	if p.Shared {
		return p.BatchSize * p.InFeatures
	}
	return p.EnsembleSize * p.BatchSize * p.InFeatures
}

// Workers is the pool used to split the kernels work. Use Workers.SetMaxParallelism(0) to run
// everything on the calling goroutine.
var Workers = workerspool.New()

// ParallelThreshold is the number of multiply-adds below which EnsembleContract runs
// on the calling goroutine.
var ParallelThreshold = 1 << 16

// EnsembleContract computes for every ensemble member e, batch row n and output feature k:
//
//	output[e, n, k] = Σ_j x[(e,) n, j] * weights[j, k, e] + biases[k, e]
//
// Shared and non-shared inputs go through the same routine: a shared input simply has a zero
// stride on the ensemble axis. The work is split over (e, n) rows among the Workers, and the
// inner products are gonum BLAS strided dots over the weights column (k, e).
//
// It panics if the slices don't have the sizes described by ContractParams.
func EnsembleContract[T Float](output, x, weights, biases []T, p ContractParams) {
	numMembers, batchSize, inFeatures, outFeatures := p.EnsembleSize, p.BatchSize, p.InFeatures, p.OutFeatures
	if numMembers <= 0 || batchSize <= 0 || inFeatures <= 0 || outFeatures <= 0 {
		exceptions.Panicf("kernels.EnsembleContract: invalid params %+v", p)
	}
	if len(x) != p.xSize() || len(weights) != inFeatures*outFeatures*numMembers ||
		len(output) != numMembers*batchSize*outFeatures ||
		(biases != nil && len(biases) != outFeatures*numMembers) {
		exceptions.Panicf("kernels.EnsembleContract: operand sizes (x=%d, weights=%d, biases=%d, output=%d) don't match params %+v",
			len(x), len(weights), len(biases), len(output), p)
	}

	numRows := numMembers * batchSize
	work := numRows * inFeatures * outFeatures
	numWorkers := min(Workers.MaxParallelism()+1, numRows) // +1 for the calling goroutine.
	if work < ParallelThreshold || numWorkers <= 1 {
		contractRows(output, x, weights, biases, p, 0, numRows)
		return
	}
	klog.V(2).Infof("kernels.EnsembleContract: %d rows split in %d chunks", numRows, numWorkers)
	Workers.ParallelRange(numRows, numWorkers, func(start, end int) {
		contractRows(output, x, weights, biases, p, start, end)
	})
}

// contractRows computes output rows [start, end), where row r = e*BatchSize + n.
func contractRows[T Float](output, x, weights, biases []T, p ContractParams, start, end int) {
	numMembers, batchSize, inFeatures, outFeatures := p.EnsembleSize, p.BatchSize, p.InFeatures, p.OutFeatures
	xStride := p.xStride()
	weightsIncrement := outFeatures * numMembers
	for row := start; row < end; row++ {
		member, n := row/batchSize, row%batchSize
		xOffset := member*xStride + n*inFeatures
		xRow := x[xOffset : xOffset+inFeatures]
		outRow := output[row*outFeatures : (row+1)*outFeatures]
		for k := range outFeatures {
			column := k*numMembers + member
			value := dot(inFeatures, xRow, weights[column:], weightsIncrement)
			if biases != nil {
				value += biases[column]
			}
			outRow[k] = value
		}
	}
}

// dot of x (contiguous) with the n values of y separated by incY.
func dot[T Float](n int, x, y []T, incY int) T {
	switch xs := any(x).(type) {
	case []float32:
		return T(blas32.Dot(
			blas32.Vector{N: n, Data: xs, Inc: 1},
			blas32.Vector{N: n, Data: any(y).([]float32), Inc: incY}))
	case []float64:
		return T(blas64.Dot(
			blas64.Vector{N: n, Data: xs, Inc: 1},
			blas64.Vector{N: n, Data: any(y).([]float64), Inc: incY}))
	}
	exceptions.Panicf("kernels.dot: unsupported type %T", x)
	return 0
}
