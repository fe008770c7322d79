// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package initializers

import (
	"github.com/gomlx/exceptions"
	"github.com/spectralrl/goensemble/types/tensors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Orthogonal returns an initializer for rank >= 2 tensors that fills them with a (semi-)orthogonal
// matrix scaled by gain.
//
// The tensor is viewed as a matrix with the first axis as rows and all the remaining axes flattened as
// columns. If rows >= cols the columns are orthonormal (Wᵀ·W = gain²·I), otherwise the rows are.
//
// The matrix comes from the QR decomposition of a random normal matrix, with the signs of Q's columns
// fixed by the diagonal of R, so the result is uniformly distributed.
func Orthogonal(gain float64) VariableInitializer {
	return func(rng *rand.Rand, t *tensors.Tensor) {
		assertFloat("Orthogonal", t)
		if t.Rank() < 2 {
			exceptions.Panicf("initializers.Orthogonal: requires tensors with rank >= 2, got shape %s", t.Shape())
		}
		rows := t.Shape().Dimensions[0]
		cols := t.Size() / rows
		tensors.AssignFloat64s(t, orthogonalMatrix(rng, rows, cols, gain))
	}
}

// OrthogonalSlices returns an initializer for rank-3 tensors shaped [rows, cols, numSlices] that fills
// each slice t[:, :, i] with an independent orthogonal matrix scaled by gain: see Orthogonal.
//
// This is how the weights of an ensemble of linear layers are initialized, with one slice per member.
func OrthogonalSlices(gain float64) VariableInitializer {
	return func(rng *rand.Rand, t *tensors.Tensor) {
		assertFloat("OrthogonalSlices", t)
		if t.Rank() != 3 {
			exceptions.Panicf("initializers.OrthogonalSlices: requires rank-3 tensors, got shape %s", t.Shape())
		}
		dims := t.Shape().Dimensions
		rows, cols, numSlices := dims[0], dims[1], dims[2]
		values := make([]float64, t.Size())
		for slice := range numSlices {
			matrix := orthogonalMatrix(rng, rows, cols, gain)
			for ii, v := range matrix {
				values[ii*numSlices+slice] = v
			}
		}
		tensors.AssignFloat64s(t, values)
	}
}

// orthogonalMatrix returns a rows x cols (semi-)orthogonal matrix, flat in row-major order.
func orthogonalMatrix(rng *rand.Rand, rows, cols int, gain float64) []float64 {
	// QR needs a tall matrix: factorize the transposed problem when rows < cols.
	m, n := max(rows, cols), min(rows, cols)
	normal := make([]float64, m*n)
	for ii := range normal {
		normal[ii] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(m, n, normal))
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	result := make([]float64, rows*cols)
	for j := range n {
		sign := gain
		if r.At(j, j) < 0 {
			sign = -gain
		}
		for i := range m {
			value := sign * q.At(i, j)
			if rows >= cols {
				result[i*cols+j] = value
			} else {
				result[j*cols+i] = value
			}
		}
	}
	return result
}
