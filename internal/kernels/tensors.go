// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/spectralrl/goensemble/types/shapes"
	"github.com/spectralrl/goensemble/types/tensors"
)

// ContractTensors runs EnsembleContract on tensors, and returns a new tensor shaped outputDimensions
// with the dtype of weights.
//
// x, weights and biases (if not nil) must share the same float dtype. Float16 and BFloat16 are computed in
// float32 and converted back.
func ContractTensors(x, weights, biases *tensors.Tensor, p ContractParams, outputDimensions ...int) *tensors.Tensor {
	dtype := weights.DType()
	if x.DType() != dtype || (biases != nil && biases.DType() != dtype) {
		exceptions.Panicf("kernels.ContractTensors: mixed dtypes x=%s, weights=%s", x.DType(), dtype)
	}
	output := tensors.FromShape(shapes.Make(dtype, outputDimensions...))
	switch dtype {
	case dtypes.Float32:
		contractTyped[float32](output, x, weights, biases, p)
	case dtypes.Float64:
		contractTyped[float64](output, x, weights, biases, p)
	case dtypes.Float16, dtypes.BFloat16:
		var biasValues []float32
		if biases != nil {
			biasValues = tensors.ToFloat32s(biases)
		}
		values := make([]float32, output.Size())
		EnsembleContract(values, tensors.ToFloat32s(x), tensors.ToFloat32s(weights), biasValues, p)
		tensors.AssignFloat32s(output, values)
	default:
		exceptions.Panicf("kernels.ContractTensors: dtype %s not supported", dtype)
	}
	return output
}

func contractTyped[T Float](output, x, weights, biases *tensors.Tensor, p ContractParams) {
	var biasesFlat []T
	if biases != nil {
		biasesFlat = tensors.CopyFlatData[T](biases)
	}
	tensors.ConstFlatData(x, func(xFlat []T) {
		tensors.ConstFlatData(weights, func(weightsFlat []T) {
			tensors.MutableFlatData(output, func(outputFlat []T) {
				EnsembleContract(outputFlat, xFlat, weightsFlat, biasesFlat, p)
			})
		})
	})
}
