// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/ml/layers/ensemble"
	"github.com/spectralrl/goensemble/types/tensors"
	"golang.org/x/exp/rand"
)

// firstEnsembleLayer returns the first ensemble layer of the model, which defines the shape of the input.
func firstEnsembleLayer(model *layers.Sequential) (*ensemble.Linear, error) {
	for _, module := range model.Modules() {
		if layer, ok := module.(*ensemble.Linear); ok {
			return layer, nil
		}
	}
	return nil, errors.New("model has no ensemble layer")
}

// createInput returns the input for the model: the rows of the CSV file csvPath if given, or a batch of
// random normal values otherwise.
//
// If the first layer doesn't share its input, the same examples are given to every member, with shape
// [ensembleSize, batchSize, inFeatures].
func createInput(ctx *context.Context, first *ensemble.Linear, csvPath string, batchSize int) (*tensors.Tensor, error) {
	inFeatures := first.InFeatures()
	var values []float64
	if csvPath != "" {
		var err error
		values, batchSize, err = loadCSV(csvPath, inFeatures)
		if err != nil {
			return nil, err
		}
	} else {
		if batchSize <= 0 {
			return nil, errors.Errorf("invalid batch size %d for random input", batchSize)
		}
		values = make([]float64, batchSize*inFeatures)
		ctx.WithRNG(func(rng *rand.Rand) {
			for ii := range values {
				values[ii] = rng.NormFloat64()
			}
		})
	}
	if first.ShareInput() {
		return tensors.FromFloat64s(first.DType(), values, batchSize, inFeatures), nil
	}
	ensembleSize := first.EnsembleSize()
	tiled := make([]float64, 0, ensembleSize*len(values))
	for range ensembleSize {
		tiled = append(tiled, values...)
	}
	return tensors.FromFloat64s(first.DType(), tiled, ensembleSize, batchSize, inFeatures), nil
}

// loadCSV reads a CSV file with a header and numFeatures numeric columns. It returns the flat row-major
// values and the number of rows.
func loadCSV(csvPath string, numFeatures int) (values []float64, numRows int, err error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open input %q", csvPath)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f, dataframe.HasHeader(true), dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, 0, errors.Wrapf(df.Err, "failed to parse CSV input %q", csvPath)
	}
	if df.Ncol() != numFeatures {
		return nil, 0, errors.Errorf("CSV input %q has %d columns (%v), but the model takes %d features",
			csvPath, df.Ncol(), df.Names(), numFeatures)
	}
	numRows = df.Nrow()
	if numRows == 0 {
		return nil, 0, errors.Errorf("CSV input %q has no rows", csvPath)
	}
	values = make([]float64, 0, numRows*numFeatures)
	for row := range numRows {
		for col := range numFeatures {
			value := df.Elem(row, col).Float()
			if math.IsNaN(value) {
				return nil, 0, errors.Errorf("CSV input %q: invalid value %q in row %d, column %q",
					csvPath, df.Elem(row, col).String(), row, df.Names()[col])
			}
			values = append(values, value)
		}
	}
	return values, numRows, nil
}
