// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// ensemble_inspect builds an ensemble MLP from the hyperparameters given with -set, reports its variables
// and runs forward passes on a CSV or random input.
//
// Example:
//
//	ensemble_inspect -in=3 -out=1 -summary -vars -set="ensemble_size=4;fnn_hidden_dims=16,16" -batch=2
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/ml/layers/activations"
	"github.com/spectralrl/goensemble/ml/layers/ensemble"
	"github.com/spectralrl/goensemble/ml/layers/fnn"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/spectralrl/goensemble/ui/commandline"
	"k8s.io/klog/v2"
)

var (
	flagInputDim  = flag.Int("in", 4, "Number of input features of the model.")
	flagOutputDim = flag.Int("out", 1, "Number of output features of each member of the ensemble.")
	flagSummary   = flag.Bool("summary", false, "Display a summary of the model and its hyperparameters.")
	flagVars      = flag.Bool("vars", false, "Lists the variables of the model.")
	flagInput     = flag.String("input", "", "CSV file (with header) whose rows are used as input, "+
		"one row per example. If not set a random input with -batch examples is used.")
	flagBatch          = flag.Int("batch", 3, "Number of examples of the random input, used if -input is not set.")
	flagRepeat         = flag.Int("repeat", 0, "If > 0, runs the forward pass this many times and reports the median duration.")
	flagHistogram      = flag.String("hist", "", "If set, saves a histogram of the weights of the first ensemble layer to this PNG file.")
	flagOrthogonalGain = flag.Float64("orthogonal_gain", 0, "If > 0, re-initializes the weights of the model "+
		"with this gain, following the \""+ensemble.ParamWeightInit+"\" policy.")

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// modelScope is the scope where the model variables are created.
const modelScope = "model"

// createDefaultContext sets the hyperparameters that can be changed with -set.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		context.ParamRNGSeed:        int64(42),
		layers.ParamDType:           "float32",
		ensemble.ParamEnsembleSize:  5,
		ensemble.ParamShareInput:    true,
		ensemble.ParamWeightInit:    ensemble.WeightInitFanInUniform,
		fnn.ParamHiddenDims:         []int{64, 64},
		fnn.ParamNormalization:      fnn.NormalizationNone,
		fnn.ParamDropoutRate:        0.0,
		activations.ParamActivation: "relu",
	})
	return ctx
}

func main() {
	klog.InitFlags(nil)
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	flag.Parse()
	paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
	if err != nil {
		klog.Errorf("Failed to parse -set=%q: %+v", *settings, err)
		os.Exit(1)
	}
	if err := run(ctx, paramsSet); err != nil {
		klog.Errorf("ensemble_inspect failed: %+v", err)
		os.Exit(1)
	}
}

func run(ctx *context.Context, paramsSet []string) error {
	model, err := fnn.NewEnsembleMLP(ctx.In(modelScope), *flagInputDim, *flagOutputDim).Done()
	if err != nil {
		return err
	}
	if *flagOrthogonalGain > 0 {
		if err := layers.InitWeights(ctx, *flagOrthogonalGain, model); err != nil {
			return err
		}
	}

	if *flagSummary {
		fmt.Println(titleStyle.Render("Summary"))
		fmt.Println(summaryTable(ctx, model).Render())
		if len(paramsSet) > 0 {
			fmt.Println(titleStyle.Render("Modified hyperparameters"))
			fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
		}
		fmt.Println(titleStyle.Render("Model"))
		fmt.Println(model.String())
	}
	if *flagVars {
		fmt.Println(titleStyle.Render("Variables"))
		fmt.Println(commandline.SprintVariables(ctx))
	}
	if *flagHistogram != "" {
		if err := saveWeightsHistogram(model, *flagHistogram); err != nil {
			return err
		}
		fmt.Printf("Weights histogram saved to %q\n", *flagHistogram)
	}

	first, err := firstEnsembleLayer(model)
	if err != nil {
		return err
	}
	x, err := createInput(ctx, first, *flagInput, *flagBatch)
	if err != nil {
		return err
	}
	var y *tensors.Tensor
	if *flagRepeat > 0 {
		pBar := commandline.NewProgressBar(os.Stdout, *flagRepeat)
		for range *flagRepeat {
			start := time.Now()
			y, err = model.Forward(x)
			if err != nil {
				pBar.Done()
				return err
			}
			pBar.Step(time.Since(start))
		}
		pBar.Done()
		fmt.Printf("Median forward duration: %s\n", commandline.FormatDuration(commandline.MedianDuration(pBar.Durations())))
	} else {
		y, err = model.Forward(x)
		if err != nil {
			return err
		}
	}

	fmt.Println(titleStyle.Render("Output"))
	fmt.Printf("input shape %s -> output shape %s\n", x.Shape(), y.Shape())
	fmt.Println(membersTable(y).Render())
	return nil
}
