// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/ml/layers"
	"github.com/spectralrl/goensemble/types/tensors"
	"github.com/spectralrl/goensemble/ui/plots"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
)

func newPlainTable(headers ...string) *lgtable.Table {
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row == lgtable.HeaderRow:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
	if len(headers) > 0 {
		table.Headers(headers...)
	}
	return table
}

// summaryTable describes the model and the sizes of its variables.
func summaryTable(ctx *context.Context, model *layers.Sequential) *lgtable.Table {
	table := newPlainTable()
	table.Row("scope", ctx.In(modelScope).Scope())
	table.Row("# modules", humanize.Comma(int64(model.Len())))
	if first, err := firstEnsembleLayer(model); err == nil {
		table.Row("ensemble size", humanize.Comma(int64(first.EnsembleSize())))
		table.Row("share input", fmt.Sprintf("%v", first.ShareInput()))
		table.Row("dtype", first.DType().String())
	}
	table.Row("# variables", humanize.Comma(int64(ctx.NumVariables())))
	table.Row("# parameters", humanize.Comma(int64(ctx.NumParameters())))
	table.Row("# bytes", humanize.Bytes(uint64(ctx.Memory())))
	return table
}

// membersTable summarizes the output y, shaped [ensembleSize, ..., outFeatures], for each member.
func membersTable(y *tensors.Tensor) *lgtable.Table {
	table := newPlainTable("Member", "Values", "Mean", "StdDev", "Min", "Max")
	values := tensors.ToFloat64s(y)
	ensembleSize := y.Shape().Dim(0)
	perMember := len(values) / ensembleSize
	for e := range ensembleSize {
		stats := plots.Summarize(values[e*perMember : (e+1)*perMember])
		table.Row(fmt.Sprintf("#%d", e), humanize.Comma(int64(stats.Count)),
			fmt.Sprintf("%.4g", stats.Mean), fmt.Sprintf("%.4g", stats.StdDev),
			fmt.Sprintf("%.4g", stats.Min), fmt.Sprintf("%.4g", stats.Max))
	}
	return table
}

// saveWeightsHistogram saves a histogram of the weights of the first ensemble layer of the model.
func saveWeightsHistogram(model *layers.Sequential, fileName string) error {
	first, err := firstEnsembleLayer(model)
	if err != nil {
		return err
	}
	weights := first.Weights()
	title := fmt.Sprintf("%s %s", weights.ScopeAndName(), weights.Shape())
	return plots.SaveHistogram(fileName, title, tensors.ToFloat64s(weights.Value()), plots.DefaultHistogramBins)
}
