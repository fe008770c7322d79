// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools for the command line: parsing of context settings
// from flags, tables and a progress bar for repeated runs.
package commandline

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spectralrl/goensemble/ml/context"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// NewTable returns a table with the default style of the package. Columns listed in rightAligned
// (typically numbers) are aligned to the right.
func NewTable(headers []string, rightAligned ...int) *lgtable.Table {
	isRight := make(map[int]bool, len(rightAligned))
	for _, col := range rightAligned {
		isRight[col] = true
	}
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if isRight[col] {
				return rightAlignedStyle
			}
			return normalStyle
		})
}

// SprintVariables returns a table with all the variables of the context, in creation order, with
// their shapes, number of parameters, memory used and whether they are trainable. The last row has the totals.
func SprintVariables(ctx *context.Context) string {
	table := NewTable([]string{"Variable", "Shape", "Parameters", "Memory", "Trainable"}, 2, 3)
	ctx.EnumerateVariables(func(v *context.Variable) {
		shape := v.Shape()
		table.Row(v.ScopeAndName(), shape.String(),
			humanize.Comma(int64(shape.Size())),
			humanize.Bytes(uint64(shape.Memory())),
			fmt.Sprintf("%v", v.Trainable()))
	})
	table.Row("Total", fmt.Sprintf("%d variables", ctx.NumVariables()),
		humanize.Comma(int64(ctx.NumParameters())),
		humanize.Bytes(uint64(ctx.Memory())), "")
	return table.String()
}
