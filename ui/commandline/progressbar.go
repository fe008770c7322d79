// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays the progression of a fixed number of steps (e.g. repeated forward passes of a model),
// along with a table with the step count, the median and last step durations and any extra metrics.
//
// The table is drawn asynchronously, so Step never waits for the terminal.
type ProgressBar struct {
	numSteps, step int
	bar            *progressbar.ProgressBar
	writer         io.Writer

	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn

	// durationsMu protects durations, appended by Step and read by drawUpdates.
	durationsMu sync.Mutex
	durations   []time.Duration
}

type progressBarUpdate struct {
	amount       int
	metrics      []string
	lastDuration time.Duration
}

// NewProgressBar creates a progress bar for numSteps steps, written to w (typically os.Stdout).
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func NewProgressBar(w io.Writer, numSteps int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	pBar := &ProgressBar{
		numSteps:       numSteps,
		writer:         w,
		isFirstOutput:  true,
		termenv:        termenv.NewOutput(w),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		updates:        make(chan progressBarUpdate, 100), // Large buffer so Step is not blocked.
		extraMetricFns: extraMetrics,
	}
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(w),
	)
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates()
	return pBar
}

// Step reports one more step done, that took the given duration.
func (pBar *ProgressBar) Step(duration time.Duration) {
	pBar.step++
	pBar.durationsMu.Lock()
	pBar.durations = append(pBar.durations, duration)
	pBar.durationsMu.Unlock()
	pBar.updates <- progressBarUpdate{
		amount:       1,
		metrics:      []string{fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.step)), humanize.Comma(int64(pBar.numSteps)))},
		lastDuration: duration,
	}
}

// Done waits for the pending updates to be displayed and restores the cursor.
// The ProgressBar cannot be used afterwards.
func (pBar *ProgressBar) Done() {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	pBar.termenv.ShowCursor()
	_, _ = fmt.Fprintln(pBar.writer)
}

// Durations returns the durations reported so far with Step.
func (pBar *ProgressBar) Durations() []time.Duration {
	pBar.durationsMu.Lock()
	defer pBar.durationsMu.Unlock()
	return slices.Clone(pBar.durations)
}

// drawUpdates asynchronously draws updates: this is handy if the steps are faster than the terminal, in particular
// if running on cloud, with a relatively slow network connection.
func (pBar *ProgressBar) drawUpdates() {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Create the table to be printed.
		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.statsTable.Row("Step", update.metrics[0])
		// The median is only computed once per redraw, and redraws are throttled.
		pBar.statsTable.Row("Median step duration", FormatDuration(MedianDuration(pBar.Durations())))
		pBar.statsTable.Row("Last step duration", FormatDuration(update.lastDuration))
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := 3 + 2 + 2 + len(pBar.extraMetricFns)
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		_, _ = fmt.Fprintln(pBar.writer, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.writer, "\033[J")
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// MedianDuration returns the median of the durations, or 0 if there are none.
// For an even number of durations it returns the mean of the two middle ones.
func MedianDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
