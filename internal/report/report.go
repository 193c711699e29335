// Package report renders run results and stored history as console tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/vtmqa/vtmsmoke/internal/history"
	"github.com/vtmqa/vtmsmoke/internal/resultlog"
	"github.com/vtmqa/vtmsmoke/internal/scenario"
)

// Renderer writes tables, colored unless disabled.
type Renderer struct {
	green, red, yellow, bold *color.Color
}

// New returns a Renderer. Color follows the terminal unless noColor is set.
func New(noColor bool) *Renderer {
	r := &Renderer{
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		bold:   color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{r.green, r.red, r.yellow, r.bold} {
			c.DisableColor()
		}
	}
	return r
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	table.SetBorder(true)
	table.SetTablePadding(" ")
	return table
}

func (r *Renderer) outcome(o resultlog.Outcome) string {
	switch o {
	case resultlog.Success:
		return r.green.Sprint(o.String())
	case resultlog.Failure:
		return r.red.Sprint(o.String())
	}
	return r.yellow.Sprint(o.String())
}

// Summary prints one line per scenario followed by a table of every check.
func (r *Renderer) Summary(w io.Writer, results []scenario.Result) {
	var total, passed, failed, errored int
	rows := make([][]string, 0)
	for _, res := range results {
		mark := r.green.Sprint("✓")
		if !res.OK() {
			mark = r.red.Sprint("✗")
		}
		line := res.Scenario
		if res.OK() && res.Summary != "" {
			line += ": " + res.Summary
		}
		fmt.Fprintf(w, "%s %s\n", mark, line)

		for _, c := range res.Checks {
			total++
			switch c.Outcome {
			case resultlog.Success:
				passed++
			case resultlog.Failure:
				failed++
			default:
				errored++
			}
			rows = append(rows, []string{res.Scenario, c.Name, r.outcome(c.Outcome), c.Duration.Round(time.Millisecond).String(), c.Detail})
		}
	}

	table := newTable(w, []string{"Scenario", "Check", "Result", "Took", "Detail"})
	table.AppendBulk(rows)
	table.Render()

	fmt.Fprintf(w, "%s checks: %s passed, %s failed, %s errors\n",
		r.bold.Sprint(total), r.green.Sprint(passed), r.red.Sprint(failed), r.yellow.Sprint(errored))
}

// History prints stored outcomes.
func (r *Renderer) History(w io.Writer, rows []history.Row) {
	table := newTable(w, []string{"Time", "Run", "Check", "Result", "Detail"})
	for _, row := range rows {
		result := row.Outcome
		if o, err := row.ParsedOutcome(); err == nil {
			result = r.outcome(o)
		}
		table.Append([]string{row.At.Local().Format(resultlog.TimeLayout), shortID(row.RunID), row.Test, result, row.Detail})
	}
	table.Render()
}

// Runs prints per-run aggregates.
func (r *Renderer) Runs(w io.Writer, runs []history.Run) {
	table := newTable(w, []string{"Run", "Checks", "Passed", "Failed", "Errors"})
	for _, run := range runs {
		table.Append([]string{
			shortID(run.RunID),
			fmt.Sprint(run.Checks),
			r.green.Sprint(run.Passed),
			r.red.Sprint(run.Failed),
			r.yellow.Sprint(run.Errored),
		})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
