// Package sink contains the reporting sinks results are fanned out to.
package sink

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Console prints a line for every finished test and a result table once
// the suite is complete.
type Console struct {
	w       io.Writer
	results map[string][]model.Result
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, results: map[string][]model.Result{}}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) OnResult(r model.Result) error {
	c.results[r.RunID] = append(c.results[r.RunID], r)

	line := fmt.Sprintf("%s %s › %s (%s)", outcomeSymbol(r.FinalOutcome), r.SuiteName, r.TestID, formatDuration(r.Duration()))
	if len(r.Attempts) > 1 {
		line += fmt.Sprintf(" after %d attempts", len(r.Attempts))
	}
	if r.FinalOutcome != model.OutcomePassed {
		if detail := r.LastAttempt().ErrorDetail; detail != "" {
			line += "\n    " + strings.ReplaceAll(detail, "\n", "\n    ")
		}
	}

	_, err := fmt.Fprintln(c.w, line)
	return err
}

func (c *Console) OnSuiteComplete(s model.Summary) error {
	results := c.results[s.RunID]
	delete(c.results, s.RunID)

	t := table.NewWriter()
	t.SetOutputMirror(c.w)
	t.SetTitle(fmt.Sprintf("%s (%s)", s.SuiteName, formatDuration(s.End.Sub(s.Start))))

	t.AppendHeader(table.Row{"Test", "Mode", "Attempts", "Duration", "Status", "Artifacts", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Artifacts", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range results {
		errorDetail := ""
		if r.FinalOutcome != model.OutcomePassed {
			errorDetail = r.LastAttempt().ErrorDetail
		}

		t.AppendRow(table.Row{
			r.TestID,
			r.Mode,
			len(r.Attempts),
			formatDuration(r.Duration()),
			outcomeString(r.FinalOutcome),
			len(r.Artifacts),
			errorDetail,
		})
	}

	t.AppendFooter(table.Row{
		"Total", "", s.Total, "",
		fmt.Sprintf("%d passed, %d failed, %d timed out, %d skipped", s.Passed, s.Failed, s.TimedOut, s.Skipped),
		"", fmt.Sprintf("%d flaky", s.Flaky),
	})

	t.Render()

	verdict := "PASSED"
	if !s.Succeeded() {
		verdict = "FAILED"
	}

	_, err := fmt.Fprintf(c.w, "suite %s %s\n", s.SuiteName, verdict)
	return err
}

func outcomeSymbol(o model.Outcome) string {
	switch o {
	case model.OutcomePassed:
		return "✓"
	case model.OutcomeSkipped:
		return "-"
	case model.OutcomeTimedOut:
		return "⏱"
	}

	return "✗"
}

func outcomeString(o model.Outcome) string {
	switch o {
	case model.OutcomePassed:
		return text.FgGreen.Sprint("PASS")
	case model.OutcomeFailed:
		return text.FgRed.Sprint("FAIL")
	case model.OutcomeTimedOut:
		return text.FgRed.Sprint("TIMEOUT")
	}

	return text.FgYellow.Sprint("SKIP")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return d.Round(10 * time.Millisecond).String()
}
