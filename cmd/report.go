package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/football-dw/warehouse/pkg/dimension"
	"github.com/football-dw/warehouse/pkg/fact"
	"github.com/football-dw/warehouse/pkg/orchestrator"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xlab/treeprint"
)

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(header)
	t.SetStyle(table.StyleLight)
	return t
}

func renderRun(w io.Writer, r *orchestrator.Report) {
	fmt.Fprintln(w)
	if r.Resumed {
		fmt.Fprintln(w, faint("resumed from the checkpoints of an unfinished run"))
	}

	if len(r.Phases) > 0 {
		t := newTable(w, "Phases", table.Row{"Phase", "Status", "Attempts", "Duration", "Error"})
		for _, p := range r.Phases {
			t.AppendRow(table.Row{p.Name, colorStatus(string(p.Status)), p.Attempts, p.Duration.Round(time.Millisecond), p.Error})
		}
		t.Render()
	}

	renderDimensions(w, r.Dimensions)
	renderFacts(w, r.Facts)
	if r.Quality != nil {
		renderQuality(w, r.Quality)
	}
	if r.Verification != nil {
		r.Verification.Render(w)
	}

	if len(r.Deltas) > 0 {
		fmt.Fprintln(w)
		infoPrinter.Fprintln(w, "Row count changes")
		for _, d := range r.Deltas {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if r.SnapshotFile != "" {
		fmt.Fprintf(w, "%s\n", faint("snapshot: "+r.SnapshotFile))
	}

	renderFailures(w, r)

	fmt.Fprintf(w, "\n%s %s %s\n", faint("state:"), colorStatus(string(r.State)),
		faint(fmt.Sprintf("(%s)", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))))
}

func renderDimensions(w io.Writer, results []*dimension.Result) {
	if len(results) == 0 {
		return
	}

	t := newTable(w, "Dimensions", table.Row{"Dimension", "Extracted", "Skipped", "Inserted", "Updated", "Unchanged", "Failed", "Duration"})
	for _, r := range results {
		name := r.Dimension
		if r.Versioned {
			name += " " + faint("(scd2)")
		}
		t.AppendRow(table.Row{name, r.Extracted, r.Skipped, r.Inserted, r.Updated, r.Unchanged, r.Failed, r.Duration.Round(time.Millisecond)})
	}
	t.Render()
}

func renderFacts(w io.Writer, results []*fact.Result) {
	if len(results) == 0 {
		return
	}

	t := newTable(w, "Facts", table.Row{"Fact", "Read", "Loaded", "Rejected", "Nulled optional", "Duration"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Fact, r.Read, r.Loaded, r.Rejected, r.NulledOptional, r.Duration.Round(time.Millisecond)})
	}
	t.Render()
}

func renderQuality(w io.Writer, r *quality.Report) {
	t := newTable(w, "Quality checks", table.Row{"Check", "Result", "Status"})
	for _, c := range r.Checks {
		t.AppendRow(table.Row{c.Name, c.Result, colorStatus(string(c.Status))})
	}
	t.Render()
}

func renderFailures(w io.Writer, r *orchestrator.Report) {
	dims := r.FailedDimensions()
	facts := r.FailedFacts()
	var checks []quality.Check
	if r.Quality != nil {
		checks = r.Quality.Failed()
	}
	if len(dims)+len(facts)+len(checks) == 0 {
		return
	}

	tree := treeprint.NewWithRoot(color.New(color.FgRed).Sprintf("%d problems", len(dims)+len(facts)+len(checks)))
	if len(dims) > 0 {
		branch := tree.AddBranch(color.New(color.FgYellow).Sprint("dimensions"))
		for _, d := range dims {
			branch.AddNode(fmt.Sprintf("%s - %s", color.New(color.FgCyan).Sprint(d.Dimension), color.New(color.FgRed).Sprint(d.Err)))
		}
	}
	if len(facts) > 0 {
		branch := tree.AddBranch(color.New(color.FgYellow).Sprint("facts"))
		for _, f := range facts {
			branch.AddNode(fmt.Sprintf("%s - %s", color.New(color.FgCyan).Sprint(f.Fact), color.New(color.FgRed).Sprint(f.Err)))
		}
	}
	if len(checks) > 0 {
		branch := tree.AddBranch(color.New(color.FgYellow).Sprint("quality"))
		for _, c := range checks {
			node := fmt.Sprintf("%s = %d %s", color.New(color.FgCyan).Sprint(c.Name), c.Result, colorStatus(string(c.Status)))
			if c.Message != "" {
				node += " " + faint(c.Message)
			}
			branch.AddNode(node)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, tree.String())
}

func colorStatus(status string) string {
	switch status {
	case "OK", "SUCCESS", "success":
		return color.New(color.FgGreen).Sprint(status)
	case "WARNING", "PARTIAL_FAILURE", "skipped", "interrupted":
		return color.New(color.FgYellow).Sprint(status)
	case "ERROR", "failed":
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}
