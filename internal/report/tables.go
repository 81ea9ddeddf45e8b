// -----------------------------------------------------------------------
// Report - ledger and run history rendered for the terminal
// -----------------------------------------------------------------------

package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

const timeLayout = "02/01/2006 15:04:05"

// WriteLedger renders one row per entity followed by the per-status totals
func WriteLedger(w io.Writer, batch []models.Entity) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Row", "ID", "Code", "Status"})
	for _, e := range batch {
		tw.AppendRow(table.Row{e.Row, e.ID, e.Code, e.Status.Label()})
	}
	tw.AppendFooter(table.Row{"", "", "Total", len(batch)})
	tw.Render()

	WriteCounts(w, models.CountStatuses(batch))
}

// WriteCounts renders the status totals in report order, omitting empty statuses
func WriteCounts(w io.Writer, counts map[string]int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Status", "Entities"})
	known := make(map[string]bool, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		known[s.Label()] = true
		if n := counts[s.Label()]; n > 0 {
			tw.AppendRow(table.Row{s.Label(), n})
		}
	}

	// labels left in the sheet by hand
	var other []string
	for label := range counts {
		if !known[label] {
			other = append(other, label)
		}
	}
	sort.Strings(other)
	for _, label := range other {
		tw.AppendRow(table.Row{label, counts[label]})
	}
	tw.Render()
}

// WritePending lists the entities a rerun would still process
func WritePending(w io.Writer, batch []models.Entity) int {
	pending := 0
	for _, e := range batch {
		if !e.Status.IsDone() {
			pending++
		}
	}
	if pending == 0 {
		fmt.Fprintln(w, "Nothing pending: every entity is Completed.")
		return 0
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(fmt.Sprintf("Pending (%d)", pending))
	tw.AppendHeader(table.Row{"ID", "Code", "Last status"})
	for _, e := range batch {
		if !e.Status.IsDone() {
			tw.AppendRow(table.Row{e.ID, e.Code, e.Status.Label()})
		}
	}
	tw.Render()
	return pending
}

// WriteRuns renders run records newest first
func WriteRuns(w io.Writer, runs []*models.RunRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Run", "Period", "Started", "Duration", "Outcome", "Sessions", "Completed", "Total"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID,
			r.Period,
			r.StartedAt.Local().Format(timeLayout),
			duration(r),
			r.Outcome,
			r.SessionAttempts,
			r.Counts[models.StatusCompleted.Label()],
			r.Total,
		})
	}
	tw.Render()
}

// WriteAttempts renders the per-entity attempt records of one run
func WriteAttempts(w io.Writer, attempts []*models.AttemptRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"At", "ID", "Code", "Status", "Attempts", "Artifact", "Error"})
	for _, a := range attempts {
		artifact := a.Artifact
		if a.Status == models.StatusCompleted && !a.Captured {
			artifact = "(not captured)"
		}
		tw.AppendRow(table.Row{
			a.At.Local().Format(timeLayout),
			a.EntityID,
			a.Code,
			a.Status.Label(),
			a.Attempts,
			artifact,
			a.Error,
		})
	}
	tw.Render()
}

func duration(r *models.RunRecord) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}
