package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderSummary prints one row per processing stage that ran.
func renderSummary(w io.Writer, stages []stageSummary) {
	if len(stages) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Scanned", "Changed", "Links", "Moved", "Removed", "Conflicts", "Warnings"})
	for _, s := range stages {
		st := s.stats
		t.AppendRow(table.Row{
			s.name, st.Scanned, st.Changed, st.LinksRewritten,
			st.Moved, st.Removed, st.Conflicts, st.Warnings,
		})
	}
	t.Render()
}
