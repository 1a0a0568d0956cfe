package report

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteText renders a terminal summary: one row per file plus totals.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "project: %s\n", r.Project)
	fmt.Fprintf(w, "generated: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tRUN\tREGIONS\tBYTES")
	for _, f := range r.Files {
		path := f.Path
		if path == "" {
			path = fmt.Sprintf("(file %d)", f.ID)
		}
		var covered uint64
		for _, reg := range f.Regions {
			covered += uint64(reg.End - reg.Start)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", path, f.Run, len(f.Regions), covered)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	t := r.Totals()
	_, err := fmt.Fprintf(w, "\n%d files, %d regions, %d labels, %d bytes covered\n",
		t.Files, t.Regions, t.Labels, t.CoveredBytes)
	return err
}
