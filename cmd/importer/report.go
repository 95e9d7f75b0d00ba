package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/tabular"
)

// maxPrintedFailures is how many row failures are listed per file.
const maxPrintedFailures = 5

func printBatch(w io.Writer, result core.BatchResult) {
	for _, o := range result.Outcomes {
		printOutcome(w, o)
	}
	for _, name := range result.NotAttempted {
		fmt.Fprintf(w, "SKIP %s: not attempted\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, result.Message())
}

func printOutcome(w io.Writer, o core.ImportOutcome) {
	switch {
	case o.Err != nil:
		fmt.Fprintf(w, "FAIL %s: %s\n", o.FileName, core.FormatUserError(o.Err))
		return
	case o.Skipped:
		fmt.Fprintf(w, "SKIP %s: no data rows\n", o.FileName)
		return
	}

	tag := "OK  "
	if !o.Succeeded() {
		tag = "FAIL"
	} else if o.RowsFailed > 0 {
		tag = "PART"
	}
	fmt.Fprintf(w, "%s %s -> %s: %d of %d rows inserted, %d failed (%s)\n",
		tag, o.FileName, o.Table, o.RowsInserted, o.RowsRead, o.RowsFailed, o.Duration.Round(time.Millisecond))

	for i, f := range o.Failures {
		if i == maxPrintedFailures {
			fmt.Fprintf(w, "     ... %d more\n", o.RowsFailed-maxPrintedFailures)
			break
		}
		fmt.Fprintf(w, "     row %d: %s\n", f.Row, f.Reason)
	}
}

func printPreview(w io.Writer, p *core.PreviewResult) {
	fmt.Fprintf(w, "%s -> %s (%d rows)\n", p.FileName, p.Table, p.RowCount)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	names := make([]string, len(p.Columns))
	types := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
		types[i] = c.Type.String()
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	fmt.Fprintln(tw, strings.Join(types, "\t"))

	cells := make([]string, len(p.Columns))
	for _, row := range p.Rows {
		for i, c := range p.Columns {
			cells[i] = cell(row[c.Source])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printSample(w io.Writer, s *core.SampleResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(s.Columns, "\t"))

	cells := make([]string, len(s.Columns))
	for _, row := range s.Rows {
		for i, c := range s.Columns {
			cells[i] = anyCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func cell(v tabular.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	return v.String()
}

func anyCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}
