package reader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
)

// placeholderLabel matches the labels spreadsheet exports give unnamed columns.
var placeholderLabel = regexp.MustCompile(`^Unnamed: ?\d+`)

// tableFromRecords builds a typed table from raw string records.
//
// The first record is the header unless it is the only record or none of its
// labels look like a name. In both cases every record is data and the
// columns are named Column_1..Column_N.
func tableFromRecords(records [][]string) *tabular.Table {
	if len(records) == 0 {
		return tabular.New(nil)
	}

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}
	if width == 0 {
		return tabular.New(nil)
	}

	header, data := records[0], records[1:]
	var labels []string
	if len(data) == 0 || !headerLooksReal(header) {
		labels = syntheticLabels(width)
		data = records
	} else {
		labels = make([]string, width)
		copy(labels, header)
		labels = cleanColumnNames(labels)
	}

	t := tabular.New(labels)
	for _, rec := range data {
		values := make([]tabular.Value, len(rec))
		for i, cell := range rec {
			values[i] = tabular.ParseCell(cell)
		}
		t.AppendValues(values)
	}

	for _, c := range t.Columns {
		t.SetValues(c, tabular.TypeColumn(t.Values(c)))
	}
	return t
}

// headerLooksReal reports whether at least one label reads like a column
// name rather than a blank, a generated placeholder or a number.
func headerLooksReal(header []string) bool {
	for _, label := range header {
		l := strings.TrimSpace(label)
		switch {
		case tabular.IsMissing(l):
		case placeholderLabel.MatchString(l):
		case tabular.IsNumericLiteral(l):
		default:
			return true
		}
	}
	return false
}

func syntheticLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("Column_%d", i+1)
	}
	return labels
}
