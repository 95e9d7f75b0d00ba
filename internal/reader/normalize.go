package reader

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
)

// columnNameReplacer turns separators into underscores.
var columnNameReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Normalize applies the rules shared by every format, in order:
//
//  1. text cells holding a missing marker ("nan", "NULL", ...) become null
//  2. rows that are null in every column are dropped
//  3. columns that are null in every row are dropped
//  4. column names are trimmed, filled in and de-duplicated
//  5. columns that are not purely numeric are coerced to text
//
// A table left with no rows keeps its header.
func Normalize(t *tabular.Table) {
	for _, r := range t.Rows {
		for c, v := range r {
			if v.Kind == tabular.KindText && tabular.IsMissing(v.Text) {
				r[c] = tabular.Null()
			}
		}
	}

	kept := t.Rows[:0]
	for _, r := range t.Rows {
		if !rowIsNull(r) {
			kept = append(kept, r)
		}
	}
	t.Rows = kept

	if len(t.Rows) > 0 {
		for _, c := range append([]string(nil), t.Columns...) {
			if tabular.AllNull(t.Values(c)) {
				t.DropColumn(c)
			}
		}
	}

	renameColumns(t, cleanColumnNames(t.Columns))

	for _, c := range t.Columns {
		values := t.Values(c)
		if !numericColumn(values) {
			t.SetValues(c, tabular.CoerceText(values))
		}
	}
}

// cleanColumnNames trims each name, names blanks column_<position> and
// replaces spaces and hyphens with underscores. Repeated names get _2, _3, ...
func cleanColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		name = columnNameReplacer.Replace(name)

		unique := name
		for n := 2; seen[unique]; n++ {
			unique = fmt.Sprintf("%s_%d", name, n)
		}
		seen[unique] = true
		out[i] = unique
	}
	return out
}

// renameColumns rebuilds every row under new positional names.
func renameColumns(t *tabular.Table, names []string) {
	old := t.Columns
	changed := false
	for i := range old {
		if old[i] != names[i] {
			changed = true
			break
		}
	}
	if !changed {
		return
	}

	for i, r := range t.Rows {
		row := make(tabular.Row, len(names))
		for j, name := range names {
			row[name] = r[old[j]]
		}
		t.Rows[i] = row
	}
	t.Columns = names
}

func rowIsNull(r tabular.Row) bool {
	for _, v := range r {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// numericColumn reports whether every non-null value is a number.
func numericColumn(values []tabular.Value) bool {
	for _, v := range values {
		if !v.IsNull() && !v.IsNumeric() {
			return false
		}
	}
	return true
}
