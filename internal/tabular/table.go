package tabular

// Row maps column name to cell value.
type Row map[string]Value

// Table is a rectangular set of rows sharing one ordered header.
//
// Every row carries exactly the header's column set; cells that were absent
// in the source are stored as null.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns an empty table with the given header.
func New(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.Columns) }

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// HasColumn reports whether name is in the header.
func (t *Table) HasColumn(name string) bool {
	return t.indexOf(name) >= 0
}

// Append adds a row, filling any header column the row lacks with null and
// discarding keys outside the header.
func (t *Table) Append(r Row) {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		row[c] = r[c]
	}
	t.Rows = append(t.Rows, row)
}

// AppendValues adds a positional row. Missing trailing cells are null.
func (t *Table) AppendValues(values []Value) {
	row := make(Row, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(values) {
			row[c] = values[i]
		} else {
			row[c] = Null()
		}
	}
	t.Rows = append(t.Rows, row)
}

// Values returns the column's cells in row order.
func (t *Table) Values(column string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[column]
	}
	return out
}

// SetValues replaces the column's cells. values must have one entry per row.
func (t *Table) SetValues(column string, values []Value) {
	for i, r := range t.Rows {
		r[column] = values[i]
	}
}

// AddColumn appends a column to the header, filling existing rows with null.
func (t *Table) AddColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.Columns = append(t.Columns, name)
	for _, r := range t.Rows {
		r[name] = Null()
	}
}

// DropColumn removes a column from the header and every row.
func (t *Table) DropColumn(name string) {
	i := t.indexOf(name)
	if i < 0 {
		return
	}
	t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	for _, r := range t.Rows {
		delete(r, name)
	}
}

// RenameColumn renames a column in place, keeping its position.
// Renaming onto an existing column is a no-op.
func (t *Table) RenameColumn(from, to string) {
	i := t.indexOf(from)
	if i < 0 || from == to || t.HasColumn(to) {
		return
	}
	t.Columns[i] = to
	for _, r := range t.Rows {
		r[to] = r[from]
		delete(r, from)
	}
}

// Head returns up to n rows.
func (t *Table) Head(n int) []Row {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

func (t *Table) indexOf(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
