package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TableIdentity is the (schema, table) pair an import writes to.
type TableIdentity struct {
	Schema string `json:"schema"`
	Name   string `json:"table"`
}

// String returns the dotted form, unquoted.
func (t TableIdentity) String() string {
	return t.Schema + "." + t.Name
}

// Sanitize returns the quoted, schema-qualified name for use in SQL.
func (t TableIdentity) Sanitize() string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// ColumnDescriptor is one synthesized destination column.
type ColumnDescriptor struct {
	Name   string             `json:"name"`   // SQL column name
	Source string             `json:"source"` // column in the source table
	Type   tabular.ColumnType `json:"type"`
}

// ImportOptions control a single import call. Zero values fall back to the
// service defaults.
type ImportOptions struct {
	Schema   string           // destination schema
	Table    string           // destination table; derived from the file name when empty
	Progress ProgressCallback // optional
}

// ImportPhase indicates the current stage of a file import.
type ImportPhase string

const (
	PhaseReading   ImportPhase = "reading"
	PhaseCreating  ImportPhase = "creating"
	PhaseInserting ImportPhase = "inserting"
	PhaseComplete  ImportPhase = "complete"
	PhaseSkipped   ImportPhase = "skipped"
	PhaseFailed    ImportPhase = "failed"
)

// ImportProgress is reported while a file is imported.
type ImportProgress struct {
	ImportID   string
	FileName   string
	Phase      ImportPhase
	TotalRows  int
	CurrentRow int
	Inserted   int
	Failed     int
}

// Percent returns row progress as 0-100.
func (p ImportProgress) Percent() int {
	if p.TotalRows <= 0 {
		return 0
	}
	return (p.CurrentRow * 100) / p.TotalRows
}

// ProgressCallback is called at phase changes and periodically during insert.
type ProgressCallback func(ImportProgress)

// RowFailure records a row that could not be inserted.
type RowFailure struct {
	Row    int               `json:"row"` // 1-based data row
	Reason string            `json:"reason"`
	Data   map[string]string `json:"data,omitempty"`
}

// ImportOutcome is the result of importing one file.
// It is never modified after being returned.
type ImportOutcome struct {
	ImportID     string             `json:"importId"`
	FileName     string             `json:"fileName"`
	Table        TableIdentity      `json:"table"`
	Columns      []ColumnDescriptor `json:"columns,omitempty"`
	RowsRead     int                `json:"rowsRead"`
	RowsInserted int                `json:"rowsInserted"`
	RowsFailed   int                `json:"rowsFailed"`
	Failures     []RowFailure       `json:"failures,omitempty"`
	Skipped      bool               `json:"skipped,omitempty"`
	Duration     time.Duration      `json:"durationNs"`
	Err          error              `json:"-"`
}

// Succeeded reports whether at least one row was stored without a
// file-level error.
func (o ImportOutcome) Succeeded() bool {
	return o.Err == nil && o.RowsInserted > 0
}

// ErrorMessage returns the file-level error text, or "".
func (o ImportOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// BatchStatus summarizes a batch for user-facing messaging.
type BatchStatus string

const (
	BatchAllSucceeded  BatchStatus = "success"
	BatchPartial       BatchStatus = "partial"
	BatchNoneSucceeded BatchStatus = "failed"
)

// ColumnInfo describes an existing destination column.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Nullable bool   `json:"nullable"`
}

// TableDescription is the read-path view of a destination table.
type TableDescription struct {
	Table    TableIdentity `json:"table"`
	Exists   bool          `json:"exists"`
	RowCount int64         `json:"rowCount"`
	Columns  []ColumnInfo  `json:"columns"`
}

// TableRow is a single fetched row keyed by column name.
type TableRow map[string]any

// SampleResult holds the rows returned by SampleRows.
type SampleResult struct {
	Table   TableIdentity `json:"table"`
	Columns []string      `json:"columns"`
	Rows    []TableRow    `json:"rows"`
	OrderBy string        `json:"orderBy,omitempty"` // column used for ordering, if any
}

// PreviewResult is the database-free analysis of a file.
type PreviewResult struct {
	FileName string             `json:"fileName"`
	Table    TableIdentity      `json:"table"`
	Columns  []ColumnDescriptor `json:"columns"`
	RowCount int                `json:"rowCount"`
	Rows     []tabular.Row      `json:"rows"`
}
