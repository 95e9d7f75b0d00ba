package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSchema matches every *SchemaError via errors.Is.
	ErrSchema = errors.New("schema error")

	// ErrConnection matches every *ConnectionError via errors.Is.
	ErrConnection = errors.New("database connection error")

	// ErrInvalidTableName is returned when a table or schema name is blank.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrTableNotFound is returned by the read path for a missing table.
	ErrTableNotFound = errors.New("table not found")

	// ErrFileTooLarge is returned for files over IMPORT_MAX_FILE_SIZE.
	ErrFileTooLarge = errors.New("file too large")
)

// SchemaError is a failed DDL statement. The surrounding transaction has
// been rolled back.
type SchemaError struct {
	Table     TableIdentity
	Statement string // "create schema", "drop table" or "create table"
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s %s: %v", e.Statement, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSchema) match.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// RowInsertError is a single row that failed to insert. It is absorbed into
// the outcome rather than returned.
type RowInsertError struct {
	Row int // 1-based data row
	Err error
}

func (e *RowInsertError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowInsertError) Unwrap() error { return e.Err }

// ConnectionError means the database could not be reached or the session
// broke. It aborts the rest of a batch.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConnection) match.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// coercionError is a cell that cannot be converted to its column type.
type coercionError struct {
	Column string
	Value  string
	Type   string
}

func (e *coercionError) Error() string {
	return fmt.Sprintf("invalid %s for column %q: %q", strings.ToLower(e.Type), e.Column, e.Value)
}

// connectionSQLStates are SQLSTATE classes and codes that mean the session
// itself is gone rather than the statement being wrong.
var connectionSQLStates = []string{
	"08",    // connection exception
	"57P01", // admin_shutdown
	"57P02", // crash_shutdown
	"57P03", // cannot_connect_now
	"53300", // too_many_connections
}

// isRowError reports whether an insert error is confined to that row:
// a server-reported statement error or a value coercion failure.
func isRowError(err error) bool {
	var ce *coercionError
	if errors.As(err, &ce) {
		return true
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, state := range connectionSQLStates {
		if strings.HasPrefix(pgErr.Code, state) {
			return false
		}
	}
	return true
}

// asConnectionError wraps err unless it already is one.
func asConnectionError(op string, err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}

// stopsBatch reports whether err should end a batch: the database is
// unreachable or the session broke. A per-file timeout does not count.
func stopsBatch(err error) bool {
	return errors.Is(err, ErrConnection) && !errors.Is(err, context.DeadlineExceeded)
}
