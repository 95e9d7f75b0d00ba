package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/jackc/pgx/v5"
)

// Columns every synthesized table may carry in addition to the file's own.
const (
	AutoIDColumn     = "auto_id"
	ImportedAtColumn = "imported_at"
)

// reservedColumns cannot be produced from source column names.
var reservedColumns = map[string]bool{
	AutoIDColumn:     true,
	ImportedAtColumn: true,
}

// SynthesizeColumns derives the destination columns for a table: a cleaned,
// unique SQL name and an inferred type per source column, in order.
func SynthesizeColumns(t *tabular.Table) []ColumnDescriptor {
	cols := make([]ColumnDescriptor, 0, t.Width())
	used := make(map[string]bool, t.Width())

	for _, src := range t.Columns {
		values := t.Values(src)
		typ := tabular.InferType(values)
		if typ == tabular.TypeInteger && !fitsInt4(values) {
			typ = tabular.TypeDecimal
		}

		base := sqlColumnName(src)
		name := base
		for n := 2; used[name] || reservedColumns[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true

		cols = append(cols, ColumnDescriptor{Name: name, Source: src, Type: typ})
	}
	return cols
}

// sqlColumnName lower-cases a column name, turns spaces and hyphens into
// underscores and drops anything else outside [a-z0-9_]. Empty names and
// names starting with a digit get a col_ prefix.
func sqlColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	name = cleanIdentifier(name)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "col_" + name
	}
	return name
}

// needsSurrogateKey reports whether no column name contains "id".
func needsSurrogateKey(cols []ColumnDescriptor) bool {
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.Name), "id") {
			return false
		}
	}
	return true
}

// createTableSQL builds the CREATE TABLE statement for cols.
func createTableSQL(id TableIdentity, cols []ColumnDescriptor) string {
	defs := make([]string, 0, len(cols)+2)
	if needsSurrogateKey(cols) {
		defs = append(defs, pgx.Identifier{AutoIDColumn}.Sanitize()+" SERIAL PRIMARY KEY")
	}
	for _, c := range cols {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+c.Type.SQL())
	}
	// clock_timestamp gives each row its own time inside one transaction.
	defs = append(defs, pgx.Identifier{ImportedAtColumn}.Sanitize()+" TIMESTAMP DEFAULT clock_timestamp()")

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", id.Sanitize(), strings.Join(defs, ",\n\t"))
}

// createTable runs the DDL for a destructive replace on tx. Any failure is a
// *SchemaError; the caller owns rollback.
func createTable(ctx context.Context, tx DBTX, id TableIdentity, cols []ColumnDescriptor) error {
	steps := []struct {
		statement string
		sql       string
	}{
		{"create schema", "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{id.Schema}.Sanitize()},
		{"drop table", "DROP TABLE IF EXISTS " + id.Sanitize()},
		{"create table", createTableSQL(id, cols)},
	}

	for _, step := range steps {
		if _, err := tx.Exec(ctx, step.sql); err != nil {
			return &SchemaError{Table: id, Statement: step.statement, Err: err}
		}
	}
	return nil
}

// CreateTable (re)creates the destination table for t in one transaction.
// An existing table with the same identity is dropped first. The returned
// columns are the ones InsertRows expects.
func (s *Service) CreateTable(ctx context.Context, id TableIdentity, t *tabular.Table) ([]ColumnDescriptor, error) {
	cols := SynthesizeColumns(t)
	if err := s.createTable(ctx, id, cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (s *Service) createTable(ctx context.Context, id TableIdentity, cols []ColumnDescriptor) error {
	log := logging.WithFields(ctx, "table", id.String())

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return asConnectionError("acquire connection", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return asConnectionError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := createTable(ctx, tx, id, cols); err != nil {
		log.Error("table creation failed", "error", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &SchemaError{Table: id, Statement: "commit", Err: err}
	}

	log.Info("table created", "columns", len(cols), "surrogate_key", needsSurrogateKey(cols))
	return nil
}

// fitsInt4 reports whether every integer value fits a PostgreSQL INTEGER.
func fitsInt4(values []tabular.Value) bool {
	for _, v := range values {
		n := v
		if n.Kind != tabular.KindInteger {
			parsed, ok := tabular.ParseNumber(v.String())
			if !ok {
				continue
			}
			n = parsed
		}
		if n.Kind == tabular.KindInteger && (n.Int < math.MinInt32 || n.Int > math.MaxInt32) {
			return false
		}
	}
	return true
}
