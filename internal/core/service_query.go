package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MaxSampleLimit caps SampleRows regardless of what the caller asks for.
var MaxSampleLimit = 1000

const undefinedTable = "42P01"

// describeColumns lists a table's columns in ordinal order. An unknown
// table yields no columns and no error.
func describeColumns(ctx context.Context, q DBTX, id TableIdentity) ([]ColumnInfo, error) {
	rows, err := q.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, id.Schema, id.Name)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", id, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cols, nil
}

// sampleOrder picks the ORDER BY for a sample: newest import first with the
// first id-like column as tiebreak, else that id-like column descending,
// else storage order. It returns the ordering column and the clause.
func sampleOrder(cols []ColumnInfo) (string, string) {
	var hasImportedAt bool
	var idColumn string
	for _, c := range cols {
		name := strings.ToLower(c.Name)
		switch {
		case name == ImportedAtColumn:
			hasImportedAt = true
		case idColumn == "" && strings.Contains(name, "id"):
			idColumn = c.Name
		}
	}

	switch {
	case hasImportedAt && idColumn != "":
		return ImportedAtColumn, fmt.Sprintf(" ORDER BY %s DESC, %s DESC",
			pgx.Identifier{ImportedAtColumn}.Sanitize(), pgx.Identifier{idColumn}.Sanitize())
	case hasImportedAt:
		return ImportedAtColumn, " ORDER BY " + pgx.Identifier{ImportedAtColumn}.Sanitize() + " DESC"
	case idColumn != "":
		return idColumn, " ORDER BY " + pgx.Identifier{idColumn}.Sanitize() + " DESC"
	default:
		return "", ""
	}
}

// clampSampleLimit applies the default and the upper bound.
func clampSampleLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxSampleLimit {
		limit = MaxSampleLimit
	}
	return limit
}

// SampleRows returns up to limit rows of a destination table, most recently
// imported first. limit <= 0 uses the configured default.
func (s *Service) SampleRows(ctx context.Context, id TableIdentity, limit int) (*SampleResult, error) {
	limit = clampSampleLimit(limit, s.sampleLimit)

	cols, err := describeColumns(ctx, s.pool, id)
	if err != nil {
		return nil, asQueryError("describe", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrTableNotFound)
	}

	orderBy, orderClause := sampleOrder(cols)
	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT $1", id.Sanitize(), orderClause)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, asQueryError("sample", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	result := &SampleResult{Table: id, Columns: names, OrderBy: orderBy}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(TableRow, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, asQueryError("sample", err)
	}

	logging.WithFields(ctx, "table", id.String()).Debug("sample fetched",
		"rows", len(result.Rows),
		"order_by", orderBy,
	)
	return result, nil
}

// DescribeTable reports whether a destination table exists, its row count
// and its columns. A missing table is not an error.
func (s *Service) DescribeTable(ctx context.Context, id TableIdentity) (*TableDescription, error) {
	cols, err := describeColumns(ctx, s.pool, id)
	if err != nil {
		return nil, asQueryError("describe", err)
	}

	desc := &TableDescription{Table: id, Columns: cols}
	if len(cols) == 0 {
		return desc, nil
	}
	desc.Exists = true

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+id.Sanitize()).Scan(&desc.RowCount); err != nil {
		return nil, asQueryError("count rows", err)
	}
	return desc, nil
}

// ListTables returns the base tables in schema, sorted by name. An empty
// schema means the configured default.
func (s *Service) ListTables(ctx context.Context, schema string) ([]TableIdentity, error) {
	if schema = cleanIdentifier(schema); schema == "" {
		schema = s.defaultSchema
	}

	rows, err := s.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, asQueryError("list tables", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, asQueryError("list tables", err)
	}

	tables := make([]TableIdentity, len(names))
	for i, name := range names {
		tables[i] = TableIdentity{Schema: schema, Name: name}
	}
	return tables, nil
}

// ClearTable deletes every row of a destination table and keeps its
// structure. It returns the number of rows removed.
func (s *Service) ClearTable(ctx context.Context, id TableIdentity) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+id.Sanitize())
	if err != nil {
		return 0, asQueryError("clear", err)
	}

	logging.WithFields(ctx, "table", id.String()).Info("table cleared", "rows", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// asQueryError classifies a read-path error: a missing table becomes
// ErrTableNotFound, a server-reported error is wrapped with op and anything
// else is a connection failure.
func asQueryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == undefinedTable {
			return fmt.Errorf("%s: %w", op, ErrTableNotFound)
		}
		if isRowError(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return asConnectionError(op, err)
}
