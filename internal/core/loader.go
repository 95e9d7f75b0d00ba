package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/jackc/pgx/v5"
)

// ContextCheckInterval is how often the insert loop checks for cancellation.
var ContextCheckInterval = 100

// ProgressInterval is how often, in rows, insert progress is reported.
var ProgressInterval = 100

// MaxRecordedFailures caps the failures kept on an outcome. Every failure
// is still counted and logged.
var MaxRecordedFailures = 1000

// insertFold accumulates the result of inserting rows one at a time.
type insertFold struct {
	inserted int
	failed   int
	failures []RowFailure
	err      error // set when the loop stopped early
}

func (f *insertFold) fail(row int, reason string, data map[string]string) {
	f.failed++
	if len(f.failures) < MaxRecordedFailures {
		f.failures = append(f.failures, RowFailure{Row: row, Reason: reason, Data: data})
	}
}

// insertSQL builds the parameterized INSERT for cols.
func insertSQL(id TableIdentity, cols []ColumnDescriptor) string {
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", id.Sanitize())
	}

	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = pgx.Identifier{c.Name}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		id.Sanitize(), strings.Join(names, ", "), strings.Join(params, ", "))
}

// insertRows inserts every row of t under its own savepoint on tx.
//
// A row that cannot be converted or that the server rejects is rolled back
// to its savepoint, logged and counted; the loop moves on. Any other error
// means the session is unusable and stops the loop with a *ConnectionError.
// Cancellation stops the loop with the context's error.
func insertRows(ctx context.Context, tx DBTX, id TableIdentity, cols []ColumnDescriptor, t *tabular.Table, log *slog.Logger, progress func(current, inserted, failed int)) insertFold {
	var fold insertFold
	query := insertSQL(id, cols)

	for i, row := range t.Rows {
		rowNum := i + 1

		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				fold.err = fmt.Errorf("insert cancelled at row %d: %w", rowNum, err)
				return fold
			}
		}

		args, err := rowArgs(row, cols)
		if err != nil {
			rowErr := &RowInsertError{Row: rowNum, Err: err}
			log.Warn("row conversion failed",
				"row", rowNum,
				"error", err,
				"data", rowData(row, cols),
			)
			fold.fail(rowNum, rowErr.Error(), rowData(row, cols))
			continue
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			fold.err = asConnectionError("create savepoint", err)
			return fold
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			if !isRowError(err) {
				fold.err = asConnectionError(fmt.Sprintf("insert row %d", rowNum), err)
				return fold
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				fold.err = asConnectionError("rollback savepoint", rbErr)
				return fold
			}

			rowErr := &RowInsertError{Row: rowNum, Err: err}
			log.Warn("row insert failed",
				"row", rowNum,
				"error", err,
				"data", rowData(row, cols),
			)
			fold.fail(rowNum, rowErr.Error(), rowData(row, cols))
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			fold.err = asConnectionError("release savepoint", err)
			return fold
		}
		fold.inserted++

		if progress != nil && rowNum%ProgressInterval == 0 {
			progress(rowNum, fold.inserted, fold.failed)
		}
	}

	if progress != nil {
		progress(len(t.Rows), fold.inserted, fold.failed)
	}
	return fold
}

// InsertRows inserts the rows of t into an existing destination table.
//
// It never fails outright: row failures are counted on the outcome and a
// connection failure is recorded in the outcome's Err. Rows are committed
// together, so RowsInserted is zero whenever the loop did not finish.
func (s *Service) InsertRows(ctx context.Context, id TableIdentity, cols []ColumnDescriptor, t *tabular.Table) ImportOutcome {
	return s.insertRows(ctx, id, cols, t, nil)
}

func (s *Service) insertRows(ctx context.Context, id TableIdentity, cols []ColumnDescriptor, t *tabular.Table, progress func(current, inserted, failed int)) ImportOutcome {
	start := time.Now()
	outcome := ImportOutcome{
		Table:    id,
		Columns:  cols,
		RowsRead: t.Len(),
	}
	log := logging.WithFields(ctx, "table", id.String())

	finish := func() ImportOutcome {
		outcome.Duration = time.Since(start)
		return outcome
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		outcome.Err = asConnectionError("acquire connection", err)
		return finish()
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		outcome.Err = asConnectionError("begin transaction", err)
		return finish()
	}
	defer tx.Rollback(ctx)

	fold := insertRows(ctx, tx, id, cols, t, log, progress)
	outcome.RowsFailed = fold.failed
	outcome.Failures = fold.failures

	if fold.err != nil {
		log.Error("insert aborted", "error", fold.err, "rows_attempted", fold.inserted+fold.failed)
		outcome.Err = fold.err
		return finish()
	}

	if err := tx.Commit(ctx); err != nil {
		outcome.Err = asConnectionError("commit", err)
		return finish()
	}

	outcome.RowsInserted = fold.inserted
	log.Info("rows inserted",
		"inserted", fold.inserted,
		"failed", fold.failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return finish()
}
