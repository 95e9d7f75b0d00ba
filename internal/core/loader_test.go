package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JonMunkholm/tableimport/internal/reader"
	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records statements and fails the ones execErr picks.
type fakeDB struct {
	execs   []string
	inserts int
	execErr func(sql string, args []any) error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if strings.HasPrefix(sql, "INSERT") {
		f.inserts++
	}
	if f.execErr != nil {
		if err := f.execErr(sql, args); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

// failNthInsert fails the nth INSERT with err.
func failNthInsert(db *fakeDB, n int, err error) func(string, []any) error {
	return func(sql string, _ []any) error {
		if strings.HasPrefix(sql, "INSERT") && db.inserts == n {
			return err
		}
		return nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func qtyTable(n int) (*tabular.Table, []ColumnDescriptor) {
	t := tabular.New([]string{"qty"})
	for i := 1; i <= n; i++ {
		t.AppendValues([]tabular.Value{tabular.Integer(int64(i))})
	}
	return t, []ColumnDescriptor{{Name: "qty", Source: "qty", Type: tabular.TypeInteger}}
}

var testTable = TableIdentity{Schema: "s", Name: "t"}

// ============================================================================
// Insert SQL Tests
// ============================================================================

func TestInsertSQL(t *testing.T) {
	got := insertSQL(testTable, []ColumnDescriptor{{Name: "a"}, {Name: "b c"}})
	want := `INSERT INTO "s"."t" ("a", "b c") VALUES ($1, $2)`
	if got != want {
		t.Errorf("insertSQL() = %q, want %q", got, want)
	}

	if got := insertSQL(testTable, nil); got != `INSERT INTO "s"."t" DEFAULT VALUES` {
		t.Errorf("insertSQL(no columns) = %q", got)
	}
}

// ============================================================================
// Insert Fold Tests
// ============================================================================

func TestInsertRows_AllSucceed(t *testing.T) {
	tbl, cols := qtyTable(3)
	db := &fakeDB{}

	fold := insertRows(context.Background(), db, testTable, cols, tbl, discardLogger(), nil)

	if fold.err != nil {
		t.Fatalf("fold.err = %v", fold.err)
	}
	if fold.inserted != 3 || fold.failed != 0 {
		t.Errorf("inserted=%d failed=%d, want 3/0", fold.inserted, fold.failed)
	}
	// SAVEPOINT, INSERT, RELEASE per row
	if len(db.execs) != 9 {
		t.Errorf("executed %d statements, want 9", len(db.execs))
	}
}

func TestInsertRows_RowFailureContinues(t *testing.T) {
	tbl, cols := qtyTable(5)
	db := &fakeDB{}
	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	db.execErr = failNthInsert(db, 3, dup)

	fold := insertRows(context.Background(), db, testTable, cols, tbl, discardLogger(), nil)

	if fold.err != nil {
		t.Fatalf("fold.err = %v", fold.err)
	}
	if fold.inserted != 4 || fold.failed != 1 {
		t.Errorf("inserted=%d failed=%d, want 4/1", fold.inserted, fold.failed)
	}
	if len(fold.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(fold.failures))
	}

	f := fold.failures[0]
	if f.Row != 3 {
		t.Errorf("failure row = %d, want 3", f.Row)
	}
	if f.Data["qty"] != "3" {
		t.Errorf("failure data = %v, want qty=3", f.Data)
	}
	if !strings.Contains(f.Reason, "duplicate key") {
		t.Errorf("failure reason = %q", f.Reason)
	}

	var rolledBack bool
	for _, sql := range db.execs {
		if sql == "ROLLBACK TO SAVEPOINT sp_2" {
			rolledBack = true
		}
	}
	if !rolledBack {
		t.Errorf("row 3 was not rolled back to its savepoint: %v", db.execs)
	}
}

func TestInsertRows_CoercionFailure(t *testing.T) {
	tbl := tabular.New([]string{"qty"})
	tbl.AppendValues([]tabular.Value{tabular.Integer(1)})
	tbl.AppendValues([]tabular.Value{tabular.Text("lots")})
	tbl.AppendValues([]tabular.Value{tabular.Null()})
	cols := []ColumnDescriptor{{Name: "qty", Source: "qty", Type: tabular.TypeInteger}}
	db := &fakeDB{}

	fold := insertRows(context.Background(), db, testTable, cols, tbl, discardLogger(), nil)

	if fold.inserted != 2 || fold.failed != 1 {
		t.Errorf("inserted=%d failed=%d, want 2/1", fold.inserted, fold.failed)
	}
	if db.inserts != 2 {
		t.Errorf("issued %d inserts, want 2 (bad row never sent)", db.inserts)
	}
	if fold.failures[0].Row != 2 {
		t.Errorf("failure row = %d, want 2", fold.failures[0].Row)
	}
}

func TestInsertRows_ExponentDecimals(t *testing.T) {
	tbl, err := reader.ReadBytes("readings.csv", []byte("v\n1.5e3\n2\n2E-2\n"))
	if err != nil {
		t.Fatalf("ReadBytes() error = %v", err)
	}
	cols := SynthesizeColumns(tbl)
	if cols[0].Type != tabular.TypeDecimal {
		t.Fatalf("column type = %v, want DECIMAL", cols[0].Type)
	}

	fold := insertRows(context.Background(), &fakeDB{}, testTable, cols, tbl, discardLogger(), nil)

	if fold.inserted != 3 || fold.failed != 0 {
		t.Errorf("inserted=%d failed=%d, want 3/0: %+v", fold.inserted, fold.failed, fold.failures)
	}
}

func TestInsertRows_ConnectionErrorStops(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "transport error", err: errors.New("conn closed")},
		{name: "connection sqlstate", err: &pgconn.PgError{Code: "08006", Message: "connection failure"}},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01", Message: "terminating connection"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, cols := qtyTable(5)
			db := &fakeDB{}
			db.execErr = failNthInsert(db, 2, tt.err)

			fold := insertRows(context.Background(), db, testTable, cols, tbl, discardLogger(), nil)

			if !errors.Is(fold.err, ErrConnection) {
				t.Fatalf("fold.err = %v, want ConnectionError", fold.err)
			}
			if fold.inserted != 1 {
				t.Errorf("inserted = %d, want 1", fold.inserted)
			}
			if db.inserts != 2 {
				t.Errorf("loop continued after connection error: %d inserts", db.inserts)
			}
		})
	}
}

func TestInsertRows_Cancelled(t *testing.T) {
	tbl, cols := qtyTable(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fold := insertRows(ctx, &fakeDB{}, testTable, cols, tbl, discardLogger(), nil)

	if !errors.Is(fold.err, context.Canceled) {
		t.Errorf("fold.err = %v, want context.Canceled", fold.err)
	}
	if fold.inserted != 0 {
		t.Errorf("inserted = %d, want 0", fold.inserted)
	}
}

func TestInsertRows_FailureCap(t *testing.T) {
	prev := MaxRecordedFailures
	MaxRecordedFailures = 2
	t.Cleanup(func() { MaxRecordedFailures = prev })

	tbl, cols := qtyTable(5)
	db := &fakeDB{execErr: func(sql string, _ []any) error {
		if strings.HasPrefix(sql, "INSERT") {
			return &pgconn.PgError{Code: "23514", Message: "check violation"}
		}
		return nil
	}}

	fold := insertRows(context.Background(), db, testTable, cols, tbl, discardLogger(), nil)

	if fold.failed != 5 {
		t.Errorf("failed = %d, want 5", fold.failed)
	}
	if len(fold.failures) != 2 {
		t.Errorf("recorded failures = %d, want 2", len(fold.failures))
	}
}

func TestInsertRows_Progress(t *testing.T) {
	prev := ProgressInterval
	ProgressInterval = 2
	t.Cleanup(func() { ProgressInterval = prev })

	tbl, cols := qtyTable(5)
	var calls [][3]int

	insertRows(context.Background(), &fakeDB{}, testTable, cols, tbl, discardLogger(),
		func(current, inserted, failed int) {
			calls = append(calls, [3]int{current, inserted, failed})
		})

	want := [][3]int{{2, 2, 0}, {4, 4, 0}, {5, 5, 0}}
	if len(calls) != len(want) {
		t.Fatalf("progress calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}
