package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/reader"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI runs the command with a dotenv path that does not exist, so a
// developer's .env never leaks into the test.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"-env", filepath.Join(t.TempDir(), "missing.env")}, args...)
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// ============================================================================
// Flag Tests
// ============================================================================

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "files", args: []string{"a.csv", "b.csv"}},
		{name: "single file with table", args: []string{"-table", "t", "a.csv"}},
		{name: "table with several files", args: []string{"-table", "t", "a.csv", "b.csv"}, wantErr: "-table"},
		{name: "nothing to do", args: nil, wantErr: "nothing to do"},
		{name: "negative limit", args: []string{"-sample", "t", "-limit", "-1"}, wantErr: "-limit"},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags() error = %v", err)
			}
			if len(o.files) == 0 {
				t.Error("files not collected")
			}
		})
	}
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "imports.yaml", "schema: sales\nfiles:\n  - path: a.csv\n  - path: b.csv\n    table: bee\n")

	srcs, err := sources(&options{manifest: manifest, files: []string{"c.csv"}, table: "see"})
	if err != nil {
		t.Fatalf("sources() error = %v", err)
	}
	if len(srcs) != 3 {
		t.Fatalf("sources = %d, want 3", len(srcs))
	}
	if srcs[0].Path != filepath.Join(dir, "a.csv") || srcs[0].Options.Schema != "sales" {
		t.Errorf("manifest entry = %+v", srcs[0])
	}
	if srcs[1].Options.Table != "bee" {
		t.Errorf("manifest table = %q", srcs[1].Options.Table)
	}
	if srcs[2].Path != "c.csv" || srcs[2].Options.Table != "see" {
		t.Errorf("positional entry = %+v", srcs[2])
	}
}

// ============================================================================
// Run Tests
// ============================================================================

func TestRun_Preview(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Orders.csv", "id,name,amount\n1,Ann,1.5\n2,Bob,2\n")

	code, stdout, stderr := runCLI(t, "-preview", path)

	if code != exitOK {
		t.Fatalf("exit = %d, stderr %s", code, stderr)
	}
	for _, want := range []string{"Orders.csv -> data_import_schema.orders (2 rows)", "amount", "DECIMAL", "Ann"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_PreviewBadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.docx", "hello")

	code, _, stderr := runCLI(t, "-preview", path)

	if code != exitFailed {
		t.Errorf("exit = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(stderr, "FILE002") {
		t.Errorf("stderr = %q, want FILE002", stderr)
	}
}

func TestRun_SaveEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "saved.env")

	code, stdout, stderr := runCLI(t, "-save-env", out, "-schema", "archive")

	if code != exitOK {
		t.Fatalf("exit = %d, stderr %s", code, stderr)
	}
	if !strings.Contains(stdout, out) {
		t.Errorf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `SCHEMA_NAME="archive"`) {
		t.Errorf("saved file = %s", data)
	}
}

func TestRun_DatabaseUnreachable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "people.csv", "name\nAnn\n")

	code, stdout, _ := runCLI(t, "-db", "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", path)

	if code != exitFailed {
		t.Errorf("exit = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(stdout, "not attempted") || !strings.Contains(stdout, "No files were imported") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRun_BadConfig(t *testing.T) {
	code, _, stderr := runCLI(t, "-schema", "bad-name!", "a.csv")

	if code != exitFailed {
		t.Errorf("exit = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(stderr, "SCHEMA_NAME") {
		t.Errorf("stderr = %q", stderr)
	}
}

// ============================================================================
// Report Tests
// ============================================================================

func TestExitCode(t *testing.T) {
	ok := core.ImportOutcome{RowsInserted: 1}
	tests := []struct {
		result core.BatchResult
		want   int
	}{
		{core.BatchResult{Outcomes: []core.ImportOutcome{ok}}, exitOK},
		{core.BatchResult{Outcomes: []core.ImportOutcome{ok, {Skipped: true}}}, exitPartial},
		{core.BatchResult{Outcomes: []core.ImportOutcome{{Err: reader.ErrFileNotFound}}}, exitFailed},
		{core.BatchResult{}, exitFailed},
	}
	for _, tt := range tests {
		if got := exitCode(tt.result); got != tt.want {
			t.Errorf("exitCode(%s) = %d, want %d", tt.result.Status(), got, tt.want)
		}
	}
}

func TestPrintOutcome(t *testing.T) {
	failures := make([]core.RowFailure, 7)
	for i := range failures {
		failures[i] = core.RowFailure{Row: i + 1, Reason: "bad value"}
	}

	tests := []struct {
		name    string
		outcome core.ImportOutcome
		want    []string
	}{
		{
			name: "success",
			outcome: core.ImportOutcome{
				FileName: "a.csv", Table: core.TableIdentity{Schema: "s", Name: "a"},
				RowsRead: 3, RowsInserted: 3, Duration: 1500 * time.Microsecond,
			},
			want: []string{"OK   a.csv -> s.a: 3 of 3 rows inserted, 0 failed (2ms)"},
		},
		{
			name: "partial lists failures",
			outcome: core.ImportOutcome{
				FileName: "b.csv", Table: core.TableIdentity{Schema: "s", Name: "b"},
				RowsRead: 10, RowsInserted: 3, RowsFailed: 7, Failures: failures,
			},
			want: []string{"PART b.csv", "row 5: bad value", "... 2 more"},
		},
		{
			name:    "file error",
			outcome: core.ImportOutcome{FileName: "c.docx", Err: reader.ErrUnsupportedFormat},
			want:    []string{"FAIL c.docx", "FILE002"},
		},
		{
			name:    "skipped",
			outcome: core.ImportOutcome{FileName: "d.csv", Skipped: true},
			want:    []string{"SKIP d.csv: no data rows"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printOutcome(&buf, tt.outcome)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
			if strings.Contains(buf.String(), "row 6:") {
				t.Error("printed more failures than the cap")
			}
		})
	}
}

func TestAnyCell(t *testing.T) {
	ts := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		v    any
		want string
	}{
		{nil, "NULL"},
		{ts, "2024-01-15 08:30:00"},
		{int32(5), "5"},
		{"x", "x"},
	}
	for _, tt := range tests {
		if got := anyCell(tt.v); got != tt.want {
			t.Errorf("anyCell(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
