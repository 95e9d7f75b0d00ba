// Command importer loads tabular files into PostgreSQL from the command line.
//
// Usage:
//
//	importer [flags] file...
//	importer -manifest imports.yaml
//	importer -preview file
//	importer -sample table [-limit n]
//	importer -list
//	importer -clear table
//
// Each file replaces the table named after it (or -table) in -schema.
// The exit code is 0 when every file imported, 2 when some did and 1 when
// none did or the command failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/joho/godotenv"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

var errTableForBatch = errors.New("-table can only be used with a single file")

// options holds the parsed command line.
type options struct {
	envFile  string
	dbURL    string
	schema   string
	table    string
	manifest string
	logLevel string
	saveEnv  string

	preview bool
	list    bool
	sample  string
	clear   string
	limit   int

	files []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.envFile, "env", ".env", "dotenv file to load if present")
	fs.StringVar(&o.dbURL, "db", "", "database URL (overrides DATABASE_URL)")
	fs.StringVar(&o.schema, "schema", "", "destination schema (overrides SCHEMA_NAME)")
	fs.StringVar(&o.table, "table", "", "destination table for a single file")
	fs.StringVar(&o.manifest, "manifest", "", "YAML manifest listing files to import")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	fs.StringVar(&o.saveEnv, "save-env", "", "write the connection settings to this dotenv file")
	fs.BoolVar(&o.preview, "preview", false, "show inferred columns and first rows without importing")
	fs.BoolVar(&o.list, "list", false, "list tables in the schema")
	fs.StringVar(&o.sample, "sample", "", "print the most recent rows of a table")
	fs.StringVar(&o.clear, "clear", "", "delete every row of a table")
	fs.IntVar(&o.limit, "limit", 0, "row limit for -sample and -preview")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.files = fs.Args()

	if o.table != "" && len(o.files) > 1 {
		return nil, errTableForBatch
	}
	if o.limit < 0 {
		return nil, errors.New("-limit must not be negative")
	}
	if !o.hasWork() {
		fs.Usage()
		return nil, errors.New("nothing to do: give files, -manifest, -list, -sample, -clear or -save-env")
	}
	return o, nil
}

func (o *options) hasWork() bool {
	return len(o.files) > 0 || o.manifest != "" || o.list || o.sample != "" || o.clear != "" || o.saveEnv != ""
}

func (o *options) overrides() map[string]string {
	return map[string]string{
		"DATABASE_URL": o.dbURL,
		"SCHEMA_NAME":  o.schema,
		"LOG_LEVEL":    o.logLevel,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the exit code. Reports go to stdout,
// logs and errors to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "importer:", err)
		}
		return exitFailed
	}

	// A missing .env is fine; real environment variables win.
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stderr, "importer:", err)
		return exitFailed
	}

	cfg, err := config.LoadWithOverrides(o.overrides())
	if err != nil {
		fmt.Fprintln(stderr, "importer:", err)
		return exitFailed
	}
	logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)

	if o.saveEnv != "" {
		if err := config.WriteEnvFile(o.saveEnv, cfg); err != nil {
			fmt.Fprintln(stderr, "importer:", err)
			return exitFailed
		}
		fmt.Fprintf(stdout, "Saved connection settings to %s\n", o.saveEnv)
		if len(o.files) == 0 && o.manifest == "" && !o.list && o.sample == "" && o.clear == "" {
			return exitOK
		}
	}

	// Preview never touches the database.
	if o.preview {
		svc := core.NewService(nil, cfg)
		return runPreview(svc, o, stdout, stderr)
	}

	pool, err := core.OpenPool(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", core.FormatUserError(err))
		return exitFailed
	}
	defer pool.Close()
	svc := core.NewService(pool, cfg)

	switch {
	case o.list:
		return runList(ctx, svc, o, stdout, stderr)
	case o.sample != "":
		return runSample(ctx, svc, o, stdout, stderr)
	case o.clear != "":
		return runClear(ctx, svc, o, stdout, stderr)
	default:
		return runImport(ctx, svc, o, stdout, stderr)
	}
}

// sources builds the batch from -manifest and the positional files.
func sources(o *options) ([]core.Source, error) {
	var out []core.Source
	if o.manifest != "" {
		m, err := config.LoadManifest(o.manifest)
		if err != nil {
			return nil, err
		}
		for _, e := range m.Files {
			out = append(out, core.Source{
				Path:    e.Path,
				Options: core.ImportOptions{Schema: e.Schema, Table: e.Table},
			})
		}
	}
	for _, path := range o.files {
		out = append(out, core.Source{
			Path:    path,
			Options: core.ImportOptions{Table: o.table},
		})
	}
	return out, nil
}

func runImport(ctx context.Context, svc *core.Service, o *options, stdout, stderr io.Writer) int {
	srcs, err := sources(o)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", err)
		return exitFailed
	}

	result := svc.ImportSources(ctx, srcs)
	printBatch(stdout, result)
	return exitCode(result)
}

func runPreview(svc *core.Service, o *options, stdout, stderr io.Writer) int {
	srcs, err := sources(o)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", err)
		return exitFailed
	}

	code := exitOK
	for _, src := range srcs {
		preview, err := svc.Preview(src, o.limit)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", src.Name(), core.FormatUserError(err))
			code = exitFailed
			continue
		}
		printPreview(stdout, preview)
	}
	return code
}

func runList(ctx context.Context, svc *core.Service, o *options, stdout, stderr io.Writer) int {
	tables, err := svc.ListTables(ctx, o.schema)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", core.FormatUserError(err))
		return exitFailed
	}
	for _, t := range tables {
		fmt.Fprintln(stdout, t.String())
	}
	return exitOK
}

func runSample(ctx context.Context, svc *core.Service, o *options, stdout, stderr io.Writer) int {
	id := core.TableIdentity{Schema: svc.DefaultSchema(), Name: o.sample}
	sample, err := svc.SampleRows(ctx, id, o.limit)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", core.FormatUserError(err))
		return exitFailed
	}
	printSample(stdout, sample)
	return exitOK
}

func runClear(ctx context.Context, svc *core.Service, o *options, stdout, stderr io.Writer) int {
	id := core.TableIdentity{Schema: svc.DefaultSchema(), Name: o.clear}
	n, err := svc.ClearTable(ctx, id)
	if err != nil {
		fmt.Fprintln(stderr, "importer:", core.FormatUserError(err))
		return exitFailed
	}
	fmt.Fprintf(stdout, "Deleted %d rows from %s\n", n, id)
	return exitOK
}

// exitCode maps the batch status onto the process exit code.
func exitCode(result core.BatchResult) int {
	switch result.Status() {
	case core.BatchAllSucceeded:
		return exitOK
	case core.BatchPartial:
		return exitPartial
	default:
		return exitFailed
	}
}
