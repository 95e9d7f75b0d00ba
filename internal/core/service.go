package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/JonMunkholm/tableimport/internal/reader"
	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service imports files into PostgreSQL and serves the read path over the
// imported tables. It is safe for concurrent use; the server serializes
// imports through Limiter.
type Service struct {
	pool *pgxpool.Pool

	defaultSchema string
	defaultTable  string
	maxFileSize   int64
	sampleLimit   int
	previewRows   int
	timeout       time.Duration

	limiter *ImportLimiter
}

// NewService creates a Service using the import settings in cfg.
func NewService(pool *pgxpool.Pool, cfg *config.Config) *Service {
	return &Service{
		pool:          pool,
		defaultSchema: cfg.Import.Schema,
		defaultTable:  cfg.Import.Table,
		maxFileSize:   cfg.Import.MaxFileSize,
		sampleLimit:   cfg.Import.SampleLimit,
		previewRows:   cfg.Import.PreviewRows,
		timeout:       cfg.Import.Timeout,
		limiter:       NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
	}
}

// Limiter returns the limiter callers use to bound concurrent imports.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// DefaultSchema returns the schema used when an import names none.
func (s *Service) DefaultSchema() string { return s.defaultSchema }

// TestConnection checks that a pooled connection can reach the server.
func (s *Service) TestConnection(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return asConnectionError("acquire connection", err)
	}
	defer conn.Release()

	if err := conn.Ping(ctx); err != nil {
		return asConnectionError("ping", err)
	}
	return nil
}

// Source is one file to import. When Data is non-nil it is parsed instead
// of reading Path; Path still names the file for format detection and the
// derived table name.
type Source struct {
	Path    string
	Data    []byte
	Options ImportOptions
}

// Name returns the file's base name.
func (src Source) Name() string { return filepath.Base(src.Path) }

// read parses the source, enforcing the size limit.
func (s *Service) read(src Source) (*tabular.Table, error) {
	if src.Data != nil {
		if s.maxFileSize > 0 && int64(len(src.Data)) > s.maxFileSize {
			return nil, fmt.Errorf("%s: %w (%d bytes, limit %d)", src.Name(), ErrFileTooLarge, len(src.Data), s.maxFileSize)
		}
		return reader.ReadBytes(src.Name(), src.Data)
	}

	if info, err := os.Stat(src.Path); err == nil && s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%s: %w (%d bytes, limit %d)", src.Name(), ErrFileTooLarge, info.Size(), s.maxFileSize)
	}
	return reader.Read(src.Path)
}

// ImportFile reads the file at path and loads it into its destination
// table, replacing any existing table of that name.
//
// The returned outcome carries file-level failures in Err. A file with no
// data rows is skipped without touching the database.
func (s *Service) ImportFile(ctx context.Context, path string, opts ImportOptions) ImportOutcome {
	return s.Import(ctx, Source{Path: path, Options: opts})
}

// Import loads one source. See ImportFile.
func (s *Service) Import(ctx context.Context, src Source) ImportOutcome {
	start := time.Now()
	importID := uuid.New().String()
	name := src.Name()

	ctx = logging.NewContext(ctx, "import_id", importID, "file", name)
	log := logging.FromContext(ctx)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report := func(p ImportProgress) {
		if src.Options.Progress == nil {
			return
		}
		p.ImportID = importID
		p.FileName = name
		src.Options.Progress(p)
	}

	outcome := ImportOutcome{ImportID: importID, FileName: name}
	fail := func(err error) ImportOutcome {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		report(ImportProgress{Phase: PhaseFailed, TotalRows: outcome.RowsRead})
		log.Error("import failed", "error", err)
		return outcome
	}

	report(ImportProgress{Phase: PhaseReading})
	t, err := s.read(src)
	if err != nil {
		return fail(err)
	}
	outcome.RowsRead = t.Len()

	id, err := s.ResolveIdentity(src.Path, src.Options)
	if err != nil {
		return fail(err)
	}
	outcome.Table = id

	if t.Empty() {
		outcome.Skipped = true
		outcome.Duration = time.Since(start)
		report(ImportProgress{Phase: PhaseSkipped})
		log.Warn("file has no data rows, skipping", "table", id.String())
		return outcome
	}

	report(ImportProgress{Phase: PhaseCreating, TotalRows: t.Len()})
	cols, err := s.CreateTable(ctx, id, t)
	if err != nil {
		return fail(err)
	}
	outcome.Columns = cols

	report(ImportProgress{Phase: PhaseInserting, TotalRows: t.Len()})
	inserted := s.insertRows(ctx, id, cols, t, func(current, ok, failed int) {
		report(ImportProgress{
			Phase:      PhaseInserting,
			TotalRows:  t.Len(),
			CurrentRow: current,
			Inserted:   ok,
			Failed:     failed,
		})
	})
	outcome.RowsInserted = inserted.RowsInserted
	outcome.RowsFailed = inserted.RowsFailed
	outcome.Failures = inserted.Failures
	if inserted.Err != nil {
		return fail(inserted.Err)
	}

	outcome.Duration = time.Since(start)
	report(ImportProgress{
		Phase:      PhaseComplete,
		TotalRows:  t.Len(),
		CurrentRow: t.Len(),
		Inserted:   outcome.RowsInserted,
		Failed:     outcome.RowsFailed,
	})
	log.Info("import complete",
		"table", id.String(),
		"rows", outcome.RowsRead,
		"inserted", outcome.RowsInserted,
		"failed", outcome.RowsFailed,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome
}

// BatchResult collects the outcomes of a batch in input order.
type BatchResult struct {
	Outcomes []ImportOutcome `json:"outcomes"`

	// NotAttempted lists files skipped because the batch was aborted.
	NotAttempted []string `json:"notAttempted,omitempty"`

	// Err is the error that aborted the batch, if any.
	Err error `json:"-"`
}

// Total is the number of files in the batch, attempted or not.
func (b BatchResult) Total() int {
	return len(b.Outcomes) + len(b.NotAttempted)
}

// SucceededCount is the number of files with at least one stored row and
// no file-level error.
func (b BatchResult) SucceededCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Status classifies the batch as all, some or none succeeded. An empty
// batch counts as none.
func (b BatchResult) Status() BatchStatus {
	ok, total := b.SucceededCount(), b.Total()
	switch {
	case total > 0 && ok == total:
		return BatchAllSucceeded
	case ok > 0:
		return BatchPartial
	default:
		return BatchNoneSucceeded
	}
}

// Message is the terminal user message for the batch.
func (b BatchResult) Message() string {
	ok, total := b.SucceededCount(), b.Total()
	switch b.Status() {
	case BatchAllSucceeded:
		return fmt.Sprintf("All %d files imported successfully.", total)
	case BatchPartial:
		return fmt.Sprintf("Imported %d of %d files. Some files had errors; check the log for details.", ok, total)
	default:
		if b.Err != nil {
			return fmt.Sprintf("No files were imported: %s. Check the log for details.", FormatUserError(b.Err))
		}
		return "No files were imported. Check database settings, file formats and the log for details."
	}
}

// ImportBatch imports each path in order with the same options.
func (s *Service) ImportBatch(ctx context.Context, paths []string, opts ImportOptions) BatchResult {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = Source{Path: p, Options: opts}
	}
	return s.ImportSources(ctx, sources)
}

// ImportSources imports sources one after another.
//
// A file-level failure is recorded and the batch moves on. A connection
// failure or cancellation stops the batch; the remaining files are listed
// in NotAttempted. The connection is checked before the first file.
func (s *Service) ImportSources(ctx context.Context, sources []Source) BatchResult {
	var result BatchResult
	log := logging.FromContext(ctx)

	abort := func(from int, err error) BatchResult {
		result.Err = err
		for _, src := range sources[from:] {
			result.NotAttempted = append(result.NotAttempted, src.Name())
		}
		log.Error("batch aborted", "error", err, "not_attempted", len(sources)-from)
		return result
	}

	if len(sources) > 0 {
		if err := s.TestConnection(ctx); err != nil {
			return abort(0, err)
		}
	}

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return abort(i, err)
		}

		outcome := s.Import(ctx, src)
		result.Outcomes = append(result.Outcomes, outcome)

		if stopsBatch(outcome.Err) {
			return abort(i+1, outcome.Err)
		}
	}

	log.Info("batch complete",
		"files", result.Total(),
		"succeeded", result.SucceededCount(),
		"status", string(result.Status()),
	)
	return result
}

// PreviewFile reads a file and synthesizes its columns without touching
// the database. limit caps the returned rows; 0 uses the configured default.
func (s *Service) PreviewFile(path string, limit int) (*PreviewResult, error) {
	return s.Preview(Source{Path: path}, limit)
}

// Preview is PreviewFile for any source.
func (s *Service) Preview(src Source, limit int) (*PreviewResult, error) {
	t, err := s.read(src)
	if err != nil {
		return nil, err
	}
	id, err := s.ResolveIdentity(src.Path, src.Options)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.previewRows
	}
	return &PreviewResult{
		FileName: src.Name(),
		Table:    id,
		Columns:  SynthesizeColumns(t),
		RowCount: t.Len(),
		Rows:     t.Head(limit),
	}, nil
}
