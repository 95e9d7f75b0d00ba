package web

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

const (
	// maxUploadFiles caps the files accepted by one import request.
	maxUploadFiles = 20

	// multipartMemory is held in memory while parsing; the rest spills to disk.
	multipartMemory = 32 << 20

	// formOverhead allows for boundaries, part headers and form fields.
	formOverhead = 1 << 20

	healthTimeout = 5 * time.Second
)

// ============================================================================
// Health
// ============================================================================

// HealthResponse reports database reachability and import slot usage.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Error    *core.UserMessage        `json:"error,omitempty"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Database: "connected",
		Imports:  s.svc.Limiter().Status(),
	}

	status := http.StatusOK
	if err := s.svc.TestConnection(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		msg := core.MapError(err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
		resp.Error = &msg
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// ============================================================================
// Import
// ============================================================================

// OutcomeResponse is one file's result in an import response.
type OutcomeResponse struct {
	core.ImportOutcome
	Status   string            `json:"status"`
	Duration string            `json:"duration"`
	Error    *core.UserMessage `json:"error,omitempty"`
}

// BatchResponse is the body returned by POST /api/import.
type BatchResponse struct {
	Status       core.BatchStatus  `json:"status"`
	Message      string            `json:"message"`
	Total        int               `json:"total"`
	Succeeded    int               `json:"succeeded"`
	Outcomes     []OutcomeResponse `json:"outcomes"`
	NotAttempted []string          `json:"notAttempted,omitempty"`
	Error        *core.UserMessage `json:"error,omitempty"`
}

func outcomeStatus(o core.ImportOutcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Succeeded() && o.RowsFailed > 0:
		return "partial"
	case o.Succeeded():
		return "success"
	default:
		return "failed"
	}
}

func toBatchResponse(result core.BatchResult) BatchResponse {
	resp := BatchResponse{
		Status:       result.Status(),
		Message:      result.Message(),
		Total:        result.Total(),
		Succeeded:    result.SucceededCount(),
		Outcomes:     make([]OutcomeResponse, len(result.Outcomes)),
		NotAttempted: result.NotAttempted,
	}
	if result.Err != nil {
		msg := core.MapError(result.Err)
		resp.Error = &msg
	}

	for i, o := range result.Outcomes {
		or := OutcomeResponse{
			ImportOutcome: o,
			Status:        outcomeStatus(o),
			Duration:      o.Duration.String(),
		}
		if o.Err != nil {
			msg := core.MapError(o.Err)
			or.Error = &msg
		}
		resp.Outcomes[i] = or
	}
	return resp
}

// batchHTTPStatus is 200 when every file imported, 207 when some did and
// 422 when none did. A batch cut short by the database is 503.
func batchHTTPStatus(result core.BatchResult) int {
	if errors.Is(result.Err, core.ErrConnection) {
		return http.StatusServiceUnavailable
	}
	switch result.Status() {
	case core.BatchAllSucceeded:
		return http.StatusOK
	case core.BatchPartial:
		return http.StatusMultiStatus
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleImport imports every uploaded "file" part as its own table.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	files, err := s.parseUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	opts := core.ImportOptions{
		Schema: strings.TrimSpace(r.FormValue("schema")),
		Table:  strings.TrimSpace(r.FormValue("table")),
	}
	if opts.Table != "" && len(files) > 1 {
		respondError(w, r, errTableForBatch, http.StatusBadRequest)
		return
	}

	sources := make([]core.Source, 0, len(files))
	for _, fh := range files {
		src, err := s.readUpload(fh)
		if err != nil {
			respondError(w, r, err, statusFor(err))
			return
		}
		src.Options = opts
		sources = append(sources, src)
	}

	// The slot is taken only once every part is in memory.
	limiter := s.svc.Limiter()
	if err := limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer limiter.Release()

	logging.FromContext(r.Context()).Info("import requested", "files", len(sources))

	result := s.svc.ImportSources(r.Context(), sources)
	writeJSON(w, batchHTTPStatus(result), toBatchResponse(result))
}

// ============================================================================
// Preview
// ============================================================================

// handlePreview reports the inferred columns and first rows of one upload.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	files, err := s.parseUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	limit, err := parseLimit(r, 0)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	src, err := s.readUpload(files[0])
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	src.Options = core.ImportOptions{
		Schema: strings.TrimSpace(r.FormValue("schema")),
		Table:  strings.TrimSpace(r.FormValue("table")),
	}

	preview, err := s.svc.Preview(src, limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ============================================================================
// Tables
// ============================================================================

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	tables, err := s.svc.ListTables(r.Context(), schema)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if tables == nil {
		tables = []core.TableIdentity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	id, err := s.tableIdentity(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	desc, err := s.svc.DescribeTable(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if !desc.Exists {
		respondError(w, r, core.ErrTableNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (s *Server) handleSampleRows(w http.ResponseWriter, r *http.Request) {
	id, err := s.tableIdentity(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sample, err := s.svc.SampleRows(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// handleClearTable deletes every row but keeps the table. It shares the
// import slot so it never interleaves with a running import.
func (s *Server) handleClearTable(w http.ResponseWriter, r *http.Request) {
	id, err := s.tableIdentity(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	limiter := s.svc.Limiter()
	if err := limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer limiter.Release()

	deleted, err := s.svc.ClearTable(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"table": id, "deleted": deleted})
}

// ============================================================================
// Helpers
// ============================================================================

// parseUpload parses the multipart body and returns its "file" parts.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, error) {
	// Every part is read into memory, so the body is held to the batch budget.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBatchSize+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.ErrFileTooLarge
		}
		return nil, errInvalidForm
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, errNoFile
	}
	if len(files) > maxUploadFiles {
		return nil, errInvalidForm
	}
	return files, nil
}

// readUpload loads one part into a Source named after the uploaded file.
// At most one byte past the limit is read so the service can reject it.
func (s *Server) readUpload(fh *multipart.FileHeader) (core.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return core.Source{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.Import.MaxFileSize+1))
	if err != nil {
		return core.Source{}, err
	}
	return core.Source{Path: fh.Filename, Data: data}, nil
}

// tableIdentity reads {table} from the path and ?schema= from the query.
func (s *Server) tableIdentity(r *http.Request) (core.TableIdentity, error) {
	name := strings.TrimSpace(chi.URLParam(r, "table"))
	if name == "" {
		return core.TableIdentity{}, errMissingTable
	}
	schema := strings.TrimSpace(r.URL.Query().Get("schema"))
	if schema == "" {
		schema = s.svc.DefaultSchema()
	}
	return core.TableIdentity{Schema: schema, Name: name}, nil
}

// parseLimit parses the "limit" query parameter. Missing means def.
func parseLimit(r *http.Request, def int) (int, error) {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 {
		return 0, errInvalidLimit
	}
	return n, nil
}
