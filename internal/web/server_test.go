package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/reader"
)

// fakeImporter returns canned results and records what it was asked.
type fakeImporter struct {
	limiter *core.ImportLimiter

	connErr error

	sources []core.Source
	batch   core.BatchResult

	previewSrc   core.Source
	previewLimit int
	preview      *core.PreviewResult
	previewErr   error

	tables   []core.TableIdentity
	desc     *core.TableDescription
	sample   *core.SampleResult
	queryErr error

	lastID    core.TableIdentity
	lastLimit int
	cleared   int64
}

func newFakeImporter() *fakeImporter {
	return &fakeImporter{limiter: core.NewImportLimiter(1, 20*time.Millisecond)}
}

func (f *fakeImporter) ImportSources(_ context.Context, sources []core.Source) core.BatchResult {
	f.sources = sources
	return f.batch
}

func (f *fakeImporter) Preview(src core.Source, limit int) (*core.PreviewResult, error) {
	f.previewSrc, f.previewLimit = src, limit
	return f.preview, f.previewErr
}

func (f *fakeImporter) SampleRows(_ context.Context, id core.TableIdentity, limit int) (*core.SampleResult, error) {
	f.lastID, f.lastLimit = id, limit
	return f.sample, f.queryErr
}

func (f *fakeImporter) DescribeTable(_ context.Context, id core.TableIdentity) (*core.TableDescription, error) {
	f.lastID = id
	return f.desc, f.queryErr
}

func (f *fakeImporter) ListTables(_ context.Context, schema string) ([]core.TableIdentity, error) {
	f.lastID = core.TableIdentity{Schema: schema}
	return f.tables, f.queryErr
}

func (f *fakeImporter) ClearTable(_ context.Context, id core.TableIdentity) (int64, error) {
	f.lastID = id
	return f.cleared, f.queryErr
}

func (f *fakeImporter) TestConnection(context.Context) error { return f.connErr }
func (f *fakeImporter) Limiter() *core.ImportLimiter         { return f.limiter }
func (f *fakeImporter) DefaultSchema() string                { return "data_import_schema" }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 64, MaxBatchSize: 256},
	}
}

func newTestServer(f *fakeImporter, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = testConfig()
	}
	return NewServer(f, cfg)
}

type upload struct {
	name    string
	content string
}

// multipartRequest builds a POST with one "file" part per upload plus
// the given form fields.
func multipartRequest(t *testing.T, target string, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(f.content))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// ============================================================================
// Health Tests
// ============================================================================

func TestHealth(t *testing.T) {
	f := newFakeImporter()
	s := newTestServer(f, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Imports.MaxConcurrent != 1 {
		t.Errorf("response = %+v", resp)
	}

	f.connErr = &core.ConnectionError{Op: "ping", Err: errors.New("dial tcp: connection refused")}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp = decode[HealthResponse](t, rec)
	if resp.Database != "unavailable" || resp.Error == nil || resp.Error.Code != "DB001" {
		t.Errorf("response = %+v", resp)
	}
}

// ============================================================================
// Import Tests
// ============================================================================

func TestImport_Batch(t *testing.T) {
	f := newFakeImporter()
	f.batch = core.BatchResult{Outcomes: []core.ImportOutcome{
		{FileName: "a.csv", Table: core.TableIdentity{Schema: "s", Name: "a"}, RowsRead: 2, RowsInserted: 2},
		{FileName: "b.docx", Err: reader.ErrUnsupportedFormat},
	}}
	s := newTestServer(f, nil)

	req := multipartRequest(t, "/api/import",
		[]upload{{"a.csv", "x\n1\n2\n"}, {"b.docx", "zzz"}},
		map[string]string{"schema": " archive "})
	rec := serve(s, req)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207; body %s", rec.Code, rec.Body.String())
	}

	if len(f.sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(f.sources))
	}
	if f.sources[0].Name() != "a.csv" || string(f.sources[0].Data) != "x\n1\n2\n" {
		t.Errorf("source[0] = %q %q", f.sources[0].Name(), f.sources[0].Data)
	}
	if f.sources[1].Options.Schema != "archive" {
		t.Errorf("schema option = %q, want archive", f.sources[1].Options.Schema)
	}

	resp := decode[BatchResponse](t, rec)
	if resp.Status != core.BatchPartial || resp.Total != 2 || resp.Succeeded != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Outcomes[0].Status != "success" || resp.Outcomes[1].Status != "failed" {
		t.Errorf("outcome statuses = %q, %q", resp.Outcomes[0].Status, resp.Outcomes[1].Status)
	}
	if resp.Outcomes[1].Error == nil || resp.Outcomes[1].Error.Code != "FILE002" {
		t.Errorf("outcome error = %+v", resp.Outcomes[1].Error)
	}
	if f.limiter.ActiveCount() != 0 {
		t.Error("import slot was not released")
	}
}

func TestImport_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/import", nil, map[string]string{"table": "x"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE006",
		},
		{
			name: "table with several files",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/import",
					[]upload{{"a.csv", "x\n1\n"}, {"b.csv", "y\n2\n"}},
					map[string]string{"table": "both"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  badRequestCode,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("x"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  badRequestCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeImporter()
			rec := serve(newTestServer(f, nil), tt.req(t))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantErr)
			}
			if f.sources != nil {
				t.Error("service should not be called")
			}
		})
	}
}

func TestImport_BatchOverBudget(t *testing.T) {
	f := newFakeImporter()
	cfg := testConfig()
	cfg.Import.MaxBatchSize = 64

	// Twenty 60KB parts overrun the batch budget plus form overhead.
	files := make([]upload, 0, 20)
	for i := 0; i < 20; i++ {
		files = append(files, upload{fmt.Sprintf("f%d.csv", i), strings.Repeat("a", 60_000)})
	}
	rec := serve(newTestServer(f, cfg), multipartRequest(t, "/api/import", files, nil))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", resp.Code)
	}
	if f.sources != nil {
		t.Error("service should not be called")
	}
}

func TestImport_SlotBusy(t *testing.T) {
	f := newFakeImporter()
	if !f.limiter.TryAcquire() {
		t.Fatal("could not take the only slot")
	}
	defer f.limiter.Release()

	rec := serve(newTestServer(f, nil), multipartRequest(t, "/api/import", []upload{{"a.csv", "x\n1\n"}}, nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "IMP001" {
		t.Errorf("code = %q, want IMP001", resp.Code)
	}
}

func TestImport_OversizedPartIsTruncatedForService(t *testing.T) {
	f := newFakeImporter()
	f.batch = core.BatchResult{Outcomes: []core.ImportOutcome{{Err: core.ErrFileTooLarge}}}

	big := strings.Repeat("a", 500)
	rec := serve(newTestServer(f, nil), multipartRequest(t, "/api/import", []upload{{"big.csv", big}}, nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if got := len(f.sources[0].Data); got != 65 {
		t.Errorf("read %d bytes, want limit+1 = 65", got)
	}
}

func TestBatchHTTPStatus(t *testing.T) {
	ok := core.ImportOutcome{RowsInserted: 1}
	tests := []struct {
		name   string
		result core.BatchResult
		want   int
	}{
		{"all", core.BatchResult{Outcomes: []core.ImportOutcome{ok}}, http.StatusOK},
		{"partial", core.BatchResult{Outcomes: []core.ImportOutcome{ok, {Skipped: true}}}, http.StatusMultiStatus},
		{"none", core.BatchResult{Outcomes: []core.ImportOutcome{{Err: reader.ErrUnsupportedFormat}}}, http.StatusUnprocessableEntity},
		{
			"connection lost",
			core.BatchResult{
				Outcomes:     []core.ImportOutcome{ok},
				NotAttempted: []string{"b.csv"},
				Err:          &core.ConnectionError{Op: "insert", Err: errors.New("EOF")},
			},
			http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchHTTPStatus(tt.result); got != tt.want {
				t.Errorf("batchHTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutcomeStatus(t *testing.T) {
	tests := []struct {
		o    core.ImportOutcome
		want string
	}{
		{core.ImportOutcome{RowsInserted: 3}, "success"},
		{core.ImportOutcome{RowsInserted: 3, RowsFailed: 1}, "partial"},
		{core.ImportOutcome{Skipped: true}, "skipped"},
		{core.ImportOutcome{RowsFailed: 2}, "failed"},
		{core.ImportOutcome{Err: reader.ErrFileNotFound}, "failed"},
	}
	for _, tt := range tests {
		if got := outcomeStatus(tt.o); got != tt.want {
			t.Errorf("outcomeStatus(%+v) = %q, want %q", tt.o, got, tt.want)
		}
	}
}

// ============================================================================
// Preview Tests
// ============================================================================

func TestPreview(t *testing.T) {
	f := newFakeImporter()
	f.preview = &core.PreviewResult{FileName: "p.csv", RowCount: 4}
	s := newTestServer(f, nil)

	req := multipartRequest(t, "/api/preview?limit=3", []upload{{"p.csv", "a\n1\n"}}, map[string]string{"table": "people"})
	rec := serve(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	if f.previewLimit != 3 || f.previewSrc.Options.Table != "people" || f.previewSrc.Name() != "p.csv" {
		t.Errorf("preview called with %+v limit %d", f.previewSrc, f.previewLimit)
	}
	if resp := decode[core.PreviewResult](t, rec); resp.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", resp.RowCount)
	}

	f.previewErr = reader.ErrUnsupportedFormat
	rec = serve(s, multipartRequest(t, "/api/preview", []upload{{"p.doc", "x"}}, nil))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

// ============================================================================
// Table Tests
// ============================================================================

func TestListTables(t *testing.T) {
	f := newFakeImporter()
	s := newTestServer(f, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables?schema=archive", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.lastID.Schema != "archive" {
		t.Errorf("schema = %q, want archive", f.lastID.Schema)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"tables":[]}` {
		t.Errorf("body = %s, want empty list", rec.Body.String())
	}
}

func TestDescribeTable(t *testing.T) {
	f := newFakeImporter()
	s := newTestServer(f, nil)

	f.desc = &core.TableDescription{Exists: false}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/people", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing table status = %d, want 404", rec.Code)
	}
	if f.lastID != (core.TableIdentity{Schema: "data_import_schema", Name: "people"}) {
		t.Errorf("identity = %+v", f.lastID)
	}

	f.desc = &core.TableDescription{Exists: true, RowCount: 7}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/people?schema=other", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[core.TableDescription](t, rec); resp.RowCount != 7 {
		t.Errorf("RowCount = %d", resp.RowCount)
	}
	if f.lastID.Schema != "other" {
		t.Errorf("schema = %q, want other", f.lastID.Schema)
	}
}

func TestSampleRows(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		queryErr  error
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", target: "/api/tables/t/sample", wantCode: http.StatusOK, wantLimit: 0},
		{name: "explicit limit", target: "/api/tables/t/sample?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "bad limit", target: "/api/tables/t/sample?limit=-1", wantCode: http.StatusBadRequest},
		{name: "missing table", target: "/api/tables/t/sample", queryErr: core.ErrTableNotFound, wantCode: http.StatusNotFound},
		{
			name:     "database down",
			target:   "/api/tables/t/sample",
			queryErr: &core.ConnectionError{Op: "sample", Err: errors.New("connection reset by peer")},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeImporter()
			f.sample = &core.SampleResult{Columns: []string{"a"}}
			f.queryErr = tt.queryErr
			f.lastLimit = -99

			rec := serve(newTestServer(f, nil), httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK && f.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", f.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestClearTable(t *testing.T) {
	f := newFakeImporter()
	f.cleared = 12

	rec := serve(newTestServer(f, nil), httptest.NewRequest(http.MethodDelete, "/api/tables/people/rows", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[map[string]any](t, rec)
	if resp["deleted"] != float64(12) {
		t.Errorf("deleted = %v, want 12", resp["deleted"])
	}
	if f.lastID.Name != "people" {
		t.Errorf("table = %q", f.lastID.Name)
	}
	if f.limiter.ActiveCount() != 0 {
		t.Error("import slot was not released")
	}
}

// ============================================================================
// Middleware Wiring Tests
// ============================================================================

func TestSecurityHeaders(t *testing.T) {
	rec := serve(newTestServer(newFakeImporter(), nil), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s := newTestServer(newFakeImporter(), cfg)

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without a key", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("tables status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("tables status = %d, want 200 with key", rec.Code)
	}
}

func TestRateLimitWiring(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	s := newTestServer(newFakeImporter(), cfg)

	for i := 0; i < 2; i++ {
		if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", rec.Header().Get("Retry-After"))
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "IMP004" {
		t.Errorf("code = %q, want IMP004", resp.Code)
	}
}
