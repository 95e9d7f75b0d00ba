// Package web provides the HTTP JSON API for the table importer.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/JonMunkholm/tableimport/internal/core"
	mw "github.com/JonMunkholm/tableimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Importer is the part of core.Service the handlers depend on.
type Importer interface {
	ImportSources(ctx context.Context, sources []core.Source) core.BatchResult
	Preview(src core.Source, limit int) (*core.PreviewResult, error)
	SampleRows(ctx context.Context, id core.TableIdentity, limit int) (*core.SampleResult, error)
	DescribeTable(ctx context.Context, id core.TableIdentity) (*core.TableDescription, error)
	ListTables(ctx context.Context, schema string) ([]core.TableIdentity, error)
	ClearTable(ctx context.Context, id core.TableIdentity) (int64, error)
	TestConnection(ctx context.Context) error
	Limiter() *core.ImportLimiter
	DefaultSchema() string
}

var _ Importer = (*core.Service)(nil)

// Server is the HTTP server for the importer.
type Server struct {
	svc    Importer
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer wires the router for svc. Call Start to listen.
func NewServer(svc Importer, cfg *config.Config) *Server {
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware installs the stack shared by every route.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(newIPRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes mounts the /api endpoints.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(&s.cfg.Security))

			// Imports run under the per-file timeout instead of the request timeout.
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(newIPRateLimiter(s.cfg.Rate.ImportLimit).middleware)
				}
				r.Post("/import", s.handleImport)
				r.Post("/preview", s.handlePreview)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

				r.Get("/tables", s.handleListTables)
				r.Get("/tables/{table}", s.handleDescribeTable)
				r.Get("/tables/{table}/sample", s.handleSampleRows)
				r.Delete("/tables/{table}/rows", s.handleClearTable)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi mux, mainly for httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON only; nothing is ever loaded from a response.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
