// Package server exposes the analytics pipeline as a JSON HTTP
// API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/config"
	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/ingest"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

const defaultPageSize = 50

// Importer runs imports on demand. *ingest.Engine implements it.
type Importer interface {
	Run(ctx context.Context, force bool) (ingest.Stats, error)
	LastRun() time.Time
	LastStats() ingest.Stats
}

// Server is the HTTP server for the REST API.
type Server struct {
	mu       gosync.RWMutex
	cfg      config.Config
	db       *db.DB
	importer Importer
	mux      *http.ServeMux
	httpSrv  *http.Server
	version  VersionInfo
	loc      *time.Location
	now      func() time.Time

	// contactLimit caps every contact fetch.
	contactLimit int

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server. cfg.Timezone must already be
// validated (config.Load does this); an invalid zone falls back
// to local time.
func New(cfg config.Config, database *db.DB, opts ...Option) *Server {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaultPageSize
	}
	loc, err := cfg.Location()
	if err != nil {
		slog.Warn("falling back to local time", "err", err)
		loc = time.Local
	}
	s := &Server{
		cfg: cfg,
		db:  database,
		mux: http.NewServeMux(),
		loc: loc,
		now: time.Now,

		contactLimit: crm.ContactFetchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithImporter enables the import endpoints. Nil is ignored.
func WithImporter(imp Importer) Option {
	return func(s *Server) {
		if imp != nil {
			s.importer = imp
		}
	}
}

// WithClock overrides the time source used for default date
// windows, allowing tests to pin "today". Nil is ignored.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/activities", s.withTimeout(s.handleActivities))
	s.mux.Handle("GET /api/v1/contacts", s.withTimeout(s.handleContacts))
	s.mux.Handle(
		"GET /api/v1/analytics/contacts", s.withTimeout(s.handleContactStats),
	)
	s.mux.Handle(
		"GET /api/v1/analytics/charts/{chart}", s.withTimeout(s.handleChart),
	)
	s.mux.Handle(
		"GET /api/v1/filters/options", s.withTimeout(s.handleFilterOptions),
	)
	s.mux.Handle("GET /api/v1/health", s.withTimeout(s.handleHealth))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))

	// Import runs as long as the files take; no write timeout.
	s.mux.HandleFunc("POST /api/v1/import", s.handleTriggerImport)
	s.mux.Handle(
		"GET /api/v1/import/status", s.withTimeout(s.handleImportStatus),
	)
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeData(w, s.version)
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.httpSrv = srv
	s.mu.Unlock()
	slog.Info("starting server", "url", fmt.Sprintf("http://%s", addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}
