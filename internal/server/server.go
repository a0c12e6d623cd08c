// Package server exposes the estimator over JSON/HTTP and answers gRPC
// health checks.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/export"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
	"github.com/joseph-ayodele/cbam-tracker/internal/repository"
	"github.com/joseph-ayodele/cbam-tracker/internal/session"
)

// Accounts answers login and credit lookups.
type Accounts interface {
	Authenticate(ctx context.Context, username, password string) (entity.Account, error)
	Lookup(ctx context.Context, username string) (entity.Account, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Accounts    Accounts
	Sessions    *session.Store
	Analyzer    *pipeline.Analyzer
	Tables      pipeline.TableSource
	Reports     *export.Service
	History     repository.HistoryRepository
	MaxUploadMB int
}

type Server struct {
	Deps
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tables == nil && deps.Analyzer != nil {
		deps.Tables = deps.Analyzer.Tables
	}
	if deps.Reports == nil {
		deps.Reports = export.NewService(logger)
	}
	if deps.History == nil {
		deps.History = repository.Noop{}
	}
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = 5 * constants.MaxImageMBDefault
	}
	return &Server{Deps: deps, logger: logger, now: time.Now}
}

// Handler returns the routed API wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/logout", s.handleLogout)
	mux.HandleFunc("GET /api/v1/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /api/v1/materials", s.handleMaterials)
	mux.HandleFunc("POST /api/v1/estimate", s.handleEstimate)

	mux.HandleFunc("POST /api/v1/batch", s.authed(s.handleUpload))
	mux.HandleFunc("GET /api/v1/batch", s.authed(s.handleGetBatch))
	mux.HandleFunc("DELETE /api/v1/batch", s.authed(s.handleClearBatch))
	mux.HandleFunc("PATCH /api/v1/batch/items/{index}", s.authed(s.handleCorrectItem))
	mux.HandleFunc("GET /api/v1/batch/report", s.authed(s.handleReport))
	mux.HandleFunc("GET /api/v1/history", s.authed(s.handleHistory))

	return chain(mux, s.logger, recoverer, accessLog, requestID)
}

// SweepSessions drops idle sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sessions.Sweep()
		}
	}
}
