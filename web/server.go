package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"flow-metrics/config"
	"flow-metrics/dataset"
	"flow-metrics/history"
	"flow-metrics/metrics"
	"flow-metrics/report"
)

// ReportFunc produces the current report, typically by running the analysis
type ReportFunc func(ctx context.Context) (metrics.Report, error)

// RunStore reads persisted runs
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]history.RunSummary, error)
	LoadReport(ctx context.Context, id string) (metrics.Report, error)
}

// Server handles HTTP requests
type Server struct {
	Router  *chi.Mux
	config  config.Config
	log     logrus.FieldLogger
	report  ReportFunc
	runs    RunStore
	limiter *clientLimiter
}

// NewServer creates a new web server. runs may be nil when no history
// database is configured.
func NewServer(cfg config.Config, log logrus.FieldLogger, report ReportFunc, runs RunStore) *Server {
	s := &Server{
		config:  cfg,
		log:     log,
		report:  report,
		runs:    runs,
		limiter: newClientLimiter(cfg.APIRateLimit, cfg.APIRateBurst),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute)) // a full recompute can take a while
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", s.healthCheck)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Get("/", s.getDashboard)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metrics", s.getMetrics)
			r.Get("/periods", s.getPeriods)
			r.Get("/periods/{period}", s.getPeriod)
			r.Get("/issues", s.getIssues)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{runID}", s.getRun)
		})
	})

	s.Router = r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":    "error",
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"data":      data,
		"timestamp": time.Now().UTC(),
	})
}

// loadReport runs the report function, writing the error response on failure
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (metrics.Report, bool) {
	rep, err := s.report(r.Context())
	if err == nil {
		return rep, true
	}

	s.log.WithError(err).WithField("path", r.URL.Path).Error("report computation failed")
	if errors.Is(err, dataset.ErrMissingInput) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
	} else {
		writeError(w, http.StatusInternalServerError, "error computing metrics")
	}
	return metrics.Report{}, false
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "flow-metrics-api",
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	writeData(w, rep)
}

func (s *Server) getPeriods(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	writeData(w, map[string]any{
		"period_order": rep.PeriodOrder,
		"period_data":  rep.Periods,
	})
}

func (s *Server) getPeriod(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")

	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}

	stats, found := rep.Periods[period]
	if !found {
		writeError(w, http.StatusNotFound, "unknown period: "+period)
		return
	}

	writeData(w, map[string]any{
		"period": period,
		"stats":  stats,
		"issues": lo.Filter(rep.Issues, func(row metrics.IssueRow, _ int) bool { return row.Period == period }),
	})
}

// getIssues lists per-issue rows, optionally for one period; format=csv downloads them
func (s *Server) getIssues(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}

	rows := rep.Issues
	if period := r.URL.Query().Get("period"); period != "" {
		rows = lo.Filter(rows, func(row metrics.IssueRow, _ int) bool { return row.Period == period })
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="issues.csv"`)
		if err := report.WriteCSV(w, rows); err != nil {
			s.log.WithError(err).Error("writing csv response")
		}
		return
	}

	writeData(w, rows)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}

	page, err := report.RenderDashboardBytes(rep, s.config.Title)
	if err != nil {
		s.log.WithError(err).Error("rendering dashboard")
		writeError(w, http.StatusInternalServerError, "error rendering dashboard")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("listing runs")
		writeError(w, http.StatusInternalServerError, "error listing runs")
		return
	}
	writeData(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}

	runID := chi.URLParam(r, "runID")
	rep, err := s.runs.LoadReport(r.Context(), runID)
	if err != nil {
		s.log.WithError(err).WithField("run_id", runID).Warn("loading run")
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeData(w, rep)
}

// Start serves until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	addr := ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", addr).Info("starting flow metrics API server")
	s.log.Info("endpoints: GET / (dashboard), /health, /api/metrics, /api/periods, /api/periods/{period}, /api/issues, /api/runs")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
