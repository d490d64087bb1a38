// Package api serves stored patrol reports and metrics over read-only HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/reporter"
	"github.com/ppiankov/codepatrol/internal/trend"
)

// ReportSource is the read side of the report archive.
type ReportSource interface {
	GetLatestRun() (*models.PatrolReport, error)
	GetLastNRuns(n int) ([]*models.PatrolReport, error)
}

// Options configures a Server.
type Options struct {
	Reports ReportSource
	// Registry backs /metrics. Nil disables the endpoint.
	Registry  *prometheus.Registry
	RateLimit int
	// DefaultLast is the trend window when ?last= is absent.
	DefaultLast int
	Version     string
}

// Server exposes health, metrics and report endpoints.
type Server struct {
	opts   Options
	logger zerolog.Logger
}

// FindingView is one finding as served over HTTP. Secret snippets are
// never included.
type FindingView struct {
	Kind        models.FindingKind `json:"kind"`
	Location    string             `json:"location"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
}

// FindingsResponse is the body of /api/v1/runs/latest/findings.
type FindingsResponse struct {
	RunID    string        `json:"run_id"`
	Count    int           `json:"count"`
	Findings []FindingView `json:"findings"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewServer creates a Server.
func NewServer(opts Options, logger zerolog.Logger) *Server {
	if opts.DefaultLast <= 0 {
		opts.DefaultLast = 7
	}
	return &Server{opts: opts, logger: logger}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/runs/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/runs/latest/findings", s.handleFindings)
	mux.HandleFunc("GET /api/v1/trend", s.handleTrend)
	if s.opts.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	h = ReadOnly(h)
	h = RateLimitPerIP(s.opts.RateLimit, DefaultRateLimitWindow)(h)
	h = SecurityHeaders(h)
	h = RequestLogger(s.logger)(h)
	return h
}

// NewHTTPServer wraps the handler with conservative timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, Redact(report))
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, ok := s.latest(w)
	if !ok {
		return
	}

	views := findingViews(report)
	filtered := make([]FindingView, 0, len(views))
	for _, v := range views {
		if kind != "" && v.Kind != kind {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		filtered = append(filtered, v)
	}
	s.writeJSON(w, http.StatusOK, FindingsResponse{RunID: report.RunID, Count: len(filtered), Findings: filtered})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	last, err := ParseLast(r.URL.Query().Get("last"), s.opts.DefaultLast)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.opts.Reports.GetLastNRuns(last)
	if err != nil || len(runs) == 0 {
		s.writeError(w, http.StatusNotFound, "no stored runs")
		return
	}
	s.writeJSON(w, http.StatusOK, trend.NewAnalyzer().AnalyzeLastNRuns(runs))
}

func (s *Server) latest(w http.ResponseWriter) (*models.PatrolReport, bool) {
	report, err := s.opts.Reports.GetLatestRun()
	if err != nil {
		s.logger.Debug().Err(err).Msg("no latest run")
		s.writeError(w, http.StatusNotFound, "no stored runs")
		return nil, false
	}
	return report, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// findingViews lists the before-scan findings; a finding missing from the
// after-scan is fixed.
func findingViews(r *models.PatrolReport) []FindingView {
	remaining := map[string]bool{}
	if r.AfterFindings != nil {
		for _, f := range r.AfterFindings.Findings() {
			remaining[viewKey(f)] = true
		}
	}

	var views []FindingView
	for _, f := range r.BeforeFindings.Findings() {
		status := StatusOpen
		if r.AfterFindings != nil && !remaining[viewKey(f)] {
			status = StatusFixed
		}
		views = append(views, FindingView{
			Kind:        f.Kind(),
			Location:    f.Location(),
			Description: reporter.SafeDescription(f),
			Status:      status,
		})
	}
	return views
}

func viewKey(f models.Finding) string {
	return string(f.Kind()) + "|" + f.Location() + "|" + reporter.SafeDescription(f)
}

// Redact returns a copy of r with every secret snippet blanked.
func Redact(r *models.PatrolReport) *models.PatrolReport {
	out := *r
	out.BeforeFindings = redactSnapshot(r.BeforeFindings)
	if r.AfterFindings != nil {
		after := redactSnapshot(*r.AfterFindings)
		out.AfterFindings = &after
	}
	return &out
}

func redactSnapshot(s models.ScanSnapshot) models.ScanSnapshot {
	secrets := make([]models.SecretLeak, len(s.Secrets))
	for i, leak := range s.Secrets {
		leak.Snippet = ""
		secrets[i] = leak
	}
	s.Secrets = secrets
	return s
}
