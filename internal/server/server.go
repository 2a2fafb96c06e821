package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"codeaudit/internal/config"
	apperrors "codeaudit/internal/errors"
	"codeaudit/types"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

const (
	serviceName    = "codeaudit"
	serviceVersion = "1.0.0"
)

// Analyzer is the engine surface the HTTP layer needs.
type Analyzer interface {
	AnalyzeRequest(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisReport, error)
	AnalyzeMany(ctx context.Context, reqs []types.AnalysisRequest) ([]types.BatchResult, error)
	Categories() []types.CategoryInfo
	NarrativeEnabled() bool
}

// Features describes which optional collaborators are wired in.
type Features struct {
	Narrative         bool   `json:"narrative"`
	Knowledge         bool   `json:"knowledge"`
	Repository        bool   `json:"repository"`
	Events            bool   `json:"events"`
	CorroborationMode string `json:"corroboration_mode,omitempty"`
	ScoringProfile    string `json:"scoring_profile,omitempty"`
}

// SystemStats is the host snapshot reported by /health.
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	Goroutines    int     `json:"goroutines"`
}

type HealthStatus struct {
	Status    string       `json:"status"`
	Service   string       `json:"service"`
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Features  Features     `json:"features"`
	System    *SystemStats `json:"system,omitempty"`
}

type BatchResponse struct {
	TotalFiles int                 `json:"total_files"`
	Results    []types.BatchResult `json:"results"`
}

type CategoriesResponse struct {
	TotalTypes      int                  `json:"total_types"`
	Vulnerabilities []types.CategoryInfo `json:"vulnerabilities"`
	OWASPCoverage   []string             `json:"owasp_coverage"`
}

// Server represents the HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	engine   Analyzer
	features Features
	limiter  *apperrors.RateLimiter
	maxBody  int64
	logger   *zap.Logger
	stats    func(ctx context.Context) (*SystemStats, error)
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

func WithFeatures(f Features) Option {
	return func(s *Server) { s.features = f }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriteTimeout bounds how long a response may take; it must exceed the
// narrative timeout or slow model calls are cut off mid-response.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.server.WriteTimeout = d
		}
	}
}

func withSystemStats(fn func(ctx context.Context) (*SystemStats, error)) Option {
	return func(s *Server) { s.stats = fn }
}

// New creates the HTTP server and registers its routes.
func New(cfg config.ServerConfig, engine Analyzer, opts ...Option) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:  engine,
		limiter: apperrors.NewRateLimiter(time.Minute, cfg.RateLimitPerMinute),
		maxBody: cfg.MaxBodyBytes,
		logger:  zap.NewNop(),
		stats:   collectSystemStats,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.features.Narrative = engine.NarrativeEnabled()

	router.Use(recoveryMiddleware(s.logger))
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(s.logger))
	router.Use(apperrors.CORSMiddleware)
	router.Use(apperrors.SecurityHeadersMiddleware)
	if cfg.RateLimitPerMinute > 0 {
		router.Use(apperrors.RateLimitMiddleware(s.limiter))
	}
	router.Use(apperrors.ValidationMiddleware(s.maxBody))

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1/security").Subrouter()
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/batch-analyze", s.handleBatchAnalyze).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/vulnerability-types", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.SendError(w, apperrors.NewNotFoundError("Route "+r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.SendError(w, apperrors.NewAppError(apperrors.ErrorTypeValidation, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed", r.Method), nil))
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.pruneLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}

	report, err := s.engine.AnalyzeRequest(r.Context(), req)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	var reqs []types.AnalysisRequest
	if err := decodeJSON(r, &reqs); err != nil {
		s.sendError(w, r, err)
		return
	}

	results, err := s.engine.AnalyzeMany(r.Context(), reqs)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{TotalFiles: len(reqs), Results: results})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	infos := s.engine.Categories()

	seen := make(map[string]struct{})
	var coverage []string
	for _, info := range infos {
		if info.OWASP == "" {
			continue
		}
		if _, ok := seen[info.OWASP]; ok {
			continue
		}
		seen[info.OWASP] = struct{}{}
		coverage = append(coverage, info.OWASP)
	}
	sort.Strings(coverage)

	writeJSON(w, http.StatusOK, CategoriesResponse{
		TotalTypes:      len(infos),
		Vulnerabilities: infos,
		OWASPCoverage:   coverage,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Features:  s.features,
	}
	if s.stats != nil {
		stats, err := s.stats(r.Context())
		if err != nil {
			s.logger.Debug("host stats unavailable", zap.Error(err))
		} else {
			status.System = stats
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err).WithRequestID(RequestIDFrom(r.Context()))
	if appErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	apperrors.SendError(w, appErr)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("Request too large", map[string]interface{}{"max_bytes": tooLarge.Limit})
		}
		verr := apperrors.NewValidationError("Invalid request body", nil)
		verr.Cause = err
		return verr
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// collectSystemStats collects host metrics using gopsutil
func collectSystemStats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU metrics: %w", err)
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory metrics: %w", err)
	}
	stats.MemoryPercent = memInfo.UsedPercent
	stats.MemoryUsedMB = memInfo.Used / 1024 / 1024
	return stats, nil
}
