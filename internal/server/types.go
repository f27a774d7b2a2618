package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/docscan/internal/pdf"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// Runner is the part of *pipeline.Pipeline the server needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.ExtractionResult, error)
}

// Factory builds the runner for one pool slot.
type Factory func() (Runner, error)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pool          *runnerPool
	corsOrigin    string
	maxUploadMB   int64
	timeout       time.Duration
	defaultFormat string
	rateLimiter   *RateLimiter
	logger        *slog.Logger
	started       time.Time
	cfg           Config
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout time.Duration
	// Pipelines is the number of documents processed concurrently.
	Pipelines     int
	DefaultFormat string
	RateLimit     RateLimitConfig
	Logger        *slog.Logger
}

// RateLimitConfig configures per-client limits. Zero values disable a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		MaxUploadMB:     50,
		TimeoutSec:      60,
		ShutdownTimeout: 10 * time.Second,
		Pipelines:       1,
		DefaultFormat:   pipeline.FormatJSON,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Time      string `json:"time"`
	Uptime    string `json:"uptime"`
	Pipelines int    `json:"pipelines"`
	Busy      int    `json:"busy"`
}

// OCRResponse wraps a single extraction result.
type OCRResponse struct {
	Success   bool                       `json:"success"`
	RequestID string                     `json:"request_id,omitempty"`
	Result    *pipeline.ExtractionResult `json:"result,omitempty"`
	Error     string                     `json:"error,omitempty"`
	ErrorType string                     `json:"error_type,omitempty"`
}

// PDFResponse wraps the results of a scanned PDF.
type PDFResponse struct {
	Success   bool                `json:"success"`
	RequestID string              `json:"request_id,omitempty"`
	Document  *pdf.DocumentResult `json:"document,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// BatchItem is the outcome for one uploaded file of a batch request.
type BatchItem struct {
	File   string                     `json:"file"`
	Result *pipeline.ExtractionResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// BatchResponse wraps the outcome of POST /ocr/batch.
type BatchResponse struct {
	Success   bool        `json:"success"`
	RequestID string      `json:"request_id,omitempty"`
	Documents []BatchItem `json:"documents"`
	Failed    int         `json:"failed"`
}

// NewServer creates a server with cfg.Pipelines runners built by factory.
func NewServer(cfg Config, factory Factory) (*Server, error) {
	if factory == nil {
		return nil, errors.New("server: nil runner factory")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("server: max upload must be positive, got %d MB", cfg.MaxUploadMB)
	}
	if cfg.TimeoutSec <= 0 {
		return nil, fmt.Errorf("server: timeout must be positive, got %d", cfg.TimeoutSec)
	}
	pool, err := newRunnerPool(max(cfg.Pipelines, 1), factory)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pool:          pool,
		corsOrigin:    cfg.CORSOrigin,
		maxUploadMB:   cfg.MaxUploadMB,
		timeout:       time.Duration(cfg.TimeoutSec) * time.Second,
		defaultFormat: cfg.DefaultFormat,
		logger:        logger,
		started:       time.Now(),
		cfg:           cfg,
	}
	if s.defaultFormat == "" {
		s.defaultFormat = pipeline.FormatJSON
	}
	if rl := cfg.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/info", s.corsMiddleware(s.infoHandler))
	mux.HandleFunc("/ocr/image", s.corsMiddleware(s.rateLimitMiddleware(s.ocrImageHandler)))
	mux.HandleFunc("/ocr/pdf", s.corsMiddleware(s.rateLimitMiddleware(s.ocrPdfHandler)))
	mux.HandleFunc("/ocr/batch", s.corsMiddleware(s.rateLimitMiddleware(s.ocrBatchHandler)))
	mux.HandleFunc("/ws/ocr", s.rateLimitMiddleware(s.ocrWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr, "pipelines", s.pool.size())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down server", "timeout", timeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
