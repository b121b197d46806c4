package httpadapter

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "scanbridge/internal/log"
	"scanbridge/internal/ports"
)

// Targets maps a camera selector to the scanner's base URL.
type Targets interface {
	BaseURL(camera string) (string, error)
}

// Server exposes scan control, artifact downloads and the job bridge.
type Server struct {
	scanner ports.ScanController
	bridge  ports.Bridge
	dir     ports.ScanDirectory
	targets Targets
	conv    ports.Converter
	health  func(ctx context.Context) error
	baseCtx context.Context
}

type Option func(*Server)

// WithConverter enables /converted-file.
func WithConverter(conv ports.Converter) Option {
	return func(s *Server) { s.conv = conv }
}

// WithHealthCheck adds a dependency check to /health.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// WithBaseContext sets the context scan sessions run under. Sessions outlive the
// request that started them and end when this context is cancelled.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

func New(scanner ports.ScanController, bridge ports.Bridge, dir ports.ScanDirectory, targets Targets, opts ...Option) *Server {
	s := &Server{
		scanner: scanner,
		bridge:  bridge,
		dir:     dir,
		targets: targets,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with middleware and every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", handleOpenAPI)

	r.Get("/trigger-scan", s.handleTriggerScan)
	r.Get("/pause-scan", s.handlePauseScan)
	r.Get("/stop-scan", s.handleStopScan)
	r.Get("/scan-status", s.handleScanStatus)
	r.Get("/download-file", s.handleDownloadFile)
	r.Get("/converted-file", s.handleConvertedFile)

	r.Route("/bridge/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmitJob)
		r.Get("/next", s.handleNextJob)
		r.Post("/{id}/complete", s.handleCompleteJob)
		r.Get("/{id}", s.handleGetJob)
	})
	return r
}

// sessionContext detaches a scan session from the request that started it while
// keeping its request-scoped log attributes.
func (s *Server) sessionContext(r *http.Request) context.Context {
	return applog.ContextAttrs(s.baseCtx, slog.String("request_id", middleware.GetReqID(r.Context())))
}
