// Package httpserver provides the HTTP REST API of the arXivist backend.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/arxivist/arxivist-backend/internal/domain"
	"github.com/arxivist/arxivist-backend/internal/observability"
	"github.com/arxivist/arxivist-backend/internal/papers"
)

const welcomeMessage = "欢迎使用 arXivist Backend API"

// PaperService is the retrieval behavior the HTTP layer depends on.
// *papers.Service satisfies it.
type PaperService interface {
	FetchPapers(ctx context.Context, params papers.FetchParams) ([]domain.Paper, error)
	FetchPaperByID(ctx context.Context, arxivID string) (*domain.PaperDetail, error)
	Today() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// APIPrefix is mounted in front of /papers, e.g. "/api".
	APIPrefix string

	// AppName and AppVersion are reported by the root endpoint.
	AppName    string
	AppVersion string

	// DefaultResults and MaxResults bound the max_results query parameter.
	DefaultResults int
	MaxResults     int

	CORS CORSConfig
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// Server is the HTTP REST API server.
type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	papers     PaperService
	validate   *validator.Validate
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg Config, svc PaperService, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 2000
	}
	if cfg.DefaultResults <= 0 || cfg.DefaultResults > cfg.MaxResults {
		cfg.DefaultResults = min(papers.DefaultMaxResults, cfg.MaxResults)
	}

	s := &Server{
		cfg:      cfg,
		papers:   svc,
		validate: newValidator(),
		metrics:  metrics,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/", s.rootHandler)
	r.Get("/health", s.healthHandler)
	r.Get("/healthz", s.healthHandler)

	r.Route(s.cfg.APIPrefix+"/papers", func(r chi.Router) {
		r.Get("/", s.listPapers)
		r.Get("/*", s.getPaper)
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	c := s.cfg.CORS
	opts := cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-Id"},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	}
	return opts
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// rootHandler returns the welcome payload.
func (s *Server) rootHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, welcomeResponse{
		Message: welcomeMessage,
		Name:    s.cfg.AppName,
		Version: s.cfg.AppVersion,
	})
}

// healthHandler returns basic liveness status. The service has no backing
// store, so a running process is healthy.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}
