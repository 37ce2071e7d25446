package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"edgeprobe/internal/config"
	"edgeprobe/internal/health"
	"edgeprobe/internal/metrics"
	"edgeprobe/internal/models"
)

// Server exposes the read-only query API
type Server struct {
	cfg     *config.Config
	store   models.AggregateStore
	tracker *health.Tracker
	sampler health.SystemSampler
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	http    *http.Server
}

// Deps are the collaborators the API reads from. Sampler and Metrics may be nil.
type Deps struct {
	Store   models.AggregateStore
	Tracker *health.Tracker
	Sampler health.SystemSampler
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// New creates a new web server
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		cfg:     cfg,
		store:   d.Store,
		tracker: d.Tracker,
		sampler: d.Sampler,
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     time.Now,
	}
	s.http = &http.Server{
		Addr:              cfg.Global.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.AllowAll().Handler)

	r.Get("/providers", s.handleProviders)
	r.Get("/simple-latency", s.handleLatency(models.TestSimple))
	r.Get("/advanced-latency", s.handleLatency(models.TestAdvanced))
	r.Get("/methods", s.handleMethods)
	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("web server starting", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
