// Package server exposes the risk model over HTTP for the serve mode and
// keeps the cache fresh with a scheduled refresh job.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"perth/internal/cache"
	"perth/internal/ingest"
	"perth/internal/snapshots"
)

// Config holds server configuration.
type Config struct {
	Port            int
	DevMode         bool
	Benchmark       string // benchmark symbol for refresh jobs
	RefreshSchedule string // cron spec, default daily after close
	LookbackYears   int
}

// RefreshFunc recomputes the risk model and stores a snapshot. Wired by the
// CLI so the server does not own the full pipeline.
type RefreshFunc func(ctx context.Context) error

// Server is the HTTP front-end.
type Server struct {
	router   *chi.Mux
	cfg      Config
	log      zerolog.Logger
	start    time.Time
	universe *cache.UniverseRepository
	quotes   *cache.QuoteRepository
	store    *snapshots.Store
	ingest   *ingest.Service
	refresh  RefreshFunc
	cron     *cron.Cron
	httpSrv  *http.Server
}

func New(cfg Config, universe *cache.UniverseRepository, quotes *cache.QuoteRepository, store *snapshots.Store, ingestSvc *ingest.Service, refresh RefreshFunc, log zerolog.Logger) *Server {
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = "0 22 * * 1-5" // weekdays after US close, UTC
	}
	if cfg.LookbackYears == 0 {
		cfg.LookbackYears = 2
	}
	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		log:      log.With().Str("component", "server").Logger(),
		start:    time.Now(),
		universe: universe,
		quotes:   quotes,
		store:    store,
		ingest:   ingestSvc,
		refresh:  refresh,
		cron:     cron.New(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/universe", s.handleUniverse)
		r.Get("/universe/sectors", s.handleSectors)
		r.Get("/risk/summary", s.handleRiskSummary)
		r.Get("/risk/covariance", s.handleCovariance)
		r.Get("/attribution/{symbol}", s.handleAttribution)
		r.Post("/refresh", s.handleRefresh)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(begin)).
			Msg("request")
	})
}

// Start runs the HTTP listener and the scheduled refresh job until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.refresh != nil {
		_, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := s.refresh(jobCtx); err != nil {
				s.log.Error().Err(err).Msg("scheduled model refresh failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", s.cfg.RefreshSchedule, err)
		}
		s.cron.Start()
		defer s.cron.Stop()
	}

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.cfg.Port).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
