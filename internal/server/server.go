// Package server assembles the HTTP surface: middleware, the module route
// groups, the operational endpoints under /api/system, and the websocket
// event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/di"
	"github.com/seatwise/seatwise/internal/version"
)

// Config carries the server's dependencies.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
}

// Server is the HTTP server with all routes registered.
type Server struct {
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	router    *chi.Mux
	server    *http.Server

	system    *SystemHandlers
	streamHub *StreamHub
}

// New builds the router and binds every handler. The context is handed to
// manually triggered jobs so they stop with the rest of the process.
func New(ctx context.Context, cfg Config) *Server {
	s := &Server{
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		router:    chi.NewRouter(),
	}

	s.system = NewSystemHandlers(SystemHandlerDeps{
		DataDir:   s.cfg.DataDir,
		Databases: s.container.Databases,
		Registry:  s.container.WorkRegistry,
		InFlight:  s.container.InFlight,
		Processor: s.container.WorkProcessor,
		History:   s.container.JobHistory,
		Skus:      s.container.SkuRegistry,
		RunCtx:    ctx,
	}, cfg.Log)

	s.streamHub = NewStreamHub(s.container.EventBus, cfg.Log)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	// The event stream stays outside the timeout group: a websocket lives
	// for as long as the client keeps it open.
	s.router.Get("/api/events/ws", s.streamHub.ServeHTTP)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/health", s.handleHealth)

		r.Route("/api/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleSystemStatus)
			r.Get("/jobs", s.system.HandleJobsStatus)
			r.Post("/jobs/{jobID}/run", s.system.HandleRunJob)
			r.Get("/history", s.system.HandleJobHistory)
			r.Get("/database/stats", s.system.HandleDatabaseStats)
			r.Get("/disk", s.system.HandleDiskUsage)
		})

		s.container.TenantHandler.RegisterRoutes(r)
		s.container.DirectoryHandler.RegisterRoutes(r)
		s.container.CommerceHandler.RegisterRoutes(r)
		s.container.SkuHandler.RegisterRoutes(r)
		s.container.AnalysisHandler.RegisterRoutes(r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, s.log, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "seatwise",
		"version": version.Version,
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
