// Package server provides the HTTP server and routing for the profile engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fundlens/fundlens/internal/config"
	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/modules/catalog"
	"github.com/fundlens/fundlens/internal/modules/ledger"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/fundlens/fundlens/internal/modules/profile"
	"github.com/fundlens/fundlens/internal/modules/refresh"
	"github.com/fundlens/fundlens/internal/modules/tags"
	"github.com/fundlens/fundlens/internal/modules/valuation"
	"github.com/fundlens/fundlens/internal/scheduler"
)

// Config holds server configuration.
type Config struct {
	Log          zerolog.Logger
	Cfg          *config.Config
	LedgerDB     *database.DB
	ProfileDB    *database.DB
	Catalog      *catalog.Repository
	Ledger       *ledger.Repository
	Positions    *positions.Repository
	Recomputer   *positions.Recomputer
	Profiles     *profile.Repository
	Tags         *tags.Repository
	Orchestrator *refresh.Orchestrator
	Valuation    *valuation.Updater
	History      *scheduler.HistoryRepository // nilable
}

// Server is the engine's HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	ledgerDB       *database.DB
	profileDB      *database.DB
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates the HTTP server and wires all routes.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Cfg,
		ledgerDB:  cfg.LedgerDB,
		profileDB: cfg.ProfileDB,
		handlers: NewHandlers(
			cfg.Catalog,
			cfg.Ledger,
			cfg.Positions,
			cfg.Recomputer,
			cfg.Profiles,
			cfg.Tags,
			cfg.Orchestrator,
			cfg.Valuation,
			cfg.Log,
		),
		systemHandlers: NewSystemHandlers(
			cfg.Cfg.DataDir,
			cfg.LedgerDB,
			cfg.ProfileDB,
			cfg.History,
			cfg.Log,
		),
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// Full sweeps can run for a while; the handler streams nothing, so a
	// generous timeout beats a dropped response.
	s.router.Use(middleware.Timeout(5 * time.Minute))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.Post("/transactions", s.handlers.HandleAppendTransaction)
			r.Post("/refresh", s.handlers.HandleRefreshCustomer)
			r.Post("/recompute", s.handlers.HandleRecomputePositions)
			r.Get("/profile", s.handlers.HandleGetProfile)
			r.Get("/holdings", s.handlers.HandleGetHoldings)
			r.Get("/tags", s.handlers.HandleGetTags)
		})

		r.Post("/refresh", s.handlers.HandleRefreshAll)
		r.Post("/valuation/run", s.handlers.HandleRunValuation)
		r.Get("/tags/{tag}/customers", s.handlers.HandleGetCustomersByTag)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/jobs", s.systemHandlers.HandleJobHistory)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
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
			Msg("HTTP request")
	})
}
