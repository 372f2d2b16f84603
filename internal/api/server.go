// Package api serves the coordinator over HTTP under /api/v1.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/logging"
)

// Server implements the API
type Server struct {
	coord    *coordinator.Coordinator
	db       *database.MediaDB
	cfg      config.APIConfig
	activity *activity.Logger
	logger   *logging.Logger
}

// NewServer creates a new API server. activityLogger may be nil.
func NewServer(coord *coordinator.Coordinator, cfg config.APIConfig, activityLogger *activity.Logger, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		coord:    coord,
		db:       coord.Store(),
		cfg:      cfg,
		activity: activityLogger,
		logger:   logger,
	}
}

// Handler returns the HTTP handler with CORS and the API routes
func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", AccessKeyHeader},
			MaxAge:         300,
		}))
	}

	r.Mount("/api/v1", s.apiRouter())

	return r
}

// apiRouter returns a router with API routes
func (s *Server) apiRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(s.authMiddleware)

	r.Get("/health", s.HealthCheck)
	r.Get("/status", s.GetStatus)
	r.Get("/stats", s.GetStats)

	r.Route("/scan", func(r chi.Router) {
		r.Post("/", s.StartScan)
		r.Post("/path", s.StartPathScan)
		r.Post("/preview", s.PreviewScan)
		r.Post("/cancel", s.CancelScan)
	})

	r.Route("/rollback", func(r chi.Router) {
		r.Post("/season", s.RollbackSeason)
		r.Post("/run/{id}", s.RollbackRun)
	})

	r.Get("/scheduler", s.GetScheduler)
	r.Put("/scheduler", s.SetScheduler)

	r.Route("/whitelist", func(r chi.Router) {
		r.Get("/", s.ListWhitelist)
		r.Post("/", s.AddWhitelist)
		r.Post("/batch", s.AddWhitelistBatch)
		r.Delete("/", s.RemoveWhitelist)
	})

	r.Get("/rules", s.GetRules)
	r.Put("/rules", s.PutRules)
	r.Post("/rules/validate", s.ValidateRules)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Get("/{id}", s.GetRun)
		r.Get("/{id}/records", s.GetRunRecords)
	})

	r.Get("/shows", s.ListShows)
	r.Get("/shows/records", s.GetShowRecords)
	r.Get("/unrenamed", s.ListUnrenamed)
	r.Get("/activity", s.GetActivity)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("api", "Request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("duration_ms", time.Since(start).Milliseconds()),
			logging.F("request_id", middleware.GetReqID(r.Context())))
	})
}
