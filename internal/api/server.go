// Package api provides the HTTP API server and handlers for the trainer directory.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/search"
	"github.com/ceskapp/directory/internal/service"
	"github.com/ceskapp/directory/internal/sse"
)

// Services groups the business logic the API server exposes.
type Services struct {
	Auth       *service.AuthService
	Directory  *service.DirectoryService
	Engagement *service.EngagementService
	// Search is nil when trainer search is disabled.
	Search *search.TrainerIndex
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// AuthRatePerMinute limits login and register attempts per client IP.
	AuthRatePerMinute int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db              Pinger
	services        *Services
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	sseManager      *sse.Manager
	sseHandler      *sse.Handler
	authRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(db Pinger, services *Services, sseManager *sse.Manager, logger *slog.Logger, opts Options) *Server {
	if opts.AuthRatePerMinute <= 0 {
		opts.AuthRatePerMinute = 20
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", backend.GuestIDHeader},
		MaxAge:         300,
	}))
	router.Use(middleware.Compress(5))
	router.Use(viewerMiddleware(services.Auth, logger))

	humaConfig := huma.DefaultConfig("Trainer Directory API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}

	s := &Server{
		db:              db,
		services:        services,
		router:          router,
		api:             humachi.New(router, humaConfig),
		logger:          logger,
		sseManager:      sseManager,
		authRateLimiter: NewRateLimiter(opts.AuthRatePerMinute, time.Minute, opts.AuthRatePerMinute/2+1),
	}
	RegisterErrorHandler()

	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
		router.Get("/api/v1/changes", s.sseHandler.ServeHTTP)
	}

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerItemRoutes()
	s.registerEngagementRoutes()
	s.registerSearchRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for OpenAPI export and tests.
func (s *Server) API() huma.API {
	return s.api
}

// Shutdown releases the rate limiter.
func (s *Server) Shutdown() error {
	s.authRateLimiter.Stop()
	return nil
}
