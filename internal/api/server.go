// Package api is the admin surface: bot registration and lifecycle,
// direct messages through hosted bots, and service stats. Everything
// except login, health and metrics sits behind bearer auth.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/session"
	"github.com/nitpack/tgfilebotter2/internal/storage"
)

type Server struct {
	router  *chi.Mux
	logger  *zap.Logger
	store   storage.Storage
	manager *session.Manager
	auth    *Auth
	alerts  alert.Notifier

	metricsHandler http.Handler
}

func NewServer(logger *zap.Logger, store storage.Storage, manager *session.Manager, auth *Auth, alerts alert.Notifier, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger.Named("api"),
		store:          store,
		manager:        manager,
		auth:           auth,
		alerts:         alerts,
		metricsHandler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes.
	r.Group(func(r chi.Router) {
		r.Post("/api/login", s.handleLogin)
		r.Get("/healthz", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	})

	// Protected perimeter.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware(s.logger))

		r.Route("/api/bots", func(r chi.Router) {
			r.Get("/", s.handleListBots)
			r.Post("/", s.handleCreateBot)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBot)
				r.Delete("/", s.handleDeleteBot)
				r.Put("/tree", s.handleUpdateTree)
				r.Put("/status", s.handleUpdateStatus)
				r.Post("/message", s.handleSendMessage)
			})
		})
		r.Get("/api/stats", s.handleStats)
	})
}

// ServeHTTP lets the server be used as a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
