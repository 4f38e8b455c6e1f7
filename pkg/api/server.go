package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/CCShambots/5907-scouting-api/pkg/log"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/syncer"
)

// Server wires the storage manager and the sync manager into the HTTP
// surface: per-kind CRUD, the peer replication group, and health.
type Server struct {
	mgr    *manager.Manager
	sync   *syncer.Syncer
	logger zerolog.Logger
	router *chi.Mux
}

// NewServer builds the router with all routes configured
func NewServer(mgr *manager.Manager, sync *syncer.Syncer) *Server {
	s := &Server{
		mgr:    mgr,
		sync:   sync,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "child_id"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleTemplateList)
		r.Post("/", s.handleTemplateAdd)
		r.Patch("/", s.handleTemplateEdit)
		r.Get("/{name}", s.handleTemplateGet)
		r.Delete("/{name}", s.handleTemplateDelete)
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", s.handleScheduleList)
		r.Post("/", s.handleScheduleAdd)
		r.Patch("/", s.handleScheduleEdit)
		r.Get("/{event}", s.handleScheduleGet)
		r.Delete("/{event}", s.handleScheduleDelete)
		r.Get("/{event}/shifts/{scouter}", s.handleScheduleShifts)
	})

	r.Route("/bytes", func(r chi.Router) {
		r.Get("/", s.handleBytesList)
		r.Post("/{key}", s.handleBytesAdd)
		r.Get("/{key}", s.handleBytesGet)
		r.Patch("/{key}", s.handleBytesEdit)
		r.Delete("/{key}", s.handleBytesDelete)
	})

	r.Route("/forms", func(r chi.Router) {
		r.Get("/{template}", s.handleFormsList)
		r.Post("/{template}", s.handleFormsAdd)
		r.Post("/{template}/filter", s.handleFormsFilter)
		r.Get("/{template}/{id}", s.handleFormsGet)
		r.Patch("/{template}/{id}", s.handleFormsEdit)
		r.Delete("/{template}/{id}", s.handleFormsDelete)
	})

	r.Get("/counts/{kind}/{altKey}", s.handleCount)
	r.Post("/restore/{txn}", s.handleRestore)

	r.Route("/sync", func(r chi.Router) {
		r.Use(s.requireApprovedChild)
		r.Get("/id", s.handleSyncID)
		r.Get("/next", s.handleSyncNext)
		r.Get("/blob/{id}", s.handleSyncBlob)
		r.Post("/diff", s.handleSyncDiff)
	})

	s.router = r
	return s
}

// Router returns the configured handler for mounting on a listener
func (s *Server) Router() http.Handler {
	return s.router
}

// observe records request metrics and an access log line per request
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		elapsed := time.Since(start)
		metrics.ObserveRequest(route, strconv.Itoa(ww.Status()), elapsed)

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("request served")
	})
}
