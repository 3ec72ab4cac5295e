package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

type RouterConfig struct {
	Scheduler Scheduler
	Logger    *slog.Logger
	// Window is the business-hours range used when a request gives none.
	Window         timemodel.Interval
	Location       *time.Location
	Checks         []Check
	Observer       RequestObserver
	MetricsHandler http.Handler
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Observer))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Scheduler))
		r.Get("/{id}", getAppointmentHandler(cfg.Scheduler))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Scheduler))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Scheduler))
		r.Post("/{id}/touch", touchAppointmentHandler(cfg.Scheduler))
	})
	r.Get("/resources/{id}/appointments", queryResourceHandler(cfg.Scheduler, cfg.Window))
	r.Get("/resources/{id}/appointments.ics", exportResourceHandler(cfg.Scheduler, loc))
	r.Get("/calendar", calendarHandler(cfg.Scheduler, cfg.Window))

	return r
}
