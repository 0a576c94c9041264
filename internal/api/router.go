package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/audit"
	"github.com/pawbook/appointment-service/internal/overlay"
)

type RouterConfig struct {
	// Base is the shared request path, normally the cache overlay wrapped
	// around the service. Authorization is layered on per request.
	Base     appointment.API
	Resolver overlay.OwnershipResolver
	Auditor  audit.Recorder

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	s := NewServer(cfg.Base, cfg.Resolver, cfg.Auditor, cfg.Logger)

	r.Post("/appointments", s.createAppointment)
	r.Get("/appointments", s.listAppointments)
	r.Get("/appointments/{id}", s.getAppointment)
	r.Post("/appointments/{id}/reschedule", s.rescheduleAppointment)
	r.Post("/appointments/{id}/cancel", s.cancelAppointment)
	r.Post("/appointments/{id}/confirm", s.confirmAppointment)
	r.Post("/appointments/{id}/start", s.startAppointment)
	r.Post("/appointments/{id}/complete", s.completeAppointment)
	r.Get("/availability", s.checkAvailability)

	return r
}
