package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot endpoints
	r.Post("/slots", createSlotHandler(cfg.Service))
	r.Post("/slots/recurring", createRecurringSlotsHandler(cfg.Service))
	r.Post("/slots/{id}/block", blockSlotHandler(cfg.Service))
	r.Post("/slots/{id}/unblock", unblockSlotHandler(cfg.Service))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))

	// Provider calendar endpoints
	r.Get("/providers/{id}/slots", listProviderSlotsHandler(cfg.Service))
	r.Delete("/providers/{id}/recurrences/{recurrenceID}", deleteRecurringSlotsHandler(cfg.Service))

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
		return cfg.Service.ConfirmAppointment(req.Context(), id)
	}))
	r.Post("/appointments/{id}/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
		return cfg.Service.StartAppointment(req.Context(), id)
	}))
	r.Post("/appointments/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
		return cfg.Service.CompleteAppointment(req.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
		return cfg.Service.MarkNoShow(req.Context(), id)
	}))
	r.Post("/appointments/{id}/settle-payment", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
		return cfg.Service.SettlePayment(req.Context(), id)
	}))

	return r
}
