package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAppointmentBooked         = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed      = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted        = "APPOINTMENT_STARTED"
	EventAppointmentCompleted      = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled      = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled    = "APPOINTMENT_RESCHEDULED"
	EventAppointmentNoShow         = "APPOINTMENT_NO_SHOW"
	EventAppointmentPaymentSettled = "APPOINTMENT_PAYMENT_SETTLED"
	EventSlotCreated               = "SLOT_CREATED"
	EventSlotBlocked               = "SLOT_BLOCKED"
	EventSlotUnblocked             = "SLOT_UNBLOCKED"
	EventSlotDeleted               = "SLOT_DELETED"
)

// Event is the in-flight form of a domain event handed to subscribers.
// Delivery is fire-and-forget; the durable record is the event log row
// written inside the same transaction as the state change.
type Event struct {
	Type          string
	ProviderID    uuid.UUID
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	OccurredAt    time.Time
	Payload       map[string]any
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) {}

// LogPublisher writes events to the structured log. It stands in for a real
// notification transport.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("event_type", ev.Type),
		zap.String("provider_id", ev.ProviderID.String()),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.AppointmentID != nil {
		fields = append(fields, zap.String("appointment_id", ev.AppointmentID.String()))
	}
	if ev.SlotID != nil {
		fields = append(fields, zap.String("slot_id", ev.SlotID.String()))
	}
	p.Logger.Info("domain event", fields...)
}
