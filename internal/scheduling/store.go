package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrPastSlot rejects slots or bookings whose start is not strictly in
	// the future.
	ErrPastSlot = errors.New("interval starts in the past")
	// ErrSlotConflict rejects a new slot overlapping an existing slot of the
	// same provider; slots tile the calendar without overlap.
	ErrSlotConflict = errors.New("slot overlaps an existing slot")
	// ErrSchedulingConflict rejects a booking whose interval overlaps a
	// committed appointment of the same provider.
	ErrSchedulingConflict = errors.New("provider is not available for the requested interval")
	// ErrSlotUnavailable means the slot exists but is blocked or full.
	ErrSlotUnavailable = errors.New("slot is blocked or has no remaining capacity")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSchedulingTimeout means the per-provider-day serialization could not
	// be acquired within the bounded wait; the caller may retry.
	ErrSchedulingTimeout = errors.New("timed out waiting for calendar access")
)

// Store owns durable scheduling state. Calendar-mutating work runs through
// InCalendarTx, which serializes on the (provider, day) partitions it names
// and commits all effects atomically or not at all.
type Store interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindAvailableSlots returns available slots of the provider on the
	// given day starting after the given instant, ordered by start ascending.
	FindAvailableSlots(ctx context.Context, providerID uuid.UUID, day, after time.Time) ([]Slot, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	// ListSlotsByRecurrence returns every slot tagged with the recurrence id,
	// ordered by start ascending.
	ListSlotsByRecurrence(ctx context.Context, providerID, recurrenceID uuid.UUID) ([]Slot, error)

	// FindExpiredHolds returns pending_payment appointments whose hold
	// deadline has passed. Used by the expiry worker.
	FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error)

	InCalendarTx(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context, tx CalendarTx) error) error
}

// CalendarTx is the mutating surface available inside a calendar
// transaction.
type CalendarTx interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	CreateSlot(ctx context.Context, slot *Slot) error
	UpdateSlot(ctx context.Context, slot *Slot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// FindOverlappingSlots returns every slot of the provider whose interval
	// overlaps iv, excluding excludeID when non-nil.
	FindOverlappingSlots(ctx context.Context, providerID uuid.UUID, iv interval.Interval, excludeID uuid.UUID) ([]Slot, error)

	// ReserveSlot atomically takes one unit of capacity, flipping the slot
	// to booked. Fails with ErrSlotUnavailable when the slot is blocked,
	// cancelled, completed, or already at max occupancy.
	ReserveSlot(ctx context.Context, id, appointmentID uuid.UUID) (*Slot, error)
	// ReleaseSlot atomically returns one unit of capacity; a booked slot
	// with no remaining occupancy becomes available again.
	ReleaseSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ListActiveAppointments returns the provider's appointments on the day
	// that currently hold calendar capacity, excluding excludeID when
	// non-nil.
	ListActiveAppointments(ctx context.Context, providerID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]Appointment, error)
	CountAppointmentsForSlot(ctx context.Context, slotID uuid.UUID) (int, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
