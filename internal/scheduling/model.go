package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBlocked   SlotStatus = "blocked"
	SlotBooked    SlotStatus = "booked"
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
)

type SlotKind string

const (
	KindRegular      SlotKind = "regular"
	KindEmergency    SlotKind = "emergency"
	KindConsultation SlotKind = "consultation"
	KindFollowUp     SlotKind = "follow_up"
	KindBlocked      SlotKind = "blocked"
)

// Slot is one bookable unit on a provider's calendar. Slot bounds are
// unique per provider and slots never overlap each other.
type Slot struct {
	ID               uuid.UUID
	ProviderID       uuid.UUID
	Interval         interval.Interval
	Status           SlotStatus
	Kind             SlotKind
	MaxOccupancy     int
	CurrentOccupancy int
	BlockReason      *string
	BlockedBy        *string
	RecurrenceID     *uuid.UUID
	// AppointmentID links the active appointment when MaxOccupancy == 1.
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AppointmentStatus string

const (
	StatusPendingPayment AppointmentStatus = "pending_payment"
	StatusScheduled      AppointmentStatus = "scheduled"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusInProgress     AppointmentStatus = "in_progress"
	StatusCompleted      AppointmentStatus = "completed"
	StatusCancelled      AppointmentStatus = "cancelled"
	StatusNoShow         AppointmentStatus = "no_show"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Appointment is a patient's booking against a provider. Its lifecycle is
// independent of the slot's; SlotID is set only when the booking consumed a
// formal slot.
type Appointment struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	PatientID      uuid.UUID
	SlotID         *uuid.UUID
	Interval       interval.Interval
	Status         AppointmentStatus
	Priority       Priority
	ChiefComplaint string
	CancelReason   *string
	// HoldExpiresAt bounds how long a pending_payment booking keeps its
	// calendar hold before the expiry worker cancels it.
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
