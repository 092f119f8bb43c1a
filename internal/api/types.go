package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

type CreateSlotRequest struct {
	ProviderID   string    `json:"provider_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Kind         string    `json:"kind,omitempty"`
	MaxOccupancy int       `json:"max_occupancy,omitempty"`
}

type RecurrencePatternRequest struct {
	Frequency  string   `json:"frequency"`
	Interval   int      `json:"interval,omitempty"`
	DaysOfWeek []string `json:"days_of_week,omitempty"`
	Until      string   `json:"until"`
	Exceptions []string `json:"exceptions,omitempty"`
}

type CreateRecurringSlotsRequest struct {
	ProviderID   string                   `json:"provider_id"`
	StartDate    string                   `json:"start_date"`
	StartTime    string                   `json:"start_time"`
	EndTime      string                   `json:"end_time"`
	Kind         string                   `json:"kind,omitempty"`
	MaxOccupancy int                      `json:"max_occupancy,omitempty"`
	Pattern      RecurrencePatternRequest `json:"pattern"`
}

type BlockSlotRequest struct {
	Reason    string `json:"reason"`
	BlockedBy string `json:"blocked_by,omitempty"`
}

type BookAppointmentRequest struct {
	ProviderID     string    `json:"provider_id"`
	PatientID      string    `json:"patient_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Priority       string    `json:"priority,omitempty"`
	ChiefComplaint string    `json:"chief_complaint,omitempty"`
	PendingPayment bool      `json:"pending_payment,omitempty"`
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SlotResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	Status           string     `json:"status"`
	Kind             string     `json:"kind"`
	MaxOccupancy     int        `json:"max_occupancy"`
	CurrentOccupancy int        `json:"current_occupancy"`
	BlockReason      *string    `json:"block_reason,omitempty"`
	RecurrenceID     *uuid.UUID `json:"recurrence_id,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProviderID     uuid.UUID  `json:"provider_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	SlotID         *uuid.UUID `json:"slot_id,omitempty"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	ChiefComplaint string     `json:"chief_complaint,omitempty"`
	CancelReason   *string    `json:"cancel_reason,omitempty"`
	HoldExpiresAt  *time.Time `json:"hold_expires_at,omitempty"`
}

type SkippedDateResponse struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type RecurringSlotsResponse struct {
	RecurrenceID uuid.UUID             `json:"recurrence_id"`
	Created      []SlotResponse        `json:"created"`
	Skipped      []SkippedDateResponse `json:"skipped"`
}

type DeleteRecurringResponse struct {
	Deleted int `json:"deleted"`
	Kept    int `json:"kept"`
}

type ErrorResponse struct {
	Error        string         `json:"error"`
	Details      string         `json:"details,omitempty"`
	Alternatives []SlotResponse `json:"alternatives,omitempty"`
}

func toSlotResponse(s *scheduling.Slot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		ProviderID:       s.ProviderID,
		Start:            s.Interval.Start,
		End:              s.Interval.End,
		Status:           string(s.Status),
		Kind:             string(s.Kind),
		MaxOccupancy:     s.MaxOccupancy,
		CurrentOccupancy: s.CurrentOccupancy,
		BlockReason:      s.BlockReason,
		RecurrenceID:     s.RecurrenceID,
	}
}

func toSlotResponses(slots []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		ProviderID:     a.ProviderID,
		PatientID:      a.PatientID,
		SlotID:         a.SlotID,
		Start:          a.Interval.Start,
		End:            a.Interval.End,
		Status:         string(a.Status),
		Priority:       string(a.Priority),
		ChiefComplaint: a.ChiefComplaint,
		CancelReason:   a.CancelReason,
		HoldExpiresAt:  a.HoldExpiresAt,
	}
}
