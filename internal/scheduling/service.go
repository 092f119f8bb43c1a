package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-engine/internal/interval"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
)

type ServiceConfig struct {
	// PendingHoldTTL is how long a pending_payment booking keeps its
	// calendar hold before the expiry worker may cancel it.
	PendingHoldTTL time.Duration
}

// Service is the single authority over a provider's calendar. Every write
// that can affect the no-overlap invariant runs through it: the check and
// the write execute inside one per-(provider, day) critical section backed
// by the locker and the store transaction together.
type Service struct {
	store  Store
	locker redisclient.CalendarLocker
	events Publisher
	logger *zap.Logger
	cfg    ServiceConfig
}

func NewService(store Store, locker redisclient.CalendarLocker, events Publisher, logger *zap.Logger, cfg ServiceConfig) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PendingHoldTTL == 0 {
		cfg.PendingHoldTTL = 10 * time.Minute
	}
	return &Service{
		store:  store,
		locker: locker,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
}

// withCalendar runs fn holding the calendar locks for the given days. An
// exhausted bounded wait surfaces as ErrSchedulingTimeout with nothing
// mutated.
func (s *Service) withCalendar(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithCalendarLock(ctx, providerID, days, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSchedulingTimeout
	}
	return err
}

// admitInterval is the conflict check at the core of the guard. It must be
// called inside a calendar transaction for the interval's day. It returns
// the formal slot exactly matching the interval, when one exists, so the
// caller can reserve it.
func admitInterval(ctx context.Context, tx CalendarTx, providerID uuid.UUID, iv interval.Interval, excludeAppointmentID uuid.UUID) (*Slot, error) {
	overlapping, err := tx.FindOverlappingSlots(ctx, providerID, iv, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}
	var match *Slot
	for i := range overlapping {
		if overlapping[i].Status == SlotBlocked {
			return nil, ErrSlotUnavailable
		}
		if overlapping[i].Interval.Equal(iv) {
			match = &overlapping[i]
		}
	}
	if match != nil && (match.Status == SlotCancelled || match.Status == SlotCompleted) {
		return nil, ErrSlotUnavailable
	}

	active, err := tx.ListActiveAppointments(ctx, providerID, iv.Day(), excludeAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	for _, a := range active {
		if !a.Interval.Overlaps(iv) {
			continue
		}
		// Co-occupants of the matching slot share the interval; the slot
		// reservation enforces its capacity.
		if match != nil && a.SlotID != nil && *a.SlotID == match.ID {
			continue
		}
		return nil, ErrSchedulingConflict
	}
	return match, nil
}

type BookInput struct {
	ProviderID     uuid.UUID
	PatientID      uuid.UUID
	Start          time.Time
	End            time.Time
	Priority       Priority
	ChiefComplaint string
	// PendingPayment creates the booking in pending_payment: the interval
	// is held until the payment collaborator settles or the hold expires.
	PendingPayment bool
}

// BookAppointment admits a booking if and only if the requested interval
// conflicts with nothing the provider has committed to. When a formal slot
// matches the interval its capacity is consumed in the same transaction.
func (s *Service) BookAppointment(ctx context.Context, in BookInput) (*Appointment, error) {
	iv, err := interval.New(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if !iv.Start.After(time.Now()) {
		return nil, ErrPastSlot
	}
	if _, err := s.store.GetProvider(ctx, in.ProviderID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPatient(ctx, in.PatientID); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	days := []time.Time{iv.Day()}
	var created *Appointment
	err = s.withCalendar(ctx, in.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, in.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			match, err := admitInterval(txCtx, tx, in.ProviderID, iv, uuid.Nil)
			if err != nil {
				return err
			}

			appt := &Appointment{
				ID:             uuid.New(),
				ProviderID:     in.ProviderID,
				PatientID:      in.PatientID,
				Interval:       iv,
				Status:         StatusScheduled,
				Priority:       priority,
				ChiefComplaint: in.ChiefComplaint,
			}
			if in.PendingPayment {
				appt.Status = StatusPendingPayment
				holdUntil := time.Now().Add(s.cfg.PendingHoldTTL)
				appt.HoldExpiresAt = &holdUntil
			}
			if match != nil {
				if _, err := tx.ReserveSlot(txCtx, match.ID, appt.ID); err != nil {
					return err
				}
				slotID := match.ID
				appt.SlotID = &slotID
			}
			if err := tx.CreateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			s.logEvent(txCtx, tx, EventAppointmentBooked, &appt.ID, appt.SlotID, map[string]any{
				"provider_id": in.ProviderID.String(),
				"patient_id":  in.PatientID.String(),
				"start":       iv.Start,
				"end":         iv.End,
				"status":      string(appt.Status),
			})
			created = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventAppointmentBooked, created.ProviderID, &created.ID, created.SlotID)
	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("provider_id", created.ProviderID.String()),
		zap.Time("start", created.Interval.Start),
		zap.String("status", string(created.Status)),
	)
	return created, nil
}

// RescheduleAppointment moves a booking to a new interval as one atomic
// release-then-admit: the old capacity is freed and the new interval
// admitted inside a single critical section covering both days.
func (s *Service) RescheduleAppointment(ctx context.Context, appointmentID uuid.UUID, newStart, newEnd time.Time) (*Appointment, error) {
	newIv, err := interval.New(newStart, newEnd)
	if err != nil {
		return nil, err
	}
	if !newIv.Start.After(time.Now()) {
		return nil, ErrPastSlot
	}

	current, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	days := []time.Time{current.Interval.Day(), newIv.Day()}
	var updated *Appointment
	err = s.withCalendar(ctx, current.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, current.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			appt, err := tx.GetAppointment(txCtx, appointmentID)
			if err != nil {
				return err
			}
			if !reschedulable(appt.Status) {
				return ErrInvalidTransition
			}

			match, err := admitInterval(txCtx, tx, appt.ProviderID, newIv, appt.ID)
			if err != nil {
				return err
			}

			if appt.SlotID != nil {
				if _, err := tx.ReleaseSlot(txCtx, *appt.SlotID); err != nil {
					return fmt.Errorf("release slot: %w", err)
				}
				appt.SlotID = nil
			}
			if match != nil {
				if _, err := tx.ReserveSlot(txCtx, match.ID, appt.ID); err != nil {
					return err
				}
				slotID := match.ID
				appt.SlotID = &slotID
			}
			appt.Interval = newIv
			if err := tx.UpdateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}

			s.logEvent(txCtx, tx, EventAppointmentRescheduled, &appt.ID, appt.SlotID, map[string]any{
				"start": newIv.Start,
				"end":   newIv.End,
			})
			updated = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventAppointmentRescheduled, updated.ProviderID, &updated.ID, updated.SlotID)
	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", updated.ID.String()),
		zap.Time("start", updated.Interval.Start),
	)
	return updated, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, EventAppointmentConfirmed, nil)
}

func (s *Service) StartAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, EventAppointmentStarted, nil)
}

// CompleteAppointment closes an encounter. The linked slot keeps its
// occupancy and is marked completed in the same transaction.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted, func(txCtx context.Context, tx CalendarTx, appt *Appointment) error {
		if appt.SlotID == nil {
			return nil
		}
		slot, err := tx.GetSlot(txCtx, *appt.SlotID)
		if err != nil {
			return err
		}
		slot.Status = SlotCompleted
		return tx.UpdateSlot(txCtx, slot)
	})
}

// CancelAppointment is allowed from every non-terminal state and releases
// the linked slot's capacity.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, EventAppointmentCancelled, func(txCtx context.Context, tx CalendarTx, appt *Appointment) error {
		if reason != "" {
			appt.CancelReason = &reason
		}
		return releaseLinkedSlot(txCtx, tx, appt)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventAppointmentNoShow, releaseLinkedSlot)
}

// SettlePayment is the payment collaborator's signal that a
// pending_payment booking is paid for.
func (s *Service) SettlePayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusScheduled, EventAppointmentPaymentSettled, func(txCtx context.Context, tx CalendarTx, appt *Appointment) error {
		appt.HoldExpiresAt = nil
		return nil
	})
}

func releaseLinkedSlot(ctx context.Context, tx CalendarTx, appt *Appointment) error {
	if appt.SlotID == nil {
		return nil
	}
	if _, err := tx.ReleaseSlot(ctx, *appt.SlotID); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, eventType string, mutate func(ctx context.Context, tx CalendarTx, appt *Appointment) error) (*Appointment, error) {
	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	days := []time.Time{current.Interval.Day()}
	var updated *Appointment
	err = s.withCalendar(ctx, current.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, current.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			appt, err := tx.GetAppointment(txCtx, id)
			if err != nil {
				return err
			}
			if !canTransition(appt.Status, to) {
				return ErrInvalidTransition
			}
			appt.Status = to
			if mutate != nil {
				if err := mutate(txCtx, tx, appt); err != nil {
					return err
				}
			}
			if err := tx.UpdateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			s.logEvent(txCtx, tx, eventType, &appt.ID, appt.SlotID, nil)
			updated = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventType, updated.ProviderID, &updated.ID, updated.SlotID)
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// ExpirePendingHolds cancels pending_payment bookings whose hold deadline
// has passed, freeing their calendar capacity. Called periodically by the
// expiry worker. Each hold is re-verified under its calendar lock, so a
// hold that settled or was cancelled after the sweep query is left alone.
func (s *Service) ExpirePendingHolds(ctx context.Context) (int, error) {
	now := time.Now()
	holds, err := s.store.FindExpiredHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find expired holds: %w", err)
	}

	expired := 0
	for _, appt := range holds {
		if err := s.expireHold(ctx, appt.ID, now); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.logger.Warn("failed to expire payment hold",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// expireHold cancels a single payment hold. The sweep query and the cancel
// are separate steps, so the transaction re-reads the appointment and only
// proceeds while it is still a pending_payment booking whose hold deadline
// has passed. Anything else returns ErrInvalidTransition and the caller
// skips it.
func (s *Service) expireHold(ctx context.Context, id uuid.UUID, now time.Time) error {
	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	days := []time.Time{current.Interval.Day()}
	var cancelled *Appointment
	err = s.withCalendar(ctx, current.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, current.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			appt, err := tx.GetAppointment(txCtx, id)
			if err != nil {
				return err
			}
			if appt.Status != StatusPendingPayment || appt.HoldExpiresAt == nil || appt.HoldExpiresAt.After(now) {
				return ErrInvalidTransition
			}
			appt.Status = StatusCancelled
			reason := "payment hold expired"
			appt.CancelReason = &reason
			if err := releaseLinkedSlot(txCtx, tx, appt); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			s.logEvent(txCtx, tx, EventAppointmentCancelled, &appt.ID, appt.SlotID, nil)
			cancelled = appt
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, EventAppointmentCancelled, cancelled.ProviderID, &cancelled.ID, cancelled.SlotID)
	s.logger.Info("payment hold expired",
		zap.String("appointment_id", cancelled.ID.String()),
	)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) logEvent(ctx context.Context, tx CalendarTx, eventType string, appointmentID, slotID *uuid.UUID, payload map[string]any) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			s.logger.Warn("failed to marshal event payload",
				zap.String("event_type", eventType),
				zap.Error(err),
			)
			data = nil
		}
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, providerID uuid.UUID, appointmentID, slotID *uuid.UUID) {
	s.events.Publish(ctx, Event{
		Type:          eventType,
		ProviderID:    providerID,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		OccurredAt:    time.Now(),
	})
}
