package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

type CreateSlotInput struct {
	ProviderID   uuid.UUID
	Start        time.Time
	End          time.Time
	Kind         SlotKind
	MaxOccupancy int
}

// CreateSlot publishes a single bookable interval on a provider's
// calendar. Slots must tile: any overlap with an existing slot of any
// status is refused.
func (s *Service) CreateSlot(ctx context.Context, in CreateSlotInput) (*Slot, error) {
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

	days := []time.Time{iv.Day()}
	var created *Slot
	err = s.withCalendar(ctx, in.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, in.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			slot, err := s.createSlotLocked(txCtx, tx, in.ProviderID, iv, in.Kind, in.MaxOccupancy, nil)
			if err != nil {
				return err
			}
			created = slot
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot created",
		zap.String("slot_id", created.ID.String()),
		zap.String("provider_id", created.ProviderID.String()),
		zap.Time("start", created.Interval.Start),
	)
	return created, nil
}

// createSlotLocked does the overlap check and insert. Must run inside a
// calendar transaction for the interval's day.
func (s *Service) createSlotLocked(ctx context.Context, tx CalendarTx, providerID uuid.UUID, iv interval.Interval, kind SlotKind, maxOccupancy int, recurrenceID *uuid.UUID) (*Slot, error) {
	overlapping, err := tx.FindOverlappingSlots(ctx, providerID, iv, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, ErrSlotConflict
	}

	if kind == "" {
		kind = KindRegular
	}
	if maxOccupancy < 1 {
		maxOccupancy = 1
	}
	slot := &Slot{
		ID:           uuid.New(),
		ProviderID:   providerID,
		Interval:     iv,
		Status:       SlotAvailable,
		Kind:         kind,
		MaxOccupancy: maxOccupancy,
		RecurrenceID: recurrenceID,
	}
	if kind == KindBlocked {
		slot.Status = SlotBlocked
	}
	if err := tx.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"provider_id": providerID.String(),
		"start":       iv.Start,
		"end":         iv.End,
		"kind":        string(kind),
	}
	if recurrenceID != nil {
		payload["recurrence_id"] = recurrenceID.String()
	}
	s.logEvent(ctx, tx, EventSlotCreated, nil, &slot.ID, payload)
	return slot, nil
}

// BlockSlot takes a slot out of circulation, recording why and by whom.
// A slot holding live bookings cannot be blocked.
func (s *Service) BlockSlot(ctx context.Context, slotID uuid.UUID, reason, blockedBy string) (*Slot, error) {
	return s.mutateSlot(ctx, slotID, EventSlotBlocked, func(slot *Slot) error {
		if slot.Status == SlotBooked {
			return ErrInvalidTransition
		}
		slot.Status = SlotBlocked
		slot.BlockReason = nil
		slot.BlockedBy = nil
		if reason != "" {
			slot.BlockReason = &reason
		}
		if blockedBy != "" {
			slot.BlockedBy = &blockedBy
		}
		return nil
	})
}

func (s *Service) UnblockSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.mutateSlot(ctx, slotID, EventSlotUnblocked, func(slot *Slot) error {
		if slot.Status != SlotBlocked {
			return ErrInvalidTransition
		}
		slot.Status = SlotAvailable
		slot.BlockReason = nil
		slot.BlockedBy = nil
		return nil
	})
}

func (s *Service) mutateSlot(ctx context.Context, slotID uuid.UUID, eventType string, mutate func(slot *Slot) error) (*Slot, error) {
	current, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	days := []time.Time{current.Interval.Day()}
	var updated *Slot
	err = s.withCalendar(ctx, current.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, current.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			slot, err := tx.GetSlot(txCtx, slotID)
			if err != nil {
				return err
			}
			if err := mutate(slot); err != nil {
				return err
			}
			if err := tx.UpdateSlot(txCtx, slot); err != nil {
				return fmt.Errorf("update slot: %w", err)
			}
			s.logEvent(txCtx, tx, eventType, nil, &slot.ID, nil)
			updated = slot
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot updated",
		zap.String("slot_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// DeleteSlot removes a slot that has never been booked. Slots with any
// booking history are kept for the audit trail and refused here.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	current, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}

	days := []time.Time{current.Interval.Day()}
	err = s.withCalendar(ctx, current.ProviderID, days, func(lockCtx context.Context) error {
		return s.store.InCalendarTx(lockCtx, current.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
			slot, err := tx.GetSlot(txCtx, slotID)
			if err != nil {
				return err
			}
			if slot.CurrentOccupancy > 0 {
				return ErrInvalidTransition
			}
			n, err := tx.CountAppointmentsForSlot(txCtx, slotID)
			if err != nil {
				return fmt.Errorf("count appointments for slot: %w", err)
			}
			if n > 0 {
				return ErrInvalidTransition
			}
			if err := tx.DeleteSlot(txCtx, slotID); err != nil {
				return err
			}
			s.logEvent(txCtx, tx, EventSlotDeleted, nil, &slotID, nil)
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("slot deleted", zap.String("slot_id", slotID.String()))
	return nil
}

func (s *Service) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.store.GetSlot(ctx, slotID)
}

// FindAvailableSlots lists a provider's open slots on a day, soonest
// first. Slots already underway are excluded.
func (s *Service) FindAvailableSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Slot, error) {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.store.FindAvailableSlots(ctx, providerID, day, time.Now())
}

// SuggestAlternatives returns up to limit open slots on the same day as
// the refused interval, for attaching to conflict responses.
func (s *Service) SuggestAlternatives(ctx context.Context, providerID uuid.UUID, day time.Time, limit int) ([]Slot, error) {
	if limit <= 0 {
		limit = 3
	}
	slots, err := s.store.FindAvailableSlots(ctx, providerID, day, time.Now())
	if err != nil {
		return nil, err
	}
	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

type RecurringInput struct {
	ProviderID uuid.UUID
	Template   SlotTemplate
	StartDate  time.Time
	Pattern    RecurrencePattern
}

type RecurringResult struct {
	RecurrenceID uuid.UUID
	Created      []Slot
	Skipped      []SkippedDate
}

// CreateRecurringSlots expands a recurrence pattern and publishes one slot
// per occurrence, all tagged with a shared recurrence id. Dates that
// conflict with existing slots or fall in the past are reported as skipped
// rather than failing the batch; infrastructure errors abort it.
func (s *Service) CreateRecurringSlots(ctx context.Context, in RecurringInput) (*RecurringResult, error) {
	if _, err := s.store.GetProvider(ctx, in.ProviderID); err != nil {
		return nil, err
	}
	if _, err := interval.New(in.Template.Start.On(in.StartDate), in.Template.End.On(in.StartDate)); err != nil {
		return nil, err
	}
	if err := in.Pattern.validate(in.StartDate); err != nil {
		return nil, err
	}

	dates, skipped := expandDates(in.StartDate, in.Pattern)
	if len(dates) == 0 && len(skipped) == 0 {
		return nil, fmt.Errorf("%w: %v", interval.ErrInvalidInterval, errNoOccurrences)
	}

	recurrenceID := uuid.New()
	result := &RecurringResult{
		RecurrenceID: recurrenceID,
		Skipped:      skipped,
	}
	now := time.Now()

	for _, date := range dates {
		iv, err := interval.New(in.Template.Start.On(date), in.Template.End.On(date))
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedDate{Date: date, Reason: err.Error()})
			continue
		}
		if !iv.Start.After(now) {
			result.Skipped = append(result.Skipped, SkippedDate{Date: date, Reason: "starts in the past"})
			continue
		}

		days := []time.Time{date}
		err = s.withCalendar(ctx, in.ProviderID, days, func(lockCtx context.Context) error {
			return s.store.InCalendarTx(lockCtx, in.ProviderID, days, func(txCtx context.Context, tx CalendarTx) error {
				slot, err := s.createSlotLocked(txCtx, tx, in.ProviderID, iv, in.Template.Kind, in.Template.MaxOccupancy, &recurrenceID)
				if err != nil {
					return err
				}
				result.Created = append(result.Created, *slot)
				return nil
			})
		})
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				result.Skipped = append(result.Skipped, SkippedDate{Date: date, Reason: "overlaps an existing slot"})
				continue
			}
			return nil, err
		}
	}

	s.logger.Info("recurring slots created",
		zap.String("provider_id", in.ProviderID.String()),
		zap.String("recurrence_id", recurrenceID.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// DeleteRecurringSlots removes every never-booked slot in a recurrence
// series. Slots with booking history are left in place and counted as
// kept.
func (s *Service) DeleteRecurringSlots(ctx context.Context, providerID, recurrenceID uuid.UUID) (deleted, kept int, err error) {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return 0, 0, err
	}
	slots, err := s.store.ListSlotsByRecurrence(ctx, providerID, recurrenceID)
	if err != nil {
		return 0, 0, fmt.Errorf("list slots by recurrence: %w", err)
	}

	for _, slot := range slots {
		switch err := s.DeleteSlot(ctx, slot.ID); {
		case err == nil:
			deleted++
		case errors.Is(err, ErrInvalidTransition):
			kept++
		case errors.Is(err, ErrSlotNotFound):
			// already gone, nothing to count
		default:
			return deleted, kept, err
		}
	}

	s.logger.Info("recurring slots deleted",
		zap.String("recurrence_id", recurrenceID.String()),
		zap.Int("deleted", deleted),
		zap.Int("kept", kept),
	)
	return deleted, kept, nil
}
