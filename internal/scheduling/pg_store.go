package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

// PgStore is the Postgres Store. Calendar transactions take a
// pg_advisory_xact_lock per (provider, day) partition, in sorted key
// order so multi-day transactions cannot deadlock each other. The
// no-overlap exclusion constraints are the backstop of last resort;
// their violations map onto the same conflict errors the guard raises.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const slotColumns = `id, provider_id, start_time, end_time, status, kind, max_occupancy, current_occupancy, block_reason, blocked_by, recurrence_id, appointment_id, created_at, updated_at`

const appointmentColumns = `id, provider_id, patient_id, slot_id, start_time, end_time, status, priority, chief_complaint, cancel_reason, hold_expires_at, created_at, updated_at`

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Interval.Start,
		&s.Interval.End,
		&s.Status,
		&s.Kind,
		&s.MaxOccupancy,
		&s.CurrentOccupancy,
		&s.BlockReason,
		&s.BlockedBy,
		&s.RecurrenceID,
		&s.AppointmentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.SlotID,
		&a.Interval.Start,
		&a.Interval.End,
		&a.Status,
		&a.Priority,
		&a.ChiefComplaint,
		&a.CancelReason,
		&a.HoldExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapConstraintErr translates no-overlap constraint violations into the
// guard's conflict errors. These only fire if a write slipped past the
// advisory-lock serialization.
func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case "slots_no_overlap", "slots_provider_bounds_key":
			return ErrSlotConflict
		case "appointments_no_overlap":
			return ErrSchedulingConflict
		}
	}
	return err
}

// Store methods

func (s *PgStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *PgStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return getSlot(ctx, s.pool, id)
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, s.pool, id)
}

func (s *PgStore) FindAvailableSlots(ctx context.Context, providerID uuid.UUID, day, after time.Time) ([]Slot, error) {
	dayStart := startOfDay(day)
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND status = 'available'
		  AND start_time >= $2
		  AND start_time < $3
		  AND start_time > $4
		ORDER BY start_time
	`, providerID, dayStart, dayStart.AddDate(0, 0, 1), after)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (s *PgStore) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (s *PgStore) ListSlotsByRecurrence(ctx context.Context, providerID, recurrenceID uuid.UUID) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND recurrence_id = $2
		ORDER BY start_time
	`, providerID, recurrenceID)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (s *PgStore) FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending_payment'
		  AND hold_expires_at IS NOT NULL
		  AND hold_expires_at < $1
		ORDER BY start_time
	`, now)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (s *PgStore) InCalendarTx(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context, tx CalendarTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, key := range calendarLockKeys(providerID, days) {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
				return fmt.Errorf("acquire calendar lock: %w", err)
			}
		}
		return fn(ctx, &pgCalendarTx{tx: tx})
	})
}

// calendarLockKeys returns the sorted, deduplicated advisory lock keys for
// the (provider, day) partitions a transaction touches.
func calendarLockKeys(providerID uuid.UUID, days []time.Time) []string {
	seen := make(map[string]struct{}, len(days))
	keys := make([]string, 0, len(days))
	for _, day := range days {
		k := providerID.String() + ":" + day.Format("2006-01-02")
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func getSlot(ctx context.Context, q pgQuerier, id uuid.UUID) (*Slot, error) {
	row := q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func getAppointment(ctx context.Context, q pgQuerier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// Transaction surface

type pgCalendarTx struct {
	tx pgx.Tx
}

func (t *pgCalendarTx) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return getSlot(ctx, t.tx, id)
}

func (t *pgCalendarTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t *pgCalendarTx) CreateSlot(ctx context.Context, slot *Slot) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO slots (id, provider_id, start_time, end_time, status, kind, max_occupancy, current_occupancy, block_reason, blocked_by, recurrence_id, appointment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`, slot.ID, slot.ProviderID, slot.Interval.Start, slot.Interval.End, slot.Status, slot.Kind,
		slot.MaxOccupancy, slot.CurrentOccupancy, slot.BlockReason, slot.BlockedBy, slot.RecurrenceID, slot.AppointmentID)

	if err := row.Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (t *pgCalendarTx) UpdateSlot(ctx context.Context, slot *Slot) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE slots
		SET start_time = $2,
		    end_time = $3,
		    status = $4,
		    kind = $5,
		    max_occupancy = $6,
		    current_occupancy = $7,
		    block_reason = $8,
		    blocked_by = $9,
		    appointment_id = $10,
		    updated_at = now()
		WHERE id = $1
	`, slot.ID, slot.Interval.Start, slot.Interval.End, slot.Status, slot.Kind,
		slot.MaxOccupancy, slot.CurrentOccupancy, slot.BlockReason, slot.BlockedBy, slot.AppointmentID)
	if err != nil {
		return mapConstraintErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgCalendarTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgCalendarTx) FindOverlappingSlots(ctx context.Context, providerID uuid.UUID, iv interval.Interval, excludeID uuid.UUID) ([]Slot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND id <> $4
		ORDER BY start_time
	`, providerID, iv.Start, iv.End, excludeID)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (t *pgCalendarTx) ReserveSlot(ctx context.Context, id, appointmentID uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE slots
		SET current_occupancy = current_occupancy + 1,
		    status = 'booked',
		    appointment_id = CASE WHEN max_occupancy = 1 THEN $2 ELSE appointment_id END,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('available', 'booked')
		  AND current_occupancy < max_occupancy
		RETURNING `+slotColumns+`
	`, id, appointmentID)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// Slot exists but refused the reservation, or is genuinely gone.
		if _, gerr := getSlot(ctx, t.tx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrSlotUnavailable
	}
	return slot, err
}

func (t *pgCalendarTx) ReleaseSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE slots
		SET current_occupancy = GREATEST(current_occupancy - 1, 0),
		    status = CASE WHEN status = 'booked' AND current_occupancy <= 1 THEN 'available' ELSE status END,
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id)
	return scanSlot(row)
}

func (t *pgCalendarTx) ListActiveAppointments(ctx context.Context, providerID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]Appointment, error) {
	dayStart := startOfDay(day)
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND status IN ('pending_payment', 'scheduled', 'confirmed', 'in_progress')
		  AND id <> $4
		ORDER BY start_time
	`, providerID, dayStart, dayStart.AddDate(0, 0, 1), excludeID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (t *pgCalendarTx) CountAppointmentsForSlot(ctx context.Context, slotID uuid.UUID) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE slot_id = $1
	`, slotID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (t *pgCalendarTx) CreateAppointment(ctx context.Context, appt *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, slot_id, start_time, end_time, status, priority, chief_complaint, cancel_reason, hold_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.ProviderID, appt.PatientID, appt.SlotID, appt.Interval.Start, appt.Interval.End,
		appt.Status, appt.Priority, appt.ChiefComplaint, appt.CancelReason, appt.HoldExpiresAt)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (t *pgCalendarTx) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    start_time = $3,
		    end_time = $4,
		    status = $5,
		    priority = $6,
		    chief_complaint = $7,
		    cancel_reason = $8,
		    hold_expires_at = $9,
		    updated_at = now()
		WHERE id = $1
	`, appt.ID, appt.SlotID, appt.Interval.Start, appt.Interval.End, appt.Status,
		appt.Priority, appt.ChiefComplaint, appt.CancelReason, appt.HoldExpiresAt)
	if err != nil {
		return mapConstraintErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgCalendarTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
