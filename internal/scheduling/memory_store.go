package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

// MemoryStore is an in-process Store used by unit tests and the booking
// simulator. A single mutex stands in for the per-partition serialization
// the Postgres store gets from advisory locks; transactional atomicity is
// snapshot-and-restore.
type MemoryStore struct {
	mu        sync.Mutex
	providers map[uuid.UUID]Provider
	patients  map[uuid.UUID]Patient
	slots     map[uuid.UUID]Slot
	appts     map[uuid.UUID]Appointment
	events    []EventLog
	nextEvent int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[uuid.UUID]Provider),
		patients:  make(map[uuid.UUID]Patient),
		slots:     make(map[uuid.UUID]Slot),
		appts:     make(map[uuid.UUID]Appointment),
		nextEvent: 1,
	}
}

// AddProvider registers a provider, generating an ID when absent.
func (s *MemoryStore) AddProvider(p Provider) Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.providers[p.ID] = p
	return p
}

// AddPatient registers a patient, generating an ID when absent.
func (s *MemoryStore) AddPatient(p Patient) Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.patients[p.ID] = p
	return p
}

// Events returns a copy of the persisted event log, oldest first.
func (s *MemoryStore) Events() []EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventLog, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSlotLocked(id)
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAppointmentLocked(id)
}

func (s *MemoryStore) getSlotLocked(id uuid.UUID) (*Slot, error) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

func (s *MemoryStore) getAppointmentLocked(id uuid.UUID) (*Appointment, error) {
	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *MemoryStore) FindAvailableSlots(ctx context.Context, providerID uuid.UUID, day, after time.Time) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Slot
	for _, slot := range s.slots {
		if slot.ProviderID != providerID || slot.Status != SlotAvailable {
			continue
		}
		if !sameDay(slot.Interval.Day(), day) || !slot.Interval.Start.After(after) {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}

func (s *MemoryStore) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Appointment
	for _, appt := range s.appts {
		if appt.PatientID == patientID {
			all = append(all, appt)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Interval.Start.Before(all[j].Interval.Start)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) ListSlotsByRecurrence(ctx context.Context, providerID, recurrenceID uuid.UUID) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Slot
	for _, slot := range s.slots {
		if slot.ProviderID != providerID || slot.RecurrenceID == nil || *slot.RecurrenceID != recurrenceID {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}

func (s *MemoryStore) FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, appt := range s.appts {
		if appt.Status == StatusPendingPayment && appt.HoldExpiresAt != nil && appt.HoldExpiresAt.Before(now) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}

func (s *MemoryStore) InCalendarTx(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context, tx CalendarTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapSlots := make(map[uuid.UUID]Slot, len(s.slots))
	for k, v := range s.slots {
		snapSlots[k] = v
	}
	snapAppts := make(map[uuid.UUID]Appointment, len(s.appts))
	for k, v := range s.appts {
		snapAppts[k] = v
	}
	snapEvents := len(s.events)
	snapNext := s.nextEvent

	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.slots = snapSlots
		s.appts = snapAppts
		s.events = s.events[:snapEvents]
		s.nextEvent = snapNext
		return err
	}
	return nil
}

// memoryTx mutates the store directly; the surrounding InCalendarTx holds
// the mutex and rolls back on error.
type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return t.store.getSlotLocked(id)
}

func (t *memoryTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return t.store.getAppointmentLocked(id)
}

func (t *memoryTx) CreateSlot(ctx context.Context, slot *Slot) error {
	for _, existing := range t.store.slots {
		if existing.ProviderID == slot.ProviderID && existing.Interval.Overlaps(slot.Interval) {
			return ErrSlotConflict
		}
	}
	now := time.Now()
	slot.CreatedAt, slot.UpdatedAt = now, now
	t.store.slots[slot.ID] = *slot
	return nil
}

func (t *memoryTx) UpdateSlot(ctx context.Context, slot *Slot) error {
	if _, ok := t.store.slots[slot.ID]; !ok {
		return ErrSlotNotFound
	}
	slot.UpdatedAt = time.Now()
	t.store.slots[slot.ID] = *slot
	return nil
}

func (t *memoryTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.store.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(t.store.slots, id)
	return nil
}

func (t *memoryTx) FindOverlappingSlots(ctx context.Context, providerID uuid.UUID, iv interval.Interval, excludeID uuid.UUID) ([]Slot, error) {
	var out []Slot
	for _, slot := range t.store.slots {
		if slot.ProviderID != providerID || slot.ID == excludeID {
			continue
		}
		if slot.Interval.Overlaps(iv) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}

func (t *memoryTx) ReserveSlot(ctx context.Context, id, appointmentID uuid.UUID) (*Slot, error) {
	slot, ok := t.store.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Status != SlotAvailable && slot.Status != SlotBooked {
		return nil, ErrSlotUnavailable
	}
	if slot.CurrentOccupancy >= slot.MaxOccupancy {
		return nil, ErrSlotUnavailable
	}
	slot.CurrentOccupancy++
	slot.Status = SlotBooked
	if slot.MaxOccupancy == 1 {
		apptID := appointmentID
		slot.AppointmentID = &apptID
	}
	slot.UpdatedAt = time.Now()
	t.store.slots[id] = slot
	return &slot, nil
}

func (t *memoryTx) ReleaseSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	slot, ok := t.store.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.CurrentOccupancy > 0 {
		slot.CurrentOccupancy--
	}
	if slot.CurrentOccupancy == 0 && slot.Status == SlotBooked {
		slot.Status = SlotAvailable
	}
	slot.AppointmentID = nil
	slot.UpdatedAt = time.Now()
	t.store.slots[id] = slot
	return &slot, nil
}

func (t *memoryTx) ListActiveAppointments(ctx context.Context, providerID uuid.UUID, day time.Time, excludeID uuid.UUID) ([]Appointment, error) {
	var out []Appointment
	for _, appt := range t.store.appts {
		if appt.ProviderID != providerID || appt.ID == excludeID {
			continue
		}
		if !appt.Status.Active() || !sameDay(appt.Interval.Day(), day) {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}

func (t *memoryTx) CountAppointmentsForSlot(ctx context.Context, slotID uuid.UUID) (int, error) {
	count := 0
	for _, appt := range t.store.appts {
		if appt.SlotID != nil && *appt.SlotID == slotID {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CreateAppointment(ctx context.Context, appt *Appointment) error {
	now := time.Now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	t.store.appts[appt.ID] = *appt
	return nil
}

func (t *memoryTx) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	if _, ok := t.store.appts[appt.ID]; !ok {
		return ErrAppointmentNotFound
	}
	appt.UpdatedAt = time.Now()
	t.store.appts[appt.ID] = *appt
	return nil
}

func (t *memoryTx) InsertEvent(ctx context.Context, ev EventLog) error {
	ev.ID = t.store.nextEvent
	t.store.nextEvent++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	t.store.events = append(t.store.events, ev)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
