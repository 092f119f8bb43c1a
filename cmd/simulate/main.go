package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

// The simulator drives the conflict guard in-process against the memory
// store: many workers race for the same calendar and the run fails loudly
// if more than one booking ever lands on a single-capacity interval.

type metrics struct {
	total     int64
	booked    int64
	conflicts int64
	timeouts  int64
	errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) stats() (avg, p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[min(len(sorted)*95/100, len(sorted)-1)]
	max = sorted[len(sorted)-1]
	return avg, p50, p95, max
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	workers := flag.Int("workers", 50, "concurrent booking workers")
	slots := flag.Int("slots", 16, "slots in the contested day")
	patients := flag.Int("patients", 200, "patient pool size")
	rounds := flag.Int("rounds", 10, "booking attempts per worker")
	flag.Parse()

	store := scheduling.NewMemoryStore()
	locker := scheduling.NewLocalLocker(2 * time.Second)
	svc := scheduling.NewService(store, locker, scheduling.NopPublisher{}, nil, scheduling.ServiceConfig{})

	ctx := context.Background()

	provider := store.AddProvider(scheduling.Provider{Name: "Dr. Simulated"})
	patientIDs := make([]uuid.UUID, 0, *patients)
	for i := 0; i < *patients; i++ {
		p := store.AddPatient(scheduling.Patient{Name: fmt.Sprintf("Patient %04d", i)})
		patientIDs = append(patientIDs, p.ID)
	}

	day := time.Now().AddDate(0, 0, 1)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.Local)
	intervals := make([][2]time.Time, 0, *slots)
	for i := 0; i < *slots; i++ {
		start := dayStart.Add(time.Duration(i) * 30 * time.Minute)
		end := start.Add(30 * time.Minute)
		if _, err := svc.CreateSlot(ctx, scheduling.CreateSlotInput{
			ProviderID: provider.ID,
			Start:      start,
			End:        end,
		}); err != nil {
			log.Fatalf("create slot: %v", err)
		}
		intervals = append(intervals, [2]time.Time{start, end})
	}

	log.Printf("simulating %d workers x %d rounds against %d slots", *workers, *rounds, *slots)

	var m metrics
	var wg sync.WaitGroup
	begin := time.Now()

	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))

			for i := 0; i < *rounds; i++ {
				iv := intervals[rng.Intn(len(intervals))]
				patientID := patientIDs[rng.Intn(len(patientIDs))]

				start := time.Now()
				_, err := svc.BookAppointment(ctx, scheduling.BookInput{
					ProviderID: provider.ID,
					PatientID:  patientID,
					Start:      iv[0],
					End:        iv[1],
				})
				m.record(time.Since(start))
				atomic.AddInt64(&m.total, 1)

				switch {
				case err == nil:
					atomic.AddInt64(&m.booked, 1)
				case errors.Is(err, scheduling.ErrSchedulingConflict), errors.Is(err, scheduling.ErrSlotUnavailable):
					atomic.AddInt64(&m.conflicts, 1)
				case errors.Is(err, scheduling.ErrSchedulingTimeout):
					atomic.AddInt64(&m.timeouts, 1)
				default:
					atomic.AddInt64(&m.errors, 1)
					log.Printf("unexpected booking error: %v", err)
				}
			}
		}(w)
	}

	wg.Wait()
	elapsed := time.Since(begin)

	if m.errors > 0 {
		log.Fatalf("simulation saw %d unexpected errors", m.errors)
	}
	if m.booked > int64(*slots) {
		log.Fatalf("INVARIANT VIOLATED: %d bookings landed on %d single-capacity slots", m.booked, *slots)
	}

	booked := verifyOneWinnerPerInterval(ctx, svc, provider.ID, intervals)
	if booked != int(m.booked) {
		log.Fatalf("INVARIANT VIOLATED: %d bookings recorded but %d slots occupied", m.booked, booked)
	}

	avg, p50, p95, maxLat := m.stats()
	fmt.Printf("\nbooking attempts: %d in %s (%.0f/s)\n", m.total, elapsed.Round(time.Millisecond), float64(m.total)/elapsed.Seconds())
	fmt.Printf("  booked:    %d\n", m.booked)
	fmt.Printf("  conflicts: %d\n", m.conflicts)
	fmt.Printf("  timeouts:  %d\n", m.timeouts)
	fmt.Printf("  latency:   avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, maxLat)
	fmt.Println("\nexactly one winner per contested interval: OK")
}

// verifyOneWinnerPerInterval counts occupied slots through the service
// surface: every contested interval must have lost exactly as much
// availability as bookings succeeded.
func verifyOneWinnerPerInterval(ctx context.Context, svc *scheduling.Service, providerID uuid.UUID, intervals [][2]time.Time) int {
	open, err := svc.FindAvailableSlots(ctx, providerID, intervals[0][0])
	if err != nil {
		log.Fatalf("find available slots: %v", err)
	}
	return len(intervals) - len(open)
}
