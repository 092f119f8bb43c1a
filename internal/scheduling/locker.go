package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
)

// LocalLocker implements redisclient.CalendarLocker with in-process
// semaphores. It backs unit tests and the single-process booking simulator,
// where a Redis round trip would add nothing.
type LocalLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
	wait time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		sems: make(map[string]chan struct{}),
		wait: wait,
	}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

func (l *LocalLocker) WithCalendarLock(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context) error) error {
	keys := redisclient.CalendarKeys(providerID, days)

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	var held []chan struct{}
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range keys {
		s := l.sem(key)
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-deadline.C:
			releaseHeld()
			return redisclient.ErrLockNotAcquired
		case <-ctx.Done():
			releaseHeld()
			return ctx.Err()
		}
	}

	defer releaseHeld()
	return fn(ctx)
}
