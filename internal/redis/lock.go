package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("calendar lock not acquired")
)

const acquirePollInterval = 20 * time.Millisecond

// CalendarLocker serializes critical sections per provider calendar day.
// Implementations must provide a bounded wait: a caller that cannot get the
// lock in time receives ErrLockNotAcquired rather than waiting forever.
type CalendarLocker interface {
	WithCalendarLock(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context) error) error
}

type redisCalendarLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisCalendarLocker creates a locker that uses one Redis key per
// (provider, day). ttl bounds how long the critical section may run; wait
// bounds how long acquisition may block.
func NewRedisCalendarLocker(client *redis.Client, ttl, wait time.Duration) CalendarLocker {
	return &redisCalendarLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

// CalendarKeys returns the sorted, deduplicated lock keys for the given
// provider and days. Sorting fixes the acquisition order so two requests
// touching the same pair of days cannot deadlock.
func CalendarKeys(providerID uuid.UUID, days []time.Time) []string {
	seen := make(map[string]struct{}, len(days))
	keys := make([]string, 0, len(days))
	for _, day := range days {
		k := fmt.Sprintf("lock:calendar:%s:%s", providerID, day.Format("2006-01-02"))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *redisCalendarLocker) WithCalendarLock(ctx context.Context, providerID uuid.UUID, days []time.Time, fn func(ctx context.Context) error) error {
	keys := CalendarKeys(providerID, days)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	var held []string
	releaseHeld := func() {
		for _, key := range held {
			_ = l.release(ctx, key, token)
		}
	}

	for _, key := range keys {
		for {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				releaseHeld()
				return fmt.Errorf("acquire calendar lock: %w", err)
			}
			if ok {
				held = append(held, key)
				break
			}
			if time.Now().After(deadline) {
				releaseHeld()
				return ErrLockNotAcquired
			}
			select {
			case <-ctx.Done():
				releaseHeld()
				return ctx.Err()
			case <-time.After(acquirePollInterval):
			}
		}
	}

	defer releaseHeld()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisCalendarLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release calendar lock: %w", err)
	}
	return nil
}
