package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

const (
	// MinDuration is the shortest bookable unit of time.
	MinDuration = 5 * time.Minute
	// MaxDuration caps a single interval at one working day; an interval
	// may never span midnight.
	MaxDuration = 8 * time.Hour
)

// Interval is a half-open time range [Start, End) confined to a single
// calendar day in the facility's local time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds a validated interval.
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate checks interval bounds and duration limits.
func (iv Interval) Validate() error {
	if !iv.End.After(iv.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInterval)
	}
	if !sameDay(iv.Start, iv.End) {
		return fmt.Errorf("%w: interval may not span midnight", ErrInvalidInterval)
	}
	d := iv.Duration()
	if d < MinDuration {
		return fmt.Errorf("%w: duration %s is below the %s minimum", ErrInvalidInterval, d, MinDuration)
	}
	if d > MaxDuration {
		return fmt.Errorf("%w: duration %s exceeds the %s maximum", ErrInvalidInterval, d, MaxDuration)
	}
	return nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Day returns midnight of the interval's calendar day.
func (iv Interval) Day() time.Time {
	y, m, d := iv.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, iv.Start.Location())
}

// Overlaps reports whether the two half-open intervals share any instant
// on the same calendar day. Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	if !sameDay(iv.Start, other.Start) {
		return false
	}
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether inner lies entirely within iv on the same day.
func (iv Interval) Contains(inner Interval) bool {
	if !sameDay(iv.Start, inner.Start) {
		return false
	}
	return !iv.Start.After(inner.Start) && !inner.End.After(iv.End)
}

// Equal reports whether both intervals have identical bounds.
func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TimeOfDay is a wall-clock time within a day, used by slot templates.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day must be HH:MM, got %q", ErrInvalidInterval, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", ErrInvalidInterval, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", ErrInvalidInterval, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// On anchors the time of day to the given calendar day.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
