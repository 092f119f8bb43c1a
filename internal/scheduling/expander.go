package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/scheduling-engine/internal/interval"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrencePattern describes how a slot template repeats across a date
// range. It is an expansion input only; the slots it produces carry the
// batch's recurrence ID for bulk operations, the pattern itself is not
// persisted.
type RecurrencePattern struct {
	Frequency  Frequency
	Interval   int
	DaysOfWeek []time.Weekday
	// Until is the last candidate date, inclusive.
	Until time.Time
	// Exceptions are dates to skip.
	Exceptions []time.Time
}

// SlotTemplate carries the per-occurrence shape of a recurring slot.
type SlotTemplate struct {
	Start        interval.TimeOfDay
	End          interval.TimeOfDay
	Kind         SlotKind
	MaxOccupancy int
}

// SkippedDate records one candidate date the expansion could not fill.
type SkippedDate struct {
	Date   time.Time
	Reason string
}

var errNoOccurrences = errors.New("recurrence pattern produces no occurrences")

func (p RecurrencePattern) validate(startDate time.Time) error {
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unsupported frequency %q", interval.ErrInvalidInterval, p.Frequency)
	}
	if p.Until.Before(startDate) {
		return fmt.Errorf("%w: until precedes the start date", interval.ErrInvalidInterval)
	}
	return nil
}

// expandDates turns a pattern into the concrete dates between startDate and
// pattern.Until inclusive. Monthly candidates falling on a day the month
// does not have are reported as skipped rather than rolled over.
func expandDates(startDate time.Time, p RecurrencePattern) ([]time.Time, []SkippedDate) {
	step := p.Interval
	if step < 1 {
		step = 1
	}

	exceptions := make(map[string]struct{}, len(p.Exceptions))
	for _, d := range p.Exceptions {
		exceptions[d.Format("2006-01-02")] = struct{}{}
	}

	weekdays := make(map[time.Weekday]struct{}, len(p.DaysOfWeek))
	for _, wd := range p.DaysOfWeek {
		weekdays[wd] = struct{}{}
	}
	if p.Frequency == FrequencyWeekly && len(weekdays) == 0 {
		weekdays[startDate.Weekday()] = struct{}{}
	}

	var (
		dates   []time.Time
		skipped []SkippedDate
	)
	keep := func(d time.Time) {
		if _, ok := exceptions[d.Format("2006-01-02")]; ok {
			skipped = append(skipped, SkippedDate{Date: d, Reason: "excluded by pattern exception"})
			return
		}
		dates = append(dates, d)
	}

	switch p.Frequency {
	case FrequencyDaily:
		for d := startDate; !d.After(p.Until); d = d.AddDate(0, 0, step) {
			keep(d)
		}

	case FrequencyWeekly:
		startWeek := mondayOf(startDate)
		for d := startDate; !d.After(p.Until); d = d.AddDate(0, 0, 1) {
			if _, ok := weekdays[d.Weekday()]; !ok {
				continue
			}
			weeks := int(mondayOf(d).Sub(startWeek).Hours()) / (24 * 7)
			if weeks%step != 0 {
				continue
			}
			keep(d)
		}

	case FrequencyMonthly:
		y, m, dom := startDate.Date()
		loc := startDate.Location()
		for k := 0; ; k += step {
			monthStart := time.Date(y, m+time.Month(k), 1, 0, 0, 0, 0, loc)
			if monthStart.After(p.Until) {
				break
			}
			candidate := time.Date(y, m+time.Month(k), dom, 0, 0, 0, 0, loc)
			if candidate.Day() != dom {
				// Normalization rolled into the next month: this month has
				// no such day. Still counts as a skip even when the rolled
				// date lands past Until.
				skipped = append(skipped, SkippedDate{
					Date:   monthStart,
					Reason: fmt.Sprintf("month has no day %d", dom),
				})
				continue
			}
			if candidate.After(p.Until) {
				break
			}
			keep(candidate)
		}
	}

	return dates, skipped
}

func mondayOf(t time.Time) time.Time {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -offset)
}
