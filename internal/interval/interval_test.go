package interval

import (
	"errors"
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 9, 14, hour, min, 0, 0, time.UTC)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		wantErr bool
	}{
		{"valid half hour", at(9, 0), at(9, 30), false},
		{"valid minimum", at(9, 0), at(9, 5), false},
		{"valid maximum", at(9, 0), at(17, 0), false},
		{"end equals start", at(9, 0), at(9, 0), true},
		{"end before start", at(10, 0), at(9, 0), true},
		{"below minimum", at(9, 0), at(9, 4), true},
		{"above maximum", at(8, 0), at(16, 30), true},
		{"spans midnight", at(23, 0), at(23, 30).AddDate(0, 0, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.start, tt.end)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInterval) {
					t.Fatalf("New() error = %v, want ErrInvalidInterval", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(10, 0)}

	tests := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"identical", Interval{Start: at(9, 0), End: at(10, 0)}, true},
		{"contained", Interval{Start: at(9, 15), End: at(9, 45)}, true},
		{"partial left", Interval{Start: at(8, 30), End: at(9, 30)}, true},
		{"partial right", Interval{Start: at(9, 30), End: at(10, 30)}, true},
		{"touching before", Interval{Start: at(8, 0), End: at(9, 0)}, false},
		{"touching after", Interval{Start: at(10, 0), End: at(11, 0)}, false},
		{"disjoint", Interval{Start: at(14, 0), End: at(15, 0)}, false},
		{"same wall clock next day", Interval{Start: at(9, 0).AddDate(0, 0, 1), End: at(10, 0).AddDate(0, 0, 1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.want {
				t.Fatalf("Overlaps() = %v, want %v", got, tt.want)
			}
			// Overlap is symmetric.
			if got := tt.other.Overlaps(base); got != tt.want {
				t.Fatalf("reverse Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	outer := Interval{Start: at(9, 0), End: at(12, 0)}

	if !outer.Contains(Interval{Start: at(9, 0), End: at(12, 0)}) {
		t.Fatal("interval should contain itself")
	}
	if !outer.Contains(Interval{Start: at(10, 0), End: at(11, 0)}) {
		t.Fatal("interval should contain inner range")
	}
	if outer.Contains(Interval{Start: at(8, 0), End: at(10, 0)}) {
		t.Fatal("interval should not contain range starting earlier")
	}
}

func TestDay(t *testing.T) {
	iv := Interval{Start: at(14, 30), End: at(15, 0)}
	want := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if !iv.Day().Equal(want) {
		t.Fatalf("Day() = %v, want %v", iv.Day(), want)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	if tod.Hour != 9 || tod.Minute != 30 {
		t.Fatalf("ParseTimeOfDay = %+v", tod)
	}

	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	anchored := tod.On(day)
	if !anchored.Equal(at(9, 30)) {
		t.Fatalf("On() = %v, want %v", anchored, at(9, 30))
	}

	for _, bad := range []string{"", "9", "25:00", "09:60", "ab:cd"} {
		if _, err := ParseTimeOfDay(bad); !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("ParseTimeOfDay(%q) error = %v, want ErrInvalidInterval", bad, err)
		}
	}
}
