package policy

import (
	"testing"
	"time"
)

func TestHoursOpen(t *testing.T) {
	hours := Hours{StartHour: 9, EndHour: 18, Location: time.UTC}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday mid-morning", time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), true}, // Monday
		{"weekday opening minute", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), true},
		{"weekday before opening", time.Date(2025, 6, 2, 8, 59, 0, 0, time.UTC), false},
		{"weekday at close", time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hours.Open(tt.at); got != tt.want {
				t.Errorf("Open(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestHoursTimezoneConversion(t *testing.T) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	hours := Hours{StartHour: 9, EndHour: 18, Location: eastern}

	// 14:00 UTC on a June Monday is 10:00 in New York.
	at := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	if !hours.Open(at) {
		t.Error("expected staffed during New York business hours")
	}

	// 02:00 UTC is 22:00 the previous evening in New York.
	at = time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC)
	if hours.Open(at) {
		t.Error("expected off hours late in the New York evening")
	}
}
