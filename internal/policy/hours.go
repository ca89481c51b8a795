package policy

import "time"

// Hours describes the weekday window during which human agents are staffed.
// It is a pure function of wall-clock time used only to alter messaging and
// affordances; it never gates handoff eligibility.
type Hours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// DefaultHours returns the default staffed window, Mon-Fri 09:00-18:00 local.
func DefaultHours() Hours {
	return Hours{StartHour: 9, EndHour: 18, Location: time.Local}
}

// Open reports whether agents are staffed at the given instant.
func (h Hours) Open(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return local.Hour() >= h.StartHour && local.Hour() < h.EndHour
}
