package timeanchor

import "time"

// Daypart is a coarse local time-of-day preference.
type Daypart string

const (
	DaypartMorning   Daypart = "morning"   // [06:00, 12:00) local
	DaypartAfternoon Daypart = "afternoon" // [12:00, 17:00) local
	DaypartEvening   Daypart = "evening"   // [17:00, 21:00) local
)

// ParseDaypart validates a caller-supplied preference string.
func ParseDaypart(raw string) (Daypart, bool) {
	switch Daypart(raw) {
	case DaypartMorning, DaypartAfternoon, DaypartEvening:
		return Daypart(raw), true
	}
	return "", raw == ""
}

func (d Daypart) hours() (int, int) {
	switch d {
	case DaypartMorning:
		return 6, 12
	case DaypartAfternoon:
		return 12, 17
	case DaypartEvening:
		return 17, 21
	default:
		return 0, 24
	}
}

// DaypartWindow returns the UTC window for the daypart on a local date.
func DaypartWindow(year int, month time.Month, day int, d Daypart, loc *time.Location) (time.Time, time.Time) {
	from, until := d.hours()
	start := time.Date(year, month, day, from, 0, 0, 0, loc)
	end := time.Date(year, month, day, until, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}
