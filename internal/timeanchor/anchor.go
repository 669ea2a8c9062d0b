// Package timeanchor centralises every translation between human time
// expressions and UTC instants. All other scheduling components deal in UTC
// only; the practice timezone enters and leaves the system here.
package timeanchor

import (
	"time"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
)

// Style selects a spoken/written rendering of an instant.
type Style string

const (
	StyleTimeOnly Style = "time_only" // "9:00 PM"
	StyleFull     Style = "full"      // "9:00 PM on Friday, October 3"
	StyleDateOnly Style = "date_only" // "Friday, October 3"
)

// Resolution is the outcome of interpreting an expression: either a
// minute-precise point or a half-open [Start, End) window, both UTC.
type Resolution struct {
	Point bool
	At    time.Time
	Start time.Time
	End   time.Time
}

// Bounds returns the resolution as a window. A point becomes the degenerate
// window [At, At+slot).
func (r Resolution) Bounds(slot time.Duration) (time.Time, time.Time) {
	if r.Point {
		return r.At, r.At.Add(slot)
	}
	return r.Start, r.End
}

// LoadZone resolves an IANA zone name, failing with UNKNOWN_TIMEZONE for
// anything the host zone database does not recognise.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, apperr.New(apperr.CodeUnknownTimezone, "timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknownTimezone, "unknown timezone "+name, err)
	}
	return loc, nil
}

// Localize renders a UTC instant in the practice timezone.
func Localize(instantUTC time.Time, loc *time.Location, style Style) string {
	local := instantUTC.In(loc)
	switch style {
	case StyleTimeOnly:
		return local.Format("3:04 PM")
	case StyleDateOnly:
		return local.Format("Monday, January 2")
	default:
		return local.Format("3:04 PM on Monday, January 2")
	}
}

// DayBounds returns the UTC window covering the whole local calendar day.
// Spring-forward days are 23 hours long and fall-back days 25; both fall out
// of constructing the two local midnights and differencing them in UTC.
func DayBounds(year int, month time.Month, day int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	end := time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}

// resolveLocalTime maps a local wall-clock reading onto a UTC instant.
// A reading inside a spring-forward gap does not exist and fails
// UNPARSEABLE. A reading inside the repeated fall-back hour resolves to the
// earlier UTC instant.
func resolveLocalTime(year int, month time.Month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Hour() != hour || t.Minute() != minute || t.Day() != day {
		return time.Time{}, apperr.Newf(apperr.CodeUnparseable,
			"local time %02d:%02d does not exist on %04d-%02d-%02d in %s",
			hour, minute, year, month, day, loc)
	}
	// time.Date may hand back either occurrence of a repeated hour; take the
	// earlier instant when the hour before shows the same wall clock.
	earlier := t.Add(-time.Hour)
	if el := earlier.In(loc); el.Hour() == hour && el.Minute() == minute && el.Day() == day {
		return earlier.UTC(), nil
	}
	return t.UTC(), nil
}
