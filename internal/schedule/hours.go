package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OpenInterval composes the record's local wall-clock hours with the
// practice timezone on a concrete date and returns the UTC interval the
// practice is open. ok is false when the record marks the day closed.
// Wall times falling in a DST gap normalize forward, which matches what the
// practice's door sign means on such a day.
func (h *PracticeHours) OpenInterval(year int, month time.Month, day int, loc *time.Location) (Interval, bool, error) {
	if h.Closed() {
		return Interval{}, false, nil
	}
	openH, openM, err := parseWallClock(*h.OpenLocal)
	if err != nil {
		return Interval{}, false, fmt.Errorf("schedule: open_local: %w", err)
	}
	closeH, closeM, err := parseWallClock(*h.CloseLocal)
	if err != nil {
		return Interval{}, false, fmt.Errorf("schedule: close_local: %w", err)
	}
	iv := Interval{
		Start: time.Date(year, month, day, openH, openM, 0, 0, loc).UTC(),
		End:   time.Date(year, month, day, closeH, closeM, 0, 0, loc).UTC(),
	}
	if iv.IsZero() {
		return Interval{}, false, nil
	}
	return iv, true, nil
}

// parseWallClock reads an "HH:MM" wall-clock string.
func parseWallClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed wall clock %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("malformed wall clock %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("malformed wall clock %q", s)
	}
	return hour, minute, nil
}
