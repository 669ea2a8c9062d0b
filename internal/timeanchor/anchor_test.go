package timeanchor

import (
	"testing"
	"time"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
)

func TestLoadZone(t *testing.T) {
	if _, err := LoadZone("America/Chicago"); err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	if _, err := LoadZone(""); !apperr.Is(err, apperr.CodeUnknownTimezone) {
		t.Fatalf("empty zone error = %v, want UNKNOWN_TIMEZONE", err)
	}
	if _, err := LoadZone("Mars/Olympus_Mons"); !apperr.Is(err, apperr.CodeUnknownTimezone) {
		t.Fatalf("bad zone error = %v, want UNKNOWN_TIMEZONE", err)
	}
}

func TestLocalizeStyles(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	// 2026-05-22 13:05 EDT
	instant := time.Date(2026, time.May, 22, 13, 5, 0, 0, loc).UTC()

	tests := []struct {
		style Style
		want  string
	}{
		{StyleTimeOnly, "1:05 PM"},
		{StyleDateOnly, "Friday, May 22"},
		{StyleFull, "1:05 PM on Friday, May 22"},
	}
	for _, tt := range tests {
		if got := Localize(instant, loc, tt.style); got != tt.want {
			t.Errorf("Localize(%s) = %q, want %q", tt.style, got, tt.want)
		}
	}
}

func TestDayBoundsDSTLengths(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")

	start, end := DayBounds(2026, time.March, 8, loc)
	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("spring-forward day length = %s, want 23h", got)
	}

	start, end = DayBounds(2026, time.November, 1, loc)
	if got := end.Sub(start); got != 25*time.Hour {
		t.Fatalf("fall-back day length = %s, want 25h", got)
	}

	start, end = DayBounds(2026, time.June, 10, loc)
	if got := end.Sub(start); got != 24*time.Hour {
		t.Fatalf("ordinary day length = %s, want 24h", got)
	}
}

func TestResolutionBounds(t *testing.T) {
	at := time.Date(2026, time.June, 1, 14, 0, 0, 0, time.UTC)

	point := Resolution{Point: true, At: at}
	start, end := point.Bounds(30 * time.Minute)
	if !start.Equal(at) || !end.Equal(at.Add(30*time.Minute)) {
		t.Fatalf("point bounds = [%s, %s)", start, end)
	}

	window := Resolution{Start: at, End: at.Add(2 * time.Hour)}
	start, end = window.Bounds(30 * time.Minute)
	if !start.Equal(at) || !end.Equal(at.Add(2*time.Hour)) {
		t.Fatalf("window bounds = [%s, %s)", start, end)
	}
}

func TestParseDaypart(t *testing.T) {
	if part, ok := ParseDaypart("morning"); !ok || part != DaypartMorning {
		t.Fatalf("ParseDaypart(morning) = %q, %v", part, ok)
	}
	if part, ok := ParseDaypart(""); !ok || part != "" {
		t.Fatalf("ParseDaypart(empty) = %q, %v", part, ok)
	}
	if _, ok := ParseDaypart("brunch"); ok {
		t.Fatal("ParseDaypart(brunch) should fail")
	}
}
