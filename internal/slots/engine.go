// Package slots computes bookable appointment slots from practice hours,
// vet availability windows, and existing appointments. Availability is
// derived on every query; nothing here writes.
package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/timeanchor"
)

// ScheduleReader is the read surface the engine needs from the schedule
// store.
type ScheduleReader interface {
	GetPractice(ctx context.Context, id uuid.UUID) (*schedule.Practice, error)
	HoursFor(ctx context.Context, practiceID uuid.UUID, weekday time.Weekday, onDate time.Time) (*schedule.PracticeHours, error)
	ListVetAvailability(ctx context.Context, practiceID uuid.UUID, vetID *uuid.UUID, window schedule.Interval) ([]schedule.VetAvailability, error)
	ListAppointments(ctx context.Context, practiceID uuid.UUID, vetID *uuid.UUID, window schedule.Interval, statuses []schedule.AppointmentStatus) ([]schedule.Appointment, error)
}

// Query asks for open slots in a UTC window.
type Query struct {
	PracticeID  uuid.UUID
	VetUserID   *uuid.UUID // nil means any vet
	Window      schedule.Interval
	SlotMinutes int
	Preference  timeanchor.Daypart // optional daypart filter
}

// Reason explains an empty result.
const (
	ReasonNoHours           = "NO_HOURS"
	ReasonNoVetAvailability = "NO_VET_AVAILABILITY"
)

// Slot is one offerable appointment start for one vet.
type Slot struct {
	VetUserID      uuid.UUID                 `json:"vet_user_id"`
	StartAt        time.Time                 `json:"start_at"`
	EndAt          time.Time                 `json:"end_at"`
	Classification schedule.AvailabilityType `json:"classification"`
}

// Result carries the slots, or the reason none exist.
type Result struct {
	Slots  []Slot `json:"slots"`
	Reason string `json:"reason,omitempty"`
}

// Engine derives slots from the schedule store.
type Engine struct {
	reader ScheduleReader
}

// NewEngine creates a slot engine over a schedule reader.
func NewEngine(reader ScheduleReader) *Engine {
	if reader == nil {
		panic("slots: reader required")
	}
	return &Engine{reader: reader}
}

// Find enumerates slots in the query window. Slots are aligned to a grid
// anchored at local midnight, include only instants fully enclosed by the
// open hours and an availability window, and exclude anything overlapping a
// non-terminal appointment.
func (e *Engine) Find(ctx context.Context, q Query) (*Result, error) {
	if q.SlotMinutes <= 0 {
		return nil, apperr.Newf(apperr.CodeInvalidDuration, "slot minutes must be positive, got %d", q.SlotMinutes)
	}
	if q.Window.IsZero() {
		return nil, apperr.New(apperr.CodeBadRequest, "query window is empty")
	}

	practice, err := e.reader.GetPractice(ctx, q.PracticeID)
	if err != nil {
		return nil, err
	}
	loc, err := timeanchor.LoadZone(practice.Timezone)
	if err != nil {
		return nil, err
	}

	openDays, err := e.openDays(ctx, q, loc)
	if err != nil {
		return nil, err
	}
	if len(openDays) == 0 {
		return &Result{Reason: ReasonNoHours}, nil
	}

	windows, err := e.reader.ListVetAvailability(ctx, q.PracticeID, q.VetUserID, q.Window)
	if err != nil {
		return nil, fmt.Errorf("slots: load availability: %w", err)
	}
	positive := false
	for _, w := range windows {
		if w.Type.Positive() {
			positive = true
			break
		}
	}
	if !positive {
		return &Result{Reason: ReasonNoVetAvailability}, nil
	}

	appts, err := e.reader.ListAppointments(ctx, q.PracticeID, q.VetUserID, q.Window, schedule.NonTerminalStatuses)
	if err != nil {
		return nil, fmt.Errorf("slots: load appointments: %w", err)
	}

	open := make(schedule.IntervalSet, 0, len(openDays))
	for _, d := range openDays {
		open = append(open, d.open)
	}
	open = open.Normalize()

	busy := map[uuid.UUID]schedule.IntervalSet{}
	for _, a := range appts {
		if a.VetUserID == nil {
			continue
		}
		busy[*a.VetUserID] = append(busy[*a.VetUserID], a.Interval())
	}

	byVet := map[uuid.UUID][]schedule.VetAvailability{}
	for _, w := range windows {
		byVet[w.VetUserID] = append(byVet[w.VetUserID], w)
	}

	var out []Slot
	for vetID, vws := range byVet {
		var bookable, available, blocked schedule.IntervalSet
		for _, w := range vws {
			switch {
			case w.Type == schedule.AvailabilityAvailable:
				available = append(available, w.Window())
				bookable = append(bookable, w.Window())
			case w.Type == schedule.AvailabilityEmergencyOnly:
				bookable = append(bookable, w.Window())
			default:
				blocked = append(blocked, w.Window())
			}
		}
		free := bookable.Intersect(open).Subtract(blocked).Subtract(busy[vetID])
		available = available.Normalize()
		out = append(out, e.enumerate(free, available, vetID, q, openDays, loc)...)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		if a.Classification != b.Classification {
			return a.Classification == schedule.AvailabilityAvailable
		}
		return a.VetUserID.String() < b.VetUserID.String()
	})
	return &Result{Slots: out}, nil
}

type openDay struct {
	year  int
	month time.Month
	day   int
	open  schedule.Interval
}

// openDays resolves each local calendar date touched by the window to the
// open interval the practice keeps that day, clipped to the window.
func (e *Engine) openDays(ctx context.Context, q Query, loc *time.Location) ([]openDay, error) {
	var out []openDay
	cursor := q.Window.Start.In(loc)
	for {
		y, m, d := cursor.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if !midnight.UTC().Before(q.Window.End) {
			break
		}
		hours, err := e.reader.HoursFor(ctx, q.PracticeID, midnight.Weekday(), time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return nil, fmt.Errorf("slots: load hours: %w", err)
		}
		if hours != nil {
			iv, ok, err := hours.OpenInterval(y, m, d, loc)
			if err != nil {
				return nil, err
			}
			if ok {
				if clipped := iv.Intersect(q.Window); !clipped.IsZero() {
					out = append(out, openDay{year: y, month: m, day: d, open: clipped})
				}
			}
		}
		cursor = midnight.AddDate(0, 0, 1)
	}
	return out, nil
}

// enumerate walks the slot grid through the vet's free set. The grid is
// anchored at local midnight of each day so slot boundaries stay stable
// across DST transitions of unequal day length.
func (e *Engine) enumerate(free, available schedule.IntervalSet, vetID uuid.UUID, q Query, days []openDay, loc *time.Location) []Slot {
	dur := time.Duration(q.SlotMinutes) * time.Minute
	step := dur
	var out []Slot
	for _, day := range days {
		midnight := time.Date(day.year, day.month, day.day, 0, 0, 0, 0, loc).UTC()
		var prefWindow schedule.Interval
		if q.Preference != "" {
			s, en := timeanchor.DaypartWindow(day.year, day.month, day.day, q.Preference, loc)
			prefWindow = schedule.Interval{Start: s, End: en}
		}
		for _, iv := range free {
			seg := iv.Intersect(day.open)
			if seg.IsZero() {
				continue
			}
			start := gridAlign(seg.Start, midnight, step)
			for ; !start.Add(dur).After(seg.End); start = start.Add(step) {
				slot := schedule.Interval{Start: start, End: start.Add(dur)}
				if q.Preference != "" && !prefWindow.Encloses(slot) {
					continue
				}
				class := schedule.AvailabilityEmergencyOnly
				for _, av := range available {
					if av.Encloses(slot) {
						class = schedule.AvailabilityAvailable
						break
					}
				}
				out = append(out, Slot{
					VetUserID:      vetID,
					StartAt:        slot.Start,
					EndAt:          slot.End,
					Classification: class,
				})
			}
		}
	}
	return out
}

// gridAlign returns the first instant at or after t that sits on the grid
// anchored at anchor with the given step.
func gridAlign(t, anchor time.Time, step time.Duration) time.Time {
	if !t.After(anchor) {
		return anchor
	}
	offset := t.Sub(anchor)
	if rem := offset % step; rem != 0 {
		offset += step - rem
	}
	return anchor.Add(offset)
}
