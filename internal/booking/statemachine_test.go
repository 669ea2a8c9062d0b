package booking

import (
	"testing"

	"github.com/pawdesk/pawdesk-platform/internal/schedule"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to schedule.AppointmentStatus
		want     bool
	}{
		{schedule.StatusScheduled, schedule.StatusConfirmed, true},
		{schedule.StatusConfirmed, schedule.StatusInProgress, true},
		{schedule.StatusInProgress, schedule.StatusCompleted, true},

		// No skipping forward.
		{schedule.StatusScheduled, schedule.StatusInProgress, false},
		{schedule.StatusScheduled, schedule.StatusCompleted, false},
		{schedule.StatusConfirmed, schedule.StatusCompleted, false},

		// No moving backward.
		{schedule.StatusConfirmed, schedule.StatusScheduled, false},
		{schedule.StatusCompleted, schedule.StatusInProgress, false},

		// Any non-terminal state may cancel or no-show.
		{schedule.StatusScheduled, schedule.StatusCancelled, true},
		{schedule.StatusScheduled, schedule.StatusNoShow, true},
		{schedule.StatusConfirmed, schedule.StatusCancelled, true},
		{schedule.StatusInProgress, schedule.StatusNoShow, true},

		// Terminal states are final.
		{schedule.StatusCompleted, schedule.StatusCancelled, false},
		{schedule.StatusCancelled, schedule.StatusScheduled, false},
		{schedule.StatusCancelled, schedule.StatusNoShow, false},
		{schedule.StatusNoShow, schedule.StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
