package booking

import "github.com/pawdesk/pawdesk-platform/internal/schedule"

// forwardTransitions is the strict forward path of the appointment
// lifecycle. Cancellation and no-show are handled separately because any
// non-terminal state may reach them.
var forwardTransitions = map[schedule.AppointmentStatus]schedule.AppointmentStatus{
	schedule.StatusScheduled:  schedule.StatusConfirmed,
	schedule.StatusConfirmed:  schedule.StatusInProgress,
	schedule.StatusInProgress: schedule.StatusCompleted,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to schedule.AppointmentStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == schedule.StatusCancelled || to == schedule.StatusNoShow {
		return true
	}
	return forwardTransitions[from] == to
}
