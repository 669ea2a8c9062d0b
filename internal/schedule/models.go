// Package schedule holds the temporal entities of the scheduling core and
// their Postgres store. Every instant is stored and handled as UTC; local
// wall-clock readings exist only inside practice_hours rows and are
// recomposed with the practice timezone at query time.
package schedule

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusNoShow     AppointmentStatus = "NO_SHOW"
)

// Terminal reports whether the status ends the lifecycle. Terminal
// appointments never block new bookings.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// NonTerminalStatuses is the default status filter for conflict checks.
var NonTerminalStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

// AvailabilityType classifies a vet availability window.
type AvailabilityType string

const (
	AvailabilityAvailable     AvailabilityType = "AVAILABLE"
	AvailabilityEmergencyOnly AvailabilityType = "EMERGENCY_ONLY"
	AvailabilitySurgeryBlock  AvailabilityType = "SURGERY_BLOCK"
	AvailabilityUnavailable   AvailabilityType = "UNAVAILABLE"
)

// Positive reports whether windows of this type add bookable time.
// UNAVAILABLE and SURGERY_BLOCK subtract instead.
func (t AvailabilityType) Positive() bool {
	return t == AvailabilityAvailable || t == AvailabilityEmergencyOnly
}

// Practice is the tenant. Its timezone is the authoritative default for
// interpreting human-expressed times on its voice line.
type Practice struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoiceAgent binds an inbound phone number to a practice.
type VoiceAgent struct {
	ID          uuid.UUID `json:"id"`
	PracticeID  uuid.UUID `json:"practice_id"`
	PhoneNumber string    `json:"phone_number"`
	Timezone    string    `json:"timezone"`
	IsActive    bool      `json:"is_active"`
}

// PracticeHours is one weekday's opening hours for a practice, valid within
// an inclusive effective date range. A nil open/close pair means the
// practice is closed that weekday.
type PracticeHours struct {
	ID             uuid.UUID    `json:"id"`
	PracticeID     uuid.UUID    `json:"practice_id"`
	Weekday        time.Weekday `json:"weekday"`
	OpenLocal      *string      `json:"open_local"`  // "09:00"
	CloseLocal     *string      `json:"close_local"` // "17:00"
	EffectiveFrom  time.Time    `json:"effective_from"`
	EffectiveUntil time.Time    `json:"effective_until"`
	IsActive       bool         `json:"is_active"`
}

// Closed reports whether this record marks the weekday as closed.
func (h *PracticeHours) Closed() bool {
	return h.OpenLocal == nil || h.CloseLocal == nil
}

// VetAvailability is a concrete availability window for one vet,
// materialised as absolute UTC instants.
type VetAvailability struct {
	ID         uuid.UUID        `json:"id"`
	PracticeID uuid.UUID        `json:"practice_id"`
	VetUserID  uuid.UUID        `json:"vet_user_id"`
	StartAt    time.Time        `json:"start_at"`
	EndAt      time.Time        `json:"end_at"`
	Type       AvailabilityType `json:"availability_type"`
	IsActive   bool             `json:"is_active"`
}

// Window returns the availability interval.
func (v *VetAvailability) Window() Interval {
	return Interval{Start: v.StartAt, End: v.EndAt}
}

// Appointment is the sole "busy" source of truth. Availability is computed
// from appointments, never dually written.
type Appointment struct {
	ID                 uuid.UUID         `json:"id"`
	PracticeID         uuid.UUID         `json:"practice_id"`
	VetUserID          *uuid.UUID        `json:"assigned_vet_user_id,omitempty"`
	AppointmentAt      time.Time         `json:"appointment_at"`
	DurationMinutes    int               `json:"duration_minutes"`
	Status             AppointmentStatus `json:"status"`
	PetOwnerID         uuid.UUID         `json:"pet_owner_id"`
	PetIDs             []uuid.UUID       `json:"pet_ids"`
	Title              string            `json:"title"`
	Notes              string            `json:"notes,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CreatedByUserID    uuid.UUID         `json:"created_by_user_id"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Interval returns the half-open occupancy interval
// [appointment_at, appointment_at + duration).
func (a *Appointment) Interval() Interval {
	return Interval{
		Start: a.AppointmentAt,
		End:   a.AppointmentAt.Add(time.Duration(a.DurationMinutes) * time.Minute),
	}
}
