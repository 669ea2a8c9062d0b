// Package events implements the transactional outbox for appointment
// lifecycle events and their delivery to SQS. Events are written in the
// same transaction as the appointment mutation, so an acknowledged booking
// always has its event, and delivery retries until marked done.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Appointment lifecycle event types.
const (
	TypeAppointmentCreated       = "appointment.created"
	TypeAppointmentRescheduled   = "appointment.rescheduled"
	TypeAppointmentCancelled     = "appointment.cancelled"
	TypeAppointmentStatusChanged = "appointment.status_changed"
)

// AppointmentEvent is the payload carried by every appointment event.
type AppointmentEvent struct {
	AppointmentID   uuid.UUID  `json:"appointment_id"`
	PracticeID      uuid.UUID  `json:"practice_id"`
	VetUserID       *uuid.UUID `json:"vet_user_id,omitempty"`
	AppointmentAt   time.Time  `json:"appointment_at_utc"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
