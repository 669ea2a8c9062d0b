// Package staff is the REST gateway used by front-desk tooling. Unlike the
// voice channel it speaks machine timestamps: instants are RFC 3339 in and
// out, always UTC.
package staff

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/booking"
	"github.com/pawdesk/pawdesk-platform/internal/observability/metrics"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/slots"
	"github.com/pawdesk/pawdesk-platform/internal/timeanchor"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

// scheduleReader is the read surface the staff API needs.
type scheduleReader interface {
	GetPractice(ctx context.Context, id uuid.UUID) (*schedule.Practice, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error)
	ListAppointments(ctx context.Context, practiceID uuid.UUID, vetID *uuid.UUID, window schedule.Interval, statuses []schedule.AppointmentStatus) ([]schedule.Appointment, error)
}

// slotFinder derives open slots.
type slotFinder interface {
	Find(ctx context.Context, q slots.Query) (*slots.Result, error)
}

// bookingService is the coordinator surface the staff API drives.
type bookingService interface {
	Create(ctx context.Context, p booking.CreateParams) (*schedule.Appointment, error)
	Reschedule(ctx context.Context, p booking.RescheduleParams) (*schedule.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*schedule.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to schedule.AppointmentStatus) (*schedule.Appointment, error)
}

// Handler serves the staff scheduling REST API.
type Handler struct {
	store       scheduleReader
	finder      slotFinder
	coordinator bookingService
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics
	slotMinutes int
	now         func() time.Time
}

// HandlerConfig configures the staff Handler.
type HandlerConfig struct {
	Store       scheduleReader
	Finder      slotFinder
	Coordinator bookingService
	Logger      *logging.Logger
	Metrics     *metrics.SchedulingMetrics
	SlotMinutes int
}

// NewHandler creates a staff gateway handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		panic("staff: schedule store required")
	}
	if cfg.Finder == nil {
		panic("staff: slot finder required")
	}
	if cfg.Coordinator == nil {
		panic("staff: booking coordinator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	return &Handler{
		store:       cfg.Store,
		finder:      cfg.Finder,
		coordinator: cfg.Coordinator,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		slotMinutes: cfg.SlotMinutes,
		now:         time.Now,
	}
}

// GetSlots is GET /practices/{practiceID}/slots. The window is given as
// from/to RFC 3339 timestamps, or as a natural-language "when" expression
// resolved in the practice timezone.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	practiceID, err := urlUUID(r, "practiceID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()

	minutes := h.slotMinutes
	if raw := q.Get("duration_minutes"); raw != "" {
		minutes, err = strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			h.writeError(w, apperr.Newf(apperr.CodeInvalidDuration, "invalid duration_minutes %q", raw))
			return
		}
	}

	window, err := h.resolveWindow(r.Context(), practiceID, q.Get("from"), q.Get("to"), q.Get("when"), minutes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pref, ok := timeanchor.ParseDaypart(q.Get("preference"))
	if !ok {
		h.writeError(w, apperr.Newf(apperr.CodeBadRequest, "unknown preference %q", q.Get("preference")))
		return
	}
	var vetID *uuid.UUID
	if raw := q.Get("vet_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, apperr.Newf(apperr.CodeBadRequest, "invalid vet_user_id %q", raw))
			return
		}
		vetID = &id
	}

	result, err := h.finder.Find(r.Context(), slots.Query{
		PracticeID:  practiceID,
		VetUserID:   vetID,
		Window:      window,
		SlotMinutes: minutes,
		Preference:  pref,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveSlotQuery(result.Reason, h.now().Sub(started).Seconds())
	h.writeJSON(w, http.StatusOK, result)
}

// createRequest is the POST /appointments body.
type createRequest struct {
	VetUserID         uuid.UUID   `json:"vet_user_id"`
	AppointmentAt     time.Time   `json:"appointment_at"`
	DurationMinutes   int         `json:"duration_minutes"`
	PetOwnerID        uuid.UUID   `json:"pet_owner_id"`
	PetIDs            []uuid.UUID `json:"pet_ids"`
	Title             string      `json:"title"`
	Notes             string      `json:"notes"`
	CreatedByUserID   uuid.UUID   `json:"created_by_user_id"`
	EmergencyOverride bool        `json:"emergency_override"`
}

// CreateAppointment is POST /practices/{practiceID}/appointments.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	practiceID, err := urlUUID(r, "practiceID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Wrap(apperr.CodeBadRequest, "malformed body", err))
		return
	}
	if req.PetOwnerID == uuid.Nil {
		h.writeError(w, apperr.New(apperr.CodeBadRequest, "pet_owner_id is required"))
		return
	}
	if len(req.PetIDs) == 0 {
		h.writeError(w, apperr.New(apperr.CodeBadRequest, "pet_ids is required"))
		return
	}
	if req.AppointmentAt.IsZero() {
		h.writeError(w, apperr.New(apperr.CodeBadRequest, "appointment_at is required"))
		return
	}

	// vet_user_id is optional; with none named, the first vet free at the
	// requested instant takes the booking.
	vetID := req.VetUserID
	if vetID == uuid.Nil {
		minutes := req.DurationMinutes
		if minutes <= 0 {
			minutes = h.slotMinutes
		}
		picked, err := h.pickVet(r.Context(), practiceID, req.AppointmentAt, minutes)
		if err != nil {
			h.writeError(w, err)
			return
		}
		vetID = picked
	}

	appt, err := h.coordinator.Create(r.Context(), booking.CreateParams{
		PracticeID:        practiceID,
		VetUserID:         vetID,
		AppointmentAt:     req.AppointmentAt,
		DurationMinutes:   req.DurationMinutes,
		PetOwnerID:        req.PetOwnerID,
		PetIDs:            req.PetIDs,
		Title:             req.Title,
		Notes:             req.Notes,
		CreatedByUserID:   req.CreatedByUserID,
		EmergencyOverride: req.EmergencyOverride,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, appt)
}

// updateRequest is the PATCH /appointments/{id} body. A status change and a
// reschedule are mutually exclusive.
type updateRequest struct {
	Status            *string    `json:"status"`
	AppointmentAt     *time.Time `json:"appointment_at"`
	DurationMinutes   *int       `json:"duration_minutes"`
	VetUserID         *uuid.UUID `json:"vet_user_id"`
	EmergencyOverride bool       `json:"emergency_override"`
}

// UpdateAppointment is PATCH /appointments/{id}.
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Wrap(apperr.CodeBadRequest, "malformed body", err))
		return
	}

	if req.Status != nil {
		if req.AppointmentAt != nil || req.DurationMinutes != nil || req.VetUserID != nil {
			h.writeError(w, apperr.New(apperr.CodeBadRequest, "status change and reschedule cannot be combined"))
			return
		}
		appt, err := h.coordinator.Transition(r.Context(), id, schedule.AppointmentStatus(strings.ToUpper(*req.Status)))
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, appt)
		return
	}

	if req.AppointmentAt == nil && req.DurationMinutes == nil && req.VetUserID == nil {
		h.writeError(w, apperr.New(apperr.CodeBadRequest, "nothing to update"))
		return
	}
	appt, err := h.coordinator.Reschedule(r.Context(), booking.RescheduleParams{
		AppointmentID:     id,
		AppointmentAt:     req.AppointmentAt,
		DurationMinutes:   req.DurationMinutes,
		VetUserID:         req.VetUserID,
		EmergencyOverride: req.EmergencyOverride,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment is DELETE /appointments/{id}?reason=...
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.coordinator.Cancel(r.Context(), id, r.URL.Query().Get("reason"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// GetAppointment is GET /appointments/{id}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.store.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// ListAppointments is GET /practices/{practiceID}/appointments.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	practiceID, err := urlUUID(r, "practiceID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()
	window, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var vetID *uuid.UUID
	if raw := q.Get("vet_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, apperr.Newf(apperr.CodeBadRequest, "invalid vet_user_id %q", raw))
			return
		}
		vetID = &id
	}
	statuses := schedule.NonTerminalStatuses
	if raw := q.Get("status"); raw != "" {
		statuses = nil
		for _, part := range strings.Split(raw, ",") {
			s := schedule.AppointmentStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !s.Valid() {
				h.writeError(w, apperr.Newf(apperr.CodeBadRequest, "unknown status %q", part))
				return
			}
			statuses = append(statuses, s)
		}
	}

	appts, err := h.store.ListAppointments(r.Context(), practiceID, vetID, window, statuses)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if appts == nil {
		appts = []schedule.Appointment{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// pickVet chooses the vet owning the open slot at exactly the requested
// instant.
func (h *Handler) pickVet(ctx context.Context, practiceID uuid.UUID, at time.Time, minutes int) (uuid.UUID, error) {
	result, err := h.finder.Find(ctx, slots.Query{
		PracticeID:  practiceID,
		Window:      schedule.Interval{Start: at, End: at.Add(time.Duration(minutes) * time.Minute)},
		SlotMinutes: minutes,
	})
	if err != nil {
		return uuid.Nil, err
	}
	for _, s := range result.Slots {
		if s.StartAt.Equal(at) {
			return s.VetUserID, nil
		}
	}
	switch result.Reason {
	case slots.ReasonNoHours:
		return uuid.Nil, apperr.New(apperr.CodePracticeClosed, "the practice is closed at that time")
	case slots.ReasonNoVetAvailability:
		return uuid.Nil, apperr.New(apperr.CodeVetUnavailable, "no veterinarian is available at that time")
	}
	return uuid.Nil, apperr.New(apperr.CodeSlotConflict, "no veterinarian is free at that time")
}

// resolveWindow builds the slot query window from from/to timestamps or a
// natural-language expression.
func (h *Handler) resolveWindow(ctx context.Context, practiceID uuid.UUID, from, to, when string, minutes int) (schedule.Interval, error) {
	if when != "" {
		practice, err := h.store.GetPractice(ctx, practiceID)
		if err != nil {
			return schedule.Interval{}, err
		}
		loc, err := timeanchor.LoadZone(practice.Timezone)
		if err != nil {
			return schedule.Interval{}, err
		}
		res, err := timeanchor.Interpret(when, loc, h.now().UTC())
		if err != nil {
			return schedule.Interval{}, err
		}
		start, end := res.Bounds(time.Duration(minutes) * time.Minute)
		return schedule.Interval{Start: start, End: end}, nil
	}
	return parseWindow(from, to)
}

func parseWindow(from, to string) (schedule.Interval, error) {
	if from == "" || to == "" {
		return schedule.Interval{}, apperr.New(apperr.CodeBadRequest, "from and to are required")
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return schedule.Interval{}, apperr.Newf(apperr.CodeBadRequest, "invalid from %q", from)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return schedule.Interval{}, apperr.Newf(apperr.CodeBadRequest, "invalid to %q", to)
	}
	iv := schedule.Interval{Start: start.UTC(), End: end.UTC()}
	if iv.IsZero() {
		return schedule.Interval{}, apperr.New(apperr.CodeBadRequest, "to must be after from")
	}
	return iv, nil
}

func urlUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Newf(apperr.CodeBadRequest, "invalid %s %q", param, raw)
	}
	return id, nil
}

// errorBody is the error envelope every staff endpoint returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("staff: unhandled error", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    string(apperr.CodeStoreUnavailable),
			Message: "internal error",
		})
		return
	}
	if appErr.Code.Class() == apperr.ClassInfrastructure {
		h.logger.Error("staff: infrastructure error", "error", err)
	}
	h.writeJSON(w, appErr.HTTPStatus(), errorBody{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
