// Package voice is the phone-channel gateway to the scheduling core. It
// receives tool invocations from the voice platform's AI assistant and
// answers with text for TTS, keeping every failure a spoken sentence the
// caller can act on rather than a dropped call.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/booking"
	"github.com/pawdesk/pawdesk-platform/internal/observability/metrics"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/slots"
	"github.com/pawdesk/pawdesk-platform/internal/timeanchor"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

var voiceTracer trace.Tracer = otel.Tracer("pawdesk.internal.gateway.voice")

const maxOfferedSlots = 3

// practiceResolver maps the called number to its practice.
type practiceResolver interface {
	ResolveByNumber(ctx context.Context, number string) (*schedule.Practice, error)
}

// slotFinder derives open slots.
type slotFinder interface {
	Find(ctx context.Context, q slots.Query) (*slots.Result, error)
}

// bookingService is the coordinator surface the gateway drives.
type bookingService interface {
	Create(ctx context.Context, p booking.CreateParams) (*schedule.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*schedule.Appointment, error)
}

// Handler handles POST /webhooks/voice/functions.
type Handler struct {
	directory   practiceResolver
	finder      slotFinder
	coordinator bookingService
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics

	slotMinutes int
	deadline    time.Duration
	now         func() time.Time
}

// HandlerConfig configures the voice Handler.
type HandlerConfig struct {
	Directory   practiceResolver
	Finder      slotFinder
	Coordinator bookingService
	Logger      *logging.Logger
	Metrics     *metrics.SchedulingMetrics
	SlotMinutes int
	Deadline    time.Duration
}

// NewHandler creates a voice gateway handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Directory == nil {
		panic("voice: directory required")
	}
	if cfg.Finder == nil {
		panic("voice: slot finder required")
	}
	if cfg.Coordinator == nil {
		panic("voice: booking coordinator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 8 * time.Second
	}
	return &Handler{
		directory:   cfg.Directory,
		finder:      cfg.Finder,
		coordinator: cfg.Coordinator,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		slotMinutes: cfg.SlotMinutes,
		deadline:    cfg.Deadline,
		now:         time.Now,
	}
}

// HandleFunctionCall is the HTTP handler for voice tool invocations.
func (h *Handler) HandleFunctionCall(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	ctx, cancel := context.WithTimeout(r.Context(), h.deadline)
	defer cancel()

	ctx, span := voiceTracer.Start(ctx, "voice.function_call")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice: failed to read body", "error", err)
		h.writeError(w, "", apperr.New(apperr.CodeBadRequest, "unreadable request body"))
		return
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("voice: failed to parse event", "error", err)
		h.writeError(w, "", apperr.New(apperr.CodeBadRequest, "malformed event"))
		return
	}

	fn := event.Payload.ToolName
	span.SetAttributes(
		attribute.String("function", string(fn)),
		attribute.String("conversation_id", event.ConversationID),
	)

	if !fn.Known() {
		h.observe(fn, apperr.New(apperr.CodeUnknownFunction, ""), started)
		h.writeError(w, event.Payload.ToolCallID,
			apperr.Newf(apperr.CodeUnknownFunction, "unknown function %q", fn))
		return
	}

	practice, err := h.directory.ResolveByNumber(ctx, event.To)
	if err != nil {
		h.observe(fn, err, started)
		h.logger.Warn("voice: practice lookup failed", "to", event.To, "error", err)
		h.writeError(w, event.Payload.ToolCallID, err)
		return
	}
	loc, err := timeanchor.LoadZone(practice.Timezone)
	if err != nil {
		h.observe(fn, err, started)
		h.writeError(w, event.Payload.ToolCallID, err)
		return
	}

	log := h.logger.WithPractice(practice.ID.String())
	log.Info("voice: function call",
		"function", fn,
		"conversation_id", event.ConversationID,
		"from", event.From,
		"to", event.To,
	)

	var speech string
	var data any
	switch fn {
	case FunctionGetAvailableTimes:
		speech, data, err = h.getAvailableTimes(ctx, practice, loc, event.Payload.Arguments)
	case FunctionBookAppointment:
		speech, data, err = h.bookAppointment(ctx, practice, loc, event.Payload.Arguments)
	case FunctionCancelAppointment:
		speech, data, err = h.cancelAppointment(ctx, loc, event.Payload.Arguments)
	}
	h.observe(fn, err, started)
	if err != nil {
		if spoken, ok := h.spokenFallback(err); ok {
			h.writeResponse(w, event.Payload.ToolCallID, spoken, nil)
			return
		}
		h.writeError(w, event.Payload.ToolCallID, err)
		return
	}
	h.writeResponse(w, event.Payload.ToolCallID, speech, data)
}

// getAvailableTimes interprets the caller's time expression, derives slots,
// and offers up to three options.
func (h *Handler) getAvailableTimes(ctx context.Context, practice *schedule.Practice, loc *time.Location, args map[string]string) (string, any, error) {
	res, err := timeanchor.Interpret(args["when"], loc, h.now().UTC())
	if err != nil {
		return "", nil, err
	}
	pref, ok := timeanchor.ParseDaypart(args["preference"])
	if !ok {
		return "", nil, apperr.Newf(apperr.CodeBadRequest, "unknown preference %q", args["preference"])
	}
	minutes, err := argMinutes(args, h.slotMinutes)
	if err != nil {
		return "", nil, err
	}
	vetID, err := argUUID(args, "vet_user_id")
	if err != nil {
		return "", nil, err
	}

	start, end := res.Bounds(time.Duration(minutes) * time.Minute)
	if now := h.now().UTC(); start.Before(now) {
		start = now
	}
	if !end.After(start) {
		return "", nil, apperr.New(apperr.CodePastInstant, "that time has already passed")
	}

	result, err := h.finder.Find(ctx, slots.Query{
		PracticeID:  practice.ID,
		VetUserID:   vetID,
		Window:      schedule.Interval{Start: start, End: end},
		SlotMinutes: minutes,
		Preference:  pref,
	})
	if err != nil {
		return "", nil, err
	}
	return h.speakSlots(result, loc), result, nil
}

// bookAppointment books the caller at a minute-precise time. Windowed
// expressions are bounced back for clarification with concrete candidate
// times when the schedule has any.
func (h *Handler) bookAppointment(ctx context.Context, practice *schedule.Practice, loc *time.Location, args map[string]string) (string, any, error) {
	res, err := timeanchor.Interpret(args["when"], loc, h.now().UTC())
	if err != nil {
		return "", nil, err
	}
	minutes, err := argMinutes(args, h.slotMinutes)
	if err != nil {
		return "", nil, err
	}
	vetID, err := argUUID(args, "vet_user_id")
	if err != nil {
		return "", nil, err
	}
	if !res.Point {
		return "", nil, h.ambiguousCandidates(ctx, practice, loc, res, minutes, vetID)
	}
	// allow_past lets staff backfill appointments that already happened.
	if res.At.Before(h.now().UTC()) && args["allow_past"] != "true" {
		return "", nil, apperr.New(apperr.CodePastInstant, "that time has already passed; could you pick another time?")
	}
	ownerID, err := argUUID(args, "pet_owner_id")
	if err != nil {
		return "", nil, err
	}
	if ownerID == nil {
		return "", nil, apperr.New(apperr.CodeBadRequest, "I couldn't find your account; let me transfer you to the front desk")
	}
	petIDs, err := argUUIDList(args, "pet_ids")
	if err != nil {
		return "", nil, err
	}
	if len(petIDs) == 0 {
		return "", nil, apperr.New(apperr.CodeBadRequest, "which pet is this appointment for?")
	}

	requestedVet := vetID
	if vetID == nil {
		vetID, err = h.pickVet(ctx, practice.ID, res.At, minutes)
		if err != nil {
			if spoken, ok := h.offerAlternatives(ctx, practice, loc, res.At, minutes, requestedVet, err); ok {
				return spoken, nil, nil
			}
			return "", nil, err
		}
	}

	appt, err := h.coordinator.Create(ctx, booking.CreateParams{
		PracticeID:        practice.ID,
		VetUserID:         *vetID,
		AppointmentAt:     res.At,
		DurationMinutes:   minutes,
		PetOwnerID:        *ownerID,
		PetIDs:            petIDs,
		Title:             strings.TrimSpace(args["reason"]),
		EmergencyOverride: args["emergency"] == "true",
	})
	if err != nil {
		if spoken, ok := h.offerAlternatives(ctx, practice, loc, res.At, minutes, requestedVet, err); ok {
			return spoken, nil, nil
		}
		return "", nil, err
	}
	speech := fmt.Sprintf("You're all set for %s. We'll see you then!",
		timeanchor.Localize(appt.AppointmentAt, loc, timeanchor.StyleFull))
	return speech, appt, nil
}

// offerAlternatives answers a conflict or availability failure with other
// open slots from the same day. Returns false when there is nothing better
// to say than the original error.
func (h *Handler) offerAlternatives(ctx context.Context, practice *schedule.Practice, loc *time.Location, at time.Time, minutes int, vetID *uuid.UUID, cause error) (string, bool) {
	code, ok := apperr.CodeOf(cause)
	if !ok || (code != apperr.CodeSlotConflict && code != apperr.CodeVetUnavailable) {
		return "", false
	}
	local := at.In(loc)
	start, end := timeanchor.DayBounds(local.Year(), local.Month(), local.Day(), loc)
	if now := h.now().UTC(); start.Before(now) {
		start = now
	}
	if !end.After(start) {
		return "", false
	}
	result, err := h.finder.Find(ctx, slots.Query{
		PracticeID:  practice.ID,
		VetUserID:   vetID,
		Window:      schedule.Interval{Start: start, End: end},
		SlotMinutes: minutes,
	})
	if err != nil || result == nil || len(result.Slots) == 0 {
		return "", false
	}
	return "That time isn't available. " + h.speakSlots(result, loc), true
}

// ambiguousCandidates turns a windowed booking expression into an AMBIGUOUS
// error that names concrete open times the caller can pick from.
func (h *Handler) ambiguousCandidates(ctx context.Context, practice *schedule.Practice, loc *time.Location, res timeanchor.Resolution, minutes int, vetID *uuid.UUID) error {
	fallback := apperr.New(apperr.CodeAmbiguous,
		"which exact time would you like? For example, ten thirty in the morning")

	start, end := res.Bounds(time.Duration(minutes) * time.Minute)
	if now := h.now().UTC(); start.Before(now) {
		start = now
	}
	if !end.After(start) {
		return fallback
	}
	result, err := h.finder.Find(ctx, slots.Query{
		PracticeID:  practice.ID,
		VetUserID:   vetID,
		Window:      schedule.Interval{Start: start, End: end},
		SlotMinutes: minutes,
	})
	if err != nil || result == nil || len(result.Slots) == 0 {
		return fallback
	}

	n := len(result.Slots)
	if n > maxOfferedSlots {
		n = maxOfferedSlots
	}
	spoken := make([]string, n)
	candidates := make([]string, n)
	for i := 0; i < n; i++ {
		spoken[i] = timeanchor.Localize(result.Slots[i].StartAt, loc, timeanchor.StyleTimeOnly)
		candidates[i] = result.Slots[i].StartAt.UTC().Format(time.RFC3339)
	}
	return apperr.Newf(apperr.CodeAmbiguous,
		"which exact time would you like? I could do %s", strings.Join(spoken, ", ")).
		WithDetails(map[string]any{"candidate_times": candidates})
}

// cancelAppointment cancels by appointment id. Cancelling twice reads as a
// success to the caller.
func (h *Handler) cancelAppointment(ctx context.Context, loc *time.Location, args map[string]string) (string, any, error) {
	id, err := argUUID(args, "appointment_id")
	if err != nil {
		return "", nil, err
	}
	if id == nil {
		return "", nil, apperr.New(apperr.CodeBadRequest, "appointment_id is required")
	}
	appt, err := h.coordinator.Cancel(ctx, *id, strings.TrimSpace(args["reason"]))
	if err != nil {
		return "", nil, err
	}
	speech := fmt.Sprintf("Your appointment on %s has been cancelled.",
		timeanchor.Localize(appt.AppointmentAt, loc, timeanchor.StyleFull))
	return speech, appt, nil
}

// pickVet chooses the vet for an unassigned booking: the first offerable
// slot at exactly the requested instant.
func (h *Handler) pickVet(ctx context.Context, practiceID uuid.UUID, at time.Time, minutes int) (*uuid.UUID, error) {
	dur := time.Duration(minutes) * time.Minute
	result, err := h.finder.Find(ctx, slots.Query{
		PracticeID:  practiceID,
		Window:      schedule.Interval{Start: at, End: at.Add(dur)},
		SlotMinutes: minutes,
	})
	if err != nil {
		return nil, err
	}
	for _, s := range result.Slots {
		if s.StartAt.Equal(at) {
			vet := s.VetUserID
			return &vet, nil
		}
	}
	switch result.Reason {
	case slots.ReasonNoHours:
		return nil, apperr.New(apperr.CodePracticeClosed, "the practice is closed at that time")
	case slots.ReasonNoVetAvailability:
		return nil, apperr.New(apperr.CodeVetUnavailable, "no veterinarian is available at that time")
	}
	return nil, apperr.New(apperr.CodeSlotConflict, "that time is already taken")
}

// speakSlots turns a slot result into one spoken sentence.
func (h *Handler) speakSlots(result *slots.Result, loc *time.Location) string {
	if len(result.Slots) == 0 {
		switch result.Reason {
		case slots.ReasonNoHours:
			return "It looks like we're closed then. Would another day work for you?"
		case slots.ReasonNoVetAvailability:
			return "Our veterinarians may not have scheduled their hours for that day yet. Would you like a callback from our front desk?"
		}
		return "I don't see any openings then. Would another time work for you?"
	}
	n := len(result.Slots)
	if n > maxOfferedSlots {
		n = maxOfferedSlots
	}
	opts := make([]string, n)
	for i := 0; i < n; i++ {
		style := timeanchor.StyleTimeOnly
		if i == 0 {
			style = timeanchor.StyleFull
		}
		opts[i] = timeanchor.Localize(result.Slots[i].StartAt, loc, style)
	}
	switch n {
	case 1:
		return fmt.Sprintf("I have %s open. Would that work?", opts[0])
	case 2:
		return fmt.Sprintf("I have %s or %s. Which would you prefer?", opts[0], opts[1])
	default:
		return fmt.Sprintf("I have %s, %s, or %s. Which would you prefer?", opts[0], opts[1], opts[2])
	}
}

// spokenFallback converts transient and infrastructure failures into a
// graceful sentence instead of an HTTP error, so the assistant keeps the
// caller instead of going silent.
func (h *Handler) spokenFallback(err error) (string, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Our system is taking too long to confirm that. Would you like a callback from our front desk?", true
	}
	code, ok := apperr.CodeOf(err)
	if !ok {
		return "", false
	}
	switch code.Class() {
	case apperr.ClassTransient, apperr.ClassInfrastructure:
		return "Our system is temporarily unable to confirm that. Would you like a callback from our front desk?", true
	}
	return "", false
}

func (h *Handler) observe(fn Function, err error, started time.Time) {
	status := "ok"
	if err != nil {
		if code, ok := apperr.CodeOf(err); ok {
			status = strings.ToLower(string(code))
		} else {
			status = "error"
		}
	}
	h.metrics.ObserveVoiceCall(string(fn), status, h.now().Sub(started).Seconds())
}

func (h *Handler) writeResponse(w http.ResponseWriter, toolCallID, text string, data any) {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{
		ToolCallID: toolCallID,
		Response:   text,
		Data:       raw,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, toolCallID string, err error) {
	status := http.StatusInternalServerError
	code := ""
	var details any
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		code = string(appErr.Code)
		details = appErr.Details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		ToolCallID: toolCallID,
		Code:       code,
		Error:      err.Error(),
		Details:    details,
	})
}

func argMinutes(args map[string]string, fallback int) (int, error) {
	raw := args["duration_minutes"]
	if raw == "" {
		return fallback, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, apperr.Newf(apperr.CodeInvalidDuration, "invalid duration %q", raw)
	}
	return minutes, nil
}

func argUUID(args map[string]string, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(args[key])
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeBadRequest, "invalid %s %q", key, raw)
	}
	return &id, nil
}

func argUUIDList(args map[string]string, key string) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(args[key])
	if raw == "" {
		return nil, nil
	}
	var out []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, apperr.Newf(apperr.CodeBadRequest, "invalid %s entry %q", key, part)
		}
		out = append(out, id)
	}
	return out, nil
}
