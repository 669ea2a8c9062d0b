package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/booking"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/slots"
)

const practiceNumber = "+15551230000"

var (
	voicePracticeID = uuid.MustParse("e4f5a6b7-c8d9-4e0f-8a1b-2c3d4e5f6071")
	voiceVetID      = uuid.MustParse("f5a6b7c8-d9e0-4f01-8b2c-3d4e5f607182")
	voiceOwnerID    = uuid.MustParse("a6b7c8d9-e0f1-4012-8c3d-4e5f60718293")
	voicePetID      = uuid.MustParse("b7c8d9e0-f102-4123-8d4e-5f6071829304")
)

type fakeDirectory struct{}

func (fakeDirectory) ResolveByNumber(_ context.Context, number string) (*schedule.Practice, error) {
	if number != practiceNumber {
		return nil, apperr.Newf(apperr.CodeNotFound, "no voice agent for %s", number)
	}
	return &schedule.Practice{ID: voicePracticeID, Name: "Cedar Creek Veterinary", Timezone: "America/Chicago"}, nil
}

type fakeFinder struct {
	result  *slots.Result
	err     error
	queries []slots.Query
}

func (f *fakeFinder) Find(_ context.Context, q slots.Query) (*slots.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeBooking struct {
	created   []booking.CreateParams
	createErr error
	cancelled []uuid.UUID
	cancelErr error
}

func (f *fakeBooking) Create(_ context.Context, p booking.CreateParams) (*schedule.Appointment, error) {
	f.created = append(f.created, p)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &schedule.Appointment{
		ID:              uuid.New(),
		PracticeID:      p.PracticeID,
		VetUserID:       &p.VetUserID,
		AppointmentAt:   p.AppointmentAt,
		DurationMinutes: p.DurationMinutes,
		Status:          schedule.StatusScheduled,
	}, nil
}

func (f *fakeBooking) Cancel(_ context.Context, id uuid.UUID, _ string) (*schedule.Appointment, error) {
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &schedule.Appointment{
		ID:            id,
		PracticeID:    voicePracticeID,
		AppointmentAt: chicagoTime(2, 14, 30),
		Status:        schedule.StatusCancelled,
	}, nil
}

// chicagoTime returns a June 2026 instant expressed in the practice zone.
func chicagoTime(day, hour, min int) time.Time {
	loc, _ := time.LoadLocation("America/Chicago")
	return time.Date(2026, time.June, day, hour, min, 0, 0, loc).UTC()
}

func newTestHandler(finder *fakeFinder, svc *fakeBooking) *Handler {
	h := NewHandler(HandlerConfig{
		Directory:   fakeDirectory{},
		Finder:      finder,
		Coordinator: svc,
	})
	// Monday June 1 2026, noon in Chicago.
	h.now = func() time.Time { return chicagoTime(1, 12, 0) }
	return h
}

func callFunction(t *testing.T, h *Handler, fn Function, args map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	event := Event{
		ConversationID: "conv-1",
		From:           "+15557770000",
		To:             practiceNumber,
		Payload: Payload{
			ToolName:   fn,
			ToolCallID: "call-1",
			Arguments:  args,
		},
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/functions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleFunctionCall(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUnknownFunction(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	rec := callFunction(t, h, "order_pizza", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "UNKNOWN_FUNCTION", resp.Code)
	assert.Equal(t, "call-1", resp.ToolCallID)
}

func TestMalformedBody(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/functions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleFunctionCall(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAvailableTimesOffersSlots(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Slots: []slots.Slot{
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 9, 0), EndAt: chicagoTime(2, 9, 30), Classification: schedule.AvailabilityAvailable},
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 9, 30), EndAt: chicagoTime(2, 10, 0), Classification: schedule.AvailabilityAvailable},
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 10, 0), EndAt: chicagoTime(2, 10, 30), Classification: schedule.AvailabilityAvailable},
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 10, 30), EndAt: chicagoTime(2, 11, 0), Classification: schedule.AvailabilityAvailable},
	}}}
	h := newTestHandler(finder, &fakeBooking{})

	rec := callFunction(t, h, FunctionGetAvailableTimes, map[string]string{"when": "tomorrow"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	// Three options at most, the first with the full date.
	assert.Equal(t, "I have 9:00 AM on Tuesday, June 2, 9:30 AM, or 10:00 AM. Which would you prefer?", resp.Response)
	assert.Equal(t, "call-1", resp.ToolCallID)
	assert.NotEmpty(t, resp.Data)

	require.Len(t, finder.queries, 1)
	q := finder.queries[0]
	assert.Equal(t, voicePracticeID, q.PracticeID)
	assert.Equal(t, 30, q.SlotMinutes)
	assert.True(t, q.Window.Contains(chicagoTime(2, 9, 0)))
}

func TestGetAvailableTimesNoVetHours(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Reason: slots.ReasonNoVetAvailability}}
	h := newTestHandler(finder, &fakeBooking{})

	rec := callFunction(t, h, FunctionGetAvailableTimes, map[string]string{"when": "tomorrow morning"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t,
		"Our veterinarians may not have scheduled their hours for that day yet. Would you like a callback from our front desk?",
		resp.Response)
}

func TestGetAvailableTimesPracticeClosed(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Reason: slots.ReasonNoHours}}
	h := newTestHandler(finder, &fakeBooking{})

	rec := callFunction(t, h, FunctionGetAvailableTimes, map[string]string{"when": "tomorrow"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.Response, "we're closed then")
}

func TestGetAvailableTimesUnparseable(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	rec := callFunction(t, h, FunctionGetAvailableTimes, map[string]string{"when": "whenever the stars align"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNPARSEABLE", decodeError(t, rec).Code)
}

func TestBookAppointment(t *testing.T) {
	svc := &fakeBooking{}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
		"reason":       "limping on front paw",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "You're all set for 2:30 PM on Tuesday, June 2. We'll see you then!", resp.Response)

	require.Len(t, svc.created, 1)
	p := svc.created[0]
	assert.Equal(t, voicePracticeID, p.PracticeID)
	assert.Equal(t, voiceVetID, p.VetUserID)
	assert.Equal(t, chicagoTime(2, 14, 30), p.AppointmentAt)
	assert.Equal(t, 30, p.DurationMinutes)
	assert.Equal(t, voiceOwnerID, p.PetOwnerID)
	assert.Equal(t, []uuid.UUID{voicePetID}, p.PetIDs)
	assert.Equal(t, "limping on front paw", p.Title)
	assert.False(t, p.EmergencyOverride)
}

// A windowed expression cannot be booked; the caller is asked to narrow it.
func TestBookAppointmentAmbiguousWindow(t *testing.T) {
	svc := &fakeBooking{}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow",
		"pet_owner_id": voiceOwnerID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "AMBIGUOUS", resp.Code)
	assert.Contains(t, resp.Error, "which exact time")
	assert.Empty(t, svc.created)
}

// When the windowed day has openings, the clarification names them and the
// error carries machine-readable candidate times.
func TestBookAppointmentAmbiguousListsCandidates(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Slots: []slots.Slot{
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 9, 0), EndAt: chicagoTime(2, 9, 30), Classification: schedule.AvailabilityAvailable},
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 9, 30), EndAt: chicagoTime(2, 10, 0), Classification: schedule.AvailabilityAvailable},
	}}}
	svc := &fakeBooking{}
	h := newTestHandler(finder, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow",
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "AMBIGUOUS", resp.Code)
	assert.Contains(t, resp.Error, "I could do 9:00 AM, 9:30 AM")

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, "details = %#v", resp.Details)
	times, ok := details["candidate_times"].([]any)
	require.True(t, ok)
	require.Len(t, times, 2)
	assert.Equal(t, chicagoTime(2, 9, 0).Format(time.RFC3339), times[0])
	assert.Empty(t, svc.created)
}

func TestBookAppointmentPastInstant(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "today at 9 am",
		"pet_owner_id": voiceOwnerID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PAST_INSTANT", decodeError(t, rec).Code)
}

func TestBookAppointmentRequiresOwner(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when": "tomorrow at 2:30 pm",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
}

func TestBookAppointmentRequiresPet(t *testing.T) {
	svc := &fakeBooking{}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "BAD_REQUEST", resp.Code)
	assert.Contains(t, resp.Error, "which pet")
	assert.Empty(t, svc.created)
}

// allow_past lets staff record an appointment that already happened.
func TestBookAppointmentBackfillAllowsPast(t *testing.T) {
	svc := &fakeBooking{}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "today at 9 am",
		"allow_past":   "true",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.created, 1)
	assert.Equal(t, chicagoTime(1, 9, 0), svc.created[0].AppointmentAt)
}

// With no vet named, the handler picks the vet owning the slot at exactly
// the requested instant.
func TestBookAppointmentPicksVet(t *testing.T) {
	at := chicagoTime(2, 14, 30)
	finder := &fakeFinder{result: &slots.Result{Slots: []slots.Slot{
		{VetUserID: voiceVetID, StartAt: at, EndAt: at.Add(30 * time.Minute), Classification: schedule.AvailabilityAvailable},
	}}}
	svc := &fakeBooking{}
	h := newTestHandler(finder, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.created, 1)
	assert.Equal(t, voiceVetID, svc.created[0].VetUserID)
}

func TestBookAppointmentNoVetFree(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{}}
	h := newTestHandler(finder, &fakeBooking{})

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_CONFLICT", decodeError(t, rec).Code)
}

// Transient and infrastructure failures become a spoken callback offer, not
// an HTTP error.
func TestInfrastructureFailureSpoken(t *testing.T) {
	svc := &fakeBooking{createErr: apperr.New(apperr.CodeStoreUnavailable, "connection refused")}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t,
		"Our system is temporarily unable to confirm that. Would you like a callback from our front desk?",
		resp.Response)
}

// A conflicting booking turns into a spoken offer of other openings that
// same day.
func TestBookConflictOffersAlternatives(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Slots: []slots.Slot{
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 9, 0), EndAt: chicagoTime(2, 9, 30), Classification: schedule.AvailabilityAvailable},
	}}}
	svc := &fakeBooking{createErr: apperr.New(apperr.CodeSlotConflict, "the slot is already booked")}
	h := newTestHandler(finder, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.Response, "That time isn't available.")
	assert.Contains(t, resp.Response, "9:00 AM")

	// The alternatives query keeps the requested vet and scans their day.
	require.Len(t, finder.queries, 1)
	q := finder.queries[0]
	require.NotNil(t, q.VetUserID)
	assert.Equal(t, voiceVetID, *q.VetUserID)
	assert.True(t, q.Window.Contains(chicagoTime(2, 9, 0)))
}

// An unavailable vet gets the same treatment.
func TestBookVetUnavailableOffersAlternatives(t *testing.T) {
	finder := &fakeFinder{result: &slots.Result{Slots: []slots.Slot{
		{VetUserID: voiceVetID, StartAt: chicagoTime(2, 11, 0), EndAt: chicagoTime(2, 11, 30), Classification: schedule.AvailabilityAvailable},
	}}}
	svc := &fakeBooking{createErr: apperr.New(apperr.CodeVetUnavailable, "the vet is not available at that time")}
	h := newTestHandler(finder, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeResponse(t, rec).Response, "That time isn't available.")
}

// With no openings left that day, the conflict surfaces as the structured
// error for the assistant to relay.
func TestBookConflictNoAlternativesStaysError(t *testing.T) {
	svc := &fakeBooking{createErr: apperr.New(apperr.CodeSlotConflict, "the slot is already booked")}
	h := newTestHandler(&fakeFinder{}, svc)

	rec := callFunction(t, h, FunctionBookAppointment, map[string]string{
		"when":         "tomorrow at 2:30 pm",
		"vet_user_id":  voiceVetID.String(),
		"pet_owner_id": voiceOwnerID.String(),
		"pet_ids":      voicePetID.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_CONFLICT", decodeError(t, rec).Code)
}

func TestCancelAppointment(t *testing.T) {
	svc := &fakeBooking{}
	h := newTestHandler(&fakeFinder{}, svc)
	apptID := uuid.New()

	rec := callFunction(t, h, FunctionCancelAppointment, map[string]string{
		"appointment_id": apptID.String(),
		"reason":         "travel",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.Response, "has been cancelled")
	require.Len(t, svc.cancelled, 1)
	assert.Equal(t, apptID, svc.cancelled[0])
}

func TestCancelAppointmentRequiresID(t *testing.T) {
	h := newTestHandler(&fakeFinder{}, &fakeBooking{})

	rec := callFunction(t, h, FunctionCancelAppointment, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
