// Package booking serialises appointment mutations. Every write runs in a
// transaction that re-checks conflicts under lock, appends the outbox event,
// and retries on serialization failures, so two callers can never hold
// overlapping confirmed bookings for the same vet.
package booking

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/events"
	"github.com/pawdesk/pawdesk-platform/internal/observability/metrics"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/timeanchor"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

var bookingTracer trace.Tracer = otel.Tracer("pawdesk.internal.booking")

// Lock strategies.
const (
	StrategySerializable = "serializable"
	StrategyAdvisory     = "advisory"
)

const (
	maxDurationMinutes = 480
	retryBaseDelay     = 10 * time.Millisecond
)

// Coordinator owns appointment writes.
type Coordinator struct {
	store      *schedule.Store
	outbox     *events.OutboxStore
	logger     *logging.Logger
	metrics    *metrics.SchedulingMetrics
	strategy   string
	maxRetries int
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewCoordinator wires the coordinator. strategy is one of
// StrategySerializable or StrategyAdvisory.
func NewCoordinator(store *schedule.Store, outbox *events.OutboxStore, strategy string, maxRetries int, logger *logging.Logger) *Coordinator {
	if store == nil {
		panic("booking: schedule store required")
	}
	if outbox == nil {
		panic("booking: outbox store required")
	}
	if strategy != StrategySerializable && strategy != StrategyAdvisory {
		panic(fmt.Sprintf("booking: unknown lock strategy %q", strategy))
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		store:      store,
		outbox:     outbox,
		logger:     logger,
		strategy:   strategy,
		maxRetries: maxRetries,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// WithMetrics attaches scheduling metrics.
func (c *Coordinator) WithMetrics(m *metrics.SchedulingMetrics) *Coordinator {
	c.metrics = m
	return c
}

// CreateParams describes a booking request.
type CreateParams struct {
	PracticeID        uuid.UUID
	VetUserID         uuid.UUID
	AppointmentAt     time.Time
	DurationMinutes   int
	PetOwnerID        uuid.UUID
	PetIDs            []uuid.UUID
	Title             string
	Notes             string
	CreatedByUserID   uuid.UUID
	EmergencyOverride bool
}

// Create books a new appointment. It verifies practice hours, vet
// availability, and conflicts before inserting, all under the configured
// lock strategy.
func (c *Coordinator) Create(ctx context.Context, p CreateParams) (*schedule.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice_id", p.PracticeID.String()),
		attribute.String("vet_user_id", p.VetUserID.String()),
	)

	if err := validDuration(p.DurationMinutes); err != nil {
		c.observe("create", err)
		return nil, err
	}
	if len(p.PetIDs) == 0 {
		err := apperr.New(apperr.CodeBadRequest, "at least one pet is required")
		c.observe("create", err)
		return nil, err
	}
	loc, err := c.practiceZone(ctx, p.PracticeID)
	if err != nil {
		c.observe("create", err)
		return nil, err
	}

	appt := &schedule.Appointment{
		ID:              uuid.New(),
		PracticeID:      p.PracticeID,
		VetUserID:       &p.VetUserID,
		AppointmentAt:   p.AppointmentAt.UTC(),
		DurationMinutes: p.DurationMinutes,
		Status:          schedule.StatusScheduled,
		PetOwnerID:      p.PetOwnerID,
		PetIDs:          p.PetIDs,
		Title:           p.Title,
		Notes:           p.Notes,
		CreatedByUserID: p.CreatedByUserID,
	}

	err = c.withRetries(ctx, "create", func(tx pgx.Tx) error {
		iv := appt.Interval()
		if err := c.checkPlacement(ctx, tx, p.PracticeID, p.VetUserID, iv, loc, p.EmergencyOverride, nil, appt); err != nil {
			return err
		}
		if err := c.store.InsertAppointmentTx(ctx, tx, appt); err != nil {
			return err
		}
		_, err := c.outbox.InsertTx(ctx, tx, p.PracticeID, events.TypeAppointmentCreated, eventFor(appt))
		return err
	})
	c.observe("create", err)
	if err != nil {
		return nil, err
	}
	c.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"practice_id", appt.PracticeID,
		"vet_user_id", p.VetUserID,
		"appointment_at", appt.AppointmentAt,
	)
	return appt, nil
}

// RescheduleParams moves or resizes an existing appointment. Nil fields
// keep their current value.
type RescheduleParams struct {
	AppointmentID     uuid.UUID
	AppointmentAt     *time.Time
	DurationMinutes   *int
	VetUserID         *uuid.UUID
	EmergencyOverride bool
}

// Reschedule moves an appointment, re-running the full placement checks at
// the new interval.
func (c *Coordinator) Reschedule(ctx context.Context, p RescheduleParams) (*schedule.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", p.AppointmentID.String()))

	if p.DurationMinutes != nil {
		if err := validDuration(*p.DurationMinutes); err != nil {
			c.observe("reschedule", err)
			return nil, err
		}
	}

	var result *schedule.Appointment
	err := c.withRetries(ctx, "reschedule", func(tx pgx.Tx) error {
		appt, err := c.store.GetAppointmentForUpdateTx(ctx, tx, p.AppointmentID)
		if err != nil {
			return err
		}
		if appt.Status.Terminal() {
			return apperr.Newf(apperr.CodeInvalidTransition, "cannot reschedule a %s appointment", appt.Status)
		}
		if p.AppointmentAt != nil {
			appt.AppointmentAt = p.AppointmentAt.UTC()
		}
		if p.DurationMinutes != nil {
			appt.DurationMinutes = *p.DurationMinutes
		}
		if p.VetUserID != nil {
			appt.VetUserID = p.VetUserID
		}
		if appt.VetUserID == nil {
			return apperr.New(apperr.CodeBadRequest, "appointment has no assigned vet")
		}
		loc, err := c.practiceZone(ctx, appt.PracticeID)
		if err != nil {
			return err
		}
		excl := appt.ID
		if err := c.checkPlacement(ctx, tx, appt.PracticeID, *appt.VetUserID, appt.Interval(), loc, p.EmergencyOverride, &excl, appt); err != nil {
			return err
		}
		if err := c.store.UpdateAppointmentTx(ctx, tx, appt); err != nil {
			return err
		}
		if _, err := c.outbox.InsertTx(ctx, tx, appt.PracticeID, events.TypeAppointmentRescheduled, eventFor(appt)); err != nil {
			return err
		}
		result = appt
		return nil
	})
	c.observe("reschedule", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel cancels an appointment. Cancelling an already-cancelled
// appointment succeeds without effect; cancelling a completed or no-show
// one fails.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID, reason string) (*schedule.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id.String()))

	var result *schedule.Appointment
	err := c.withRetries(ctx, "cancel", func(tx pgx.Tx) error {
		appt, err := c.store.GetAppointmentForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if appt.Status == schedule.StatusCancelled {
			result = appt
			return nil
		}
		if appt.Status.Terminal() {
			return apperr.Newf(apperr.CodeInvalidTransition, "cannot cancel a %s appointment", appt.Status)
		}
		appt.Status = schedule.StatusCancelled
		appt.CancellationReason = reason
		if err := c.store.UpdateAppointmentTx(ctx, tx, appt); err != nil {
			return err
		}
		if _, err := c.outbox.InsertTx(ctx, tx, appt.PracticeID, events.TypeAppointmentCancelled, eventFor(appt)); err != nil {
			return err
		}
		result = appt
		return nil
	})
	c.observe("cancel", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transition moves an appointment along its lifecycle. Transitioning to
// the current status is a no-op success.
func (c *Coordinator) Transition(ctx context.Context, id uuid.UUID, to schedule.AppointmentStatus) (*schedule.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment_id", id.String()),
		attribute.String("to_status", string(to)),
	)

	if !to.Valid() {
		return nil, apperr.Newf(apperr.CodeBadRequest, "unknown status %q", to)
	}

	var result *schedule.Appointment
	err := c.withRetries(ctx, "transition", func(tx pgx.Tx) error {
		appt, err := c.store.GetAppointmentForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if appt.Status == to {
			result = appt
			return nil
		}
		if !CanTransition(appt.Status, to) {
			return apperr.Newf(apperr.CodeInvalidTransition, "cannot move %s appointment to %s", appt.Status, to)
		}
		appt.Status = to
		if err := c.store.UpdateAppointmentTx(ctx, tx, appt); err != nil {
			return err
		}
		eventType := events.TypeAppointmentStatusChanged
		if to == schedule.StatusCancelled {
			eventType = events.TypeAppointmentCancelled
		}
		if _, err := c.outbox.InsertTx(ctx, tx, appt.PracticeID, eventType, eventFor(appt)); err != nil {
			return err
		}
		result = appt
		return nil
	})
	c.observe("transition", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkPlacement enforces, in order, practice hours, vet availability, and
// conflicts. The conflict read locks the overlapping rows. The override
// skips the hours and availability checks entirely and books over any
// conflict, annotating the double-booking in the notes.
func (c *Coordinator) checkPlacement(ctx context.Context, tx pgx.Tx, practiceID, vetID uuid.UUID, iv schedule.Interval, loc *time.Location, override bool, excludeID *uuid.UUID, appt *schedule.Appointment) error {
	if c.strategy == StrategyAdvisory {
		for _, key := range advisoryKeys(vetID, iv) {
			if err := c.store.AdvisoryLockTx(ctx, tx, key); err != nil {
				return err
			}
		}
	}

	if !override {
		local := iv.Start.In(loc)
		y, m, d := local.Date()
		hours, err := c.store.HoursFor(ctx, practiceID, local.Weekday(), time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return err
		}
		closed := hours == nil
		if !closed {
			open, ok, err := hours.OpenInterval(y, m, d, loc)
			if err != nil {
				return err
			}
			closed = !ok || !open.Encloses(iv)
		}
		if closed {
			return apperr.New(apperr.CodePracticeClosed, "the practice is closed at that time")
		}

		windows, err := c.store.ListVetAvailability(ctx, practiceID, &vetID, iv)
		if err != nil {
			return err
		}
		var positive, blocked schedule.IntervalSet
		for _, w := range windows {
			switch w.Type {
			case schedule.AvailabilityAvailable, schedule.AvailabilityEmergencyOnly:
				positive = append(positive, w.Window())
			default:
				blocked = append(blocked, w.Window())
			}
		}
		if !covers(positive.Subtract(blocked), iv) {
			return apperr.New(apperr.CodeVetUnavailable, "the vet is not available at that time")
		}
	}

	conflicts, err := c.store.ListConflictsTx(ctx, tx, vetID, iv, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		ids := make([]string, len(conflicts))
		for i, cf := range conflicts {
			ids[i] = cf.ID.String()
		}
		if !override {
			return apperr.New(apperr.CodeSlotConflict, "the slot is already booked").
				WithDetails(map[string]any{"conflicting_appointment_ids": ids})
		}
		note := fmt.Sprintf("EMERGENCY OVERRIDE: double-booked over %s", strings.Join(ids, ", "))
		if appt.Notes != "" {
			appt.Notes += "\n"
		}
		appt.Notes += note
	}
	return nil
}

// withRetries runs fn in a transaction, retrying on serialization failures
// and deadlocks with exponential jittered backoff.
func (c *Coordinator) withRetries(ctx context.Context, operation string, fn func(tx pgx.Tx) error) error {
	opts := pgx.TxOptions{}
	if c.strategy == StrategySerializable {
		opts.IsoLevel = pgx.Serializable
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.ObserveBookingRetry()
			c.sleep(backoff(attempt))
			c.logger.Warn("retrying booking transaction",
				"operation", operation, "attempt", attempt, "error", lastErr)
		}
		err := c.inTx(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return apperr.Wrap(apperr.CodeTryAgain, "booking contention, please retry", lastErr)
}

func (c *Coordinator) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := c.store.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if retryable(err) {
			return err
		}
		return apperr.Wrap(apperr.CodeStoreUnavailable, "commit booking transaction", err)
	}
	return nil
}

func (c *Coordinator) practiceZone(ctx context.Context, practiceID uuid.UUID) (*time.Location, error) {
	practice, err := c.store.GetPractice(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	return timeanchor.LoadZone(practice.Timezone)
}

func (c *Coordinator) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		if code, ok := apperr.CodeOf(err); ok {
			outcome = strings.ToLower(string(code))
		} else {
			outcome = "error"
		}
	}
	c.metrics.ObserveBooking(operation, outcome)
}

func validDuration(minutes int) error {
	if minutes <= 0 || minutes > maxDurationMinutes {
		return apperr.Newf(apperr.CodeInvalidDuration,
			"duration must be between 1 and %d minutes, got %d", maxDurationMinutes, minutes)
	}
	return nil
}

// covers reports whether the normalized set fully encloses iv.
func covers(set schedule.IntervalSet, iv schedule.Interval) bool {
	for _, s := range set.Normalize() {
		if s.Encloses(iv) {
			return true
		}
	}
	return false
}

// advisoryKeys derives one lock key per hour bucket the interval touches,
// sorted so concurrent transactions acquire them in the same order.
func advisoryKeys(vetID uuid.UUID, iv schedule.Interval) []int64 {
	h := fnv.New64a()
	h.Write(vetID[:])
	base := h.Sum64()

	seen := map[int64]struct{}{}
	var keys []int64
	for t := iv.Start.Truncate(time.Hour); t.Before(iv.End); t = t.Add(time.Hour) {
		key := int64(base ^ uint64(t.Unix()))
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// retryable reports whether the error is a serialization failure (40001)
// or deadlock (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// backoff returns 10ms, 40ms, 160ms with +-50% jitter.
func backoff(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 4
	}
	jitter := time.Duration(rand.Int63n(int64(d))) - d/2
	return d + jitter
}

func eventFor(a *schedule.Appointment) events.AppointmentEvent {
	return events.AppointmentEvent{
		AppointmentID:   a.ID,
		PracticeID:      a.PracticeID,
		VetUserID:       a.VetUserID,
		AppointmentAt:   a.AppointmentAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		UpdatedAt:       a.UpdatedAt,
	}
}
