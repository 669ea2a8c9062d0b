package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store provides range queries and transactional mutation for the temporal
// entities. Appointment writes happen only through the booking coordinator's
// transaction, via the *Tx methods.
type Store struct {
	db DB
}

// NewStore creates a store backed by a pgx pool.
func NewStore(db DB) *Store {
	if db == nil {
		panic("schedule: db required")
	}
	return &Store{db: db}
}

// BeginTx opens a transaction with the given options.
func (s *Store) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStoreUnavailable, "begin transaction", err)
	}
	return tx, nil
}

const appointmentColumns = `id, practice_id, assigned_vet_user_id, appointment_at, duration_minutes,
	status, pet_owner_id, pet_ids::text[], title, notes, cancellation_reason,
	created_by_user_id, created_at, updated_at`

// GetPractice loads a practice row.
func (s *Store) GetPractice(ctx context.Context, id uuid.UUID) (*Practice, error) {
	query := `
		SELECT id, name, timezone, created_at, updated_at
		FROM practices
		WHERE id = $1
	`
	var p Practice
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Timezone, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "practice %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select practice: %w", err)
	}
	return &p, nil
}

// GetVoiceAgentByNumber resolves the practice-scoped voice agent bound to an
// inbound phone number.
func (s *Store) GetVoiceAgentByNumber(ctx context.Context, number string) (*VoiceAgent, error) {
	query := `
		SELECT id, practice_id, phone_number, timezone, is_active
		FROM voice_agents
		WHERE phone_number = $1 AND is_active
	`
	var a VoiceAgent
	err := s.db.QueryRow(ctx, query, number).Scan(&a.ID, &a.PracticeID, &a.PhoneNumber, &a.Timezone, &a.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "no voice agent for %s", number)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select voice agent: %w", err)
	}
	return &a, nil
}

// HoursFor resolves the single active practice-hours record applying to the
// weekday of a local date. Returns (nil, nil) when no record covers the
// date, which callers treat as closed.
func (s *Store) HoursFor(ctx context.Context, practiceID uuid.UUID, weekday time.Weekday, onDate time.Time) (*PracticeHours, error) {
	query := `
		SELECT id, practice_id, weekday, open_local, close_local, effective_from, effective_until, is_active
		FROM practice_hours
		WHERE practice_id = $1 AND weekday = $2 AND is_active
		  AND effective_from <= $3 AND effective_until >= $3
		ORDER BY effective_from DESC
		LIMIT 1
	`
	var h PracticeHours
	var wd int
	err := s.db.QueryRow(ctx, query, practiceID, int(weekday), onDate).Scan(
		&h.ID, &h.PracticeID, &wd, &h.OpenLocal, &h.CloseLocal,
		&h.EffectiveFrom, &h.EffectiveUntil, &h.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select practice hours: %w", err)
	}
	h.Weekday = time.Weekday(wd)
	return &h, nil
}

// ListVetAvailability returns all active windows overlapping the UTC window,
// for one vet or (vetID nil) every vet in the practice.
func (s *Store) ListVetAvailability(ctx context.Context, practiceID uuid.UUID, vetID *uuid.UUID, window Interval) ([]VetAvailability, error) {
	query := `
		SELECT id, practice_id, vet_user_id, start_at, end_at, availability_type, is_active
		FROM vet_availability
		WHERE practice_id = $1 AND is_active
		  AND ($2::uuid IS NULL OR vet_user_id = $2)
		  AND start_at < $3 AND end_at > $4
		ORDER BY vet_user_id, start_at
	`
	rows, err := s.db.Query(ctx, query, practiceID, vetID, window.End, window.Start)
	if err != nil {
		return nil, fmt.Errorf("schedule: select vet availability: %w", err)
	}
	defer rows.Close()

	var out []VetAvailability
	for rows.Next() {
		var v VetAvailability
		if err := rows.Scan(&v.ID, &v.PracticeID, &v.VetUserID, &v.StartAt, &v.EndAt, &v.Type, &v.IsActive); err != nil {
			return nil, fmt.Errorf("schedule: scan vet availability: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAppointments returns appointments intersecting the window, filtered by
// status set. Pass NonTerminalStatuses for conflict-oriented reads.
func (s *Store) ListAppointments(ctx context.Context, practiceID uuid.UUID, vetID *uuid.UUID, window Interval, statuses []AppointmentStatus) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE practice_id = $1
		  AND ($2::uuid IS NULL OR assigned_vet_user_id = $2)
		  AND appointment_at < $3
		  AND appointment_at + make_interval(mins => duration_minutes) > $4
		  AND status = ANY($5)
		ORDER BY appointment_at
	`
	rows, err := s.db.Query(ctx, query, practiceID, vetID, window.End, window.Start, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("schedule: select appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// GetAppointment loads a single appointment row.
func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select appointment: %w", err)
	}
	return appt, nil
}

// GetAppointmentForUpdateTx loads an appointment under row lock.
func (s *Store) GetAppointmentForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	row := tx.QueryRow(ctx, query, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select appointment for update: %w", err)
	}
	return appt, nil
}

// ListConflictsTx returns the vet's non-terminal appointments overlapping the
// interval, locking the rows so concurrent writers serialise on them.
// excludeID skips the appointment being rescheduled.
func (s *Store) ListConflictsTx(ctx context.Context, tx pgx.Tx, vetID uuid.UUID, iv Interval, excludeID *uuid.UUID) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE assigned_vet_user_id = $1
		  AND appointment_at < $2
		  AND appointment_at + make_interval(mins => duration_minutes) > $3
		  AND status = ANY($4)
		  AND ($5::uuid IS NULL OR id <> $5)
		ORDER BY appointment_at
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query, vetID, iv.End, iv.Start, statusStrings(NonTerminalStatuses), excludeID)
	if err != nil {
		return nil, fmt.Errorf("schedule: select conflicts: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// InsertAppointmentTx inserts the appointment inside the coordinator's
// transaction and fills in the generated timestamps.
func (s *Store) InsertAppointmentTx(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, practice_id, assigned_vet_user_id, appointment_at, duration_minutes,
			status, pet_owner_id, pet_ids, title, notes, cancellation_reason, created_by_user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		a.ID, a.PracticeID, a.VetUserID, a.AppointmentAt, a.DurationMinutes,
		string(a.Status), a.PetOwnerID, uuidStrings(a.PetIDs), a.Title, a.Notes,
		a.CancellationReason, a.CreatedByUserID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("schedule: insert appointment: %w", err)
	}
	return nil
}

// UpdateAppointmentTx rewrites the mutable appointment fields and bumps
// updated_at.
func (s *Store) UpdateAppointmentTx(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	query := `
		UPDATE appointments
		SET assigned_vet_user_id = $2,
		    appointment_at = $3,
		    duration_minutes = $4,
		    status = $5,
		    notes = $6,
		    cancellation_reason = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		a.ID, a.VetUserID, a.AppointmentAt, a.DurationMinutes,
		string(a.Status), a.Notes, a.CancellationReason,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("schedule: update appointment: %w", err)
	}
	return nil
}

// AdvisoryLockTx takes a transaction-scoped advisory lock; released at
// commit or rollback.
func (s *Store) AdvisoryLockTx(ctx context.Context, tx pgx.Tx, key int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("schedule: advisory lock: %w", err)
	}
	return nil
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("schedule: bad uuid %q: %w", r, err)
		}
		out[i] = id
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var petIDs []string
	err := row.Scan(
		&a.ID, &a.PracticeID, &a.VetUserID, &a.AppointmentAt, &a.DurationMinutes,
		&status, &a.PetOwnerID, &petIDs, &a.Title, &a.Notes, &a.CancellationReason,
		&a.CreatedByUserID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	if a.PetIDs, err = parseUUIDs(petIDs); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}
