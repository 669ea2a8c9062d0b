package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

// Stats represents per-practice scheduling metrics.
type Stats struct {
	PracticeID            string `json:"practice_id"`
	AppointmentsBooked    int64  `json:"appointments_booked"`
	AppointmentsCancelled int64  `json:"appointments_cancelled"`
	NoShows               int64  `json:"no_shows"`
	Upcoming              int64  `json:"upcoming_appointments"`
	PeriodStart           string `json:"period_start"`
	PeriodEnd             string `json:"period_end"`
}

// statsDB defines the database interface needed by StatsRepository.
type statsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatsRepository aggregates scheduling metrics from the database.
type StatsRepository struct {
	db statsDB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	if pool == nil {
		panic("practice: pgx pool required for stats")
	}
	return &StatsRepository{db: pool}
}

// NewStatsRepositoryWithDB allows injecting a mock database for testing.
func NewStatsRepositoryWithDB(db statsDB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats retrieves aggregated metrics for a practice. Optional start/end
// times filter by creation time; nil means all-time.
func (r *StatsRepository) GetStats(ctx context.Context, practiceID uuid.UUID, start, end *time.Time) (*Stats, error) {
	stats := &Stats{PracticeID: practiceID.String()}

	var timeFilter string
	args := []any{practiceID}
	if start != nil && end != nil {
		timeFilter = " AND created_at >= $2 AND created_at < $3"
		args = append(args, *start, *end)
		stats.PeriodStart = start.Format(time.RFC3339)
		stats.PeriodEnd = end.Format(time.RFC3339)
	} else {
		stats.PeriodStart = "all-time"
		stats.PeriodEnd = "now"
	}

	bookedQuery := `SELECT COUNT(*) FROM appointments WHERE practice_id = $1` + timeFilter
	if err := r.db.QueryRow(ctx, bookedQuery, args...).Scan(&stats.AppointmentsBooked); err != nil {
		return nil, fmt.Errorf("practice stats: count booked: %w", err)
	}

	cancelledQuery := `SELECT COUNT(*) FROM appointments WHERE practice_id = $1 AND status = 'CANCELLED'` + timeFilter
	if err := r.db.QueryRow(ctx, cancelledQuery, args...).Scan(&stats.AppointmentsCancelled); err != nil {
		return nil, fmt.Errorf("practice stats: count cancelled: %w", err)
	}

	noShowQuery := `SELECT COUNT(*) FROM appointments WHERE practice_id = $1 AND status = 'NO_SHOW'` + timeFilter
	if err := r.db.QueryRow(ctx, noShowQuery, args...).Scan(&stats.NoShows); err != nil {
		return nil, fmt.Errorf("practice stats: count no-shows: %w", err)
	}

	upcomingQuery := `
		SELECT COUNT(*) FROM appointments
		WHERE practice_id = $1
		  AND appointment_at > now()
		  AND status IN ('SCHEDULED', 'CONFIRMED')`
	if err := r.db.QueryRow(ctx, upcomingQuery, practiceID).Scan(&stats.Upcoming); err != nil {
		return nil, fmt.Errorf("practice stats: count upcoming: %w", err)
	}

	return stats, nil
}

// StatsHandler serves GET /practices/{practiceID}/stats.
type StatsHandler struct {
	repo   *StatsRepository
	logger *logging.Logger
}

func NewStatsHandler(repo *StatsRepository, logger *logging.Logger) *StatsHandler {
	if repo == nil {
		panic("practice: stats repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{repo: repo, logger: logger}
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		http.Error(w, "invalid practice id", http.StatusBadRequest)
		return
	}

	var start, end *time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid start", http.StatusBadRequest)
			return
		}
		start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid end", http.StatusBadRequest)
			return
		}
		end = &t
	}
	if (start == nil) != (end == nil) {
		http.Error(w, "start and end must be given together", http.StatusBadRequest)
		return
	}

	stats, err := h.repo.GetStats(r.Context(), practiceID, start, end)
	if err != nil {
		h.logger.Error("practice stats failed", "error", err, "practice_id", practiceID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
