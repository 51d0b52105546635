package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// ScheduleRepository persists Schedule aggregates (spec §3, §4.8) and
// satisfies scheduler.ScheduleStore.
type ScheduleRepository struct {
	db *database.DB
}

// NewScheduleRepository builds a ScheduleRepository.
func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Save inserts or replaces one schedule's full state.
func (r *ScheduleRepository) Save(ctx context.Context, s *domain.Schedule) error {
	filtersJSON, err := json.Marshal(s.Filters)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}

	const query = `
		INSERT INTO ingest_schedule (
			schedule_id, supplier_tag, name, cron_expression, timezone, mode,
			filters, max_products, active, last_run_at, next_run_at,
			total_runs, successful_runs, failed_runs, skipped_runs, last_error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (schedule_id) DO UPDATE SET
			name = EXCLUDED.name,
			cron_expression = EXCLUDED.cron_expression,
			timezone = EXCLUDED.timezone,
			mode = EXCLUDED.mode,
			filters = EXCLUDED.filters,
			max_products = EXCLUDED.max_products,
			active = EXCLUDED.active,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at,
			total_runs = EXCLUDED.total_runs,
			successful_runs = EXCLUDED.successful_runs,
			failed_runs = EXCLUDED.failed_runs,
			skipped_runs = EXCLUDED.skipped_runs,
			last_error = EXCLUDED.last_error`

	err = r.db.Exec(ctx, query,
		s.ScheduleID, s.SupplierTag, s.Name, s.CronExpression, s.Timezone, s.Mode,
		filtersJSON, s.MaxProducts, s.Active, s.LastRunAt, s.NextRunAt,
		s.TotalRuns, s.SuccessfulRuns, s.FailedRuns, s.SkippedRuns, s.LastError,
	)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}
	return nil
}

// FindByID retrieves one schedule by id, or nil if absent.
func (r *ScheduleRepository) FindByID(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	const query = scheduleSelect + ` WHERE schedule_id = $1`
	row := r.db.QueryRow(ctx, query, scheduleID)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.PersistenceFailed(err)
	}
	return s, nil
}

// ListActive returns every schedule with active = true, loaded by the
// Scheduler at startup (spec §4.8).
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*domain.Schedule, error) {
	const query = scheduleSelect + ` WHERE active = true`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, apperrors.PersistenceFailed(err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const scheduleSelect = `
	SELECT schedule_id, supplier_tag, name, cron_expression, timezone, mode,
		filters, max_products, active, last_run_at, next_run_at,
		total_runs, successful_runs, failed_runs, skipped_runs, last_error
	FROM ingest_schedule`

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	var filtersJSON []byte

	err := row.Scan(
		&s.ScheduleID, &s.SupplierTag, &s.Name, &s.CronExpression, &s.Timezone, &s.Mode,
		&filtersJSON, &s.MaxProducts, &s.Active, &s.LastRunAt, &s.NextRunAt,
		&s.TotalRuns, &s.SuccessfulRuns, &s.FailedRuns, &s.SkippedRuns, &s.LastError,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filtersJSON, &s.Filters); err != nil {
		return nil, err
	}
	return &s, nil
}
