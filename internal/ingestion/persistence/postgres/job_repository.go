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

// JobRepository persists CollectionJob aggregates (spec §3, §4.5, §6
// get_collection_status).
type JobRepository struct {
	db *database.DB
}

// NewJobRepository builds a JobRepository.
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save inserts or replaces the full state of one job; called at job start,
// after each checkpoint, and at completion (spec §8, restartability).
func (r *JobRepository) Save(ctx context.Context, job *domain.CollectionJob) error {
	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}
	filtersJSON, err := json.Marshal(job.Filters)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}

	const query = `
		INSERT INTO ingest_collection_job (
			job_id, supplier_tag, mode, filters, max_products, state,
			started_at, finished_at, products_found, products_collected,
			products_updated, products_failed, products_skipped, errors
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (job_id) DO UPDATE SET
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			products_found = EXCLUDED.products_found,
			products_collected = EXCLUDED.products_collected,
			products_updated = EXCLUDED.products_updated,
			products_failed = EXCLUDED.products_failed,
			products_skipped = EXCLUDED.products_skipped,
			errors = EXCLUDED.errors`

	err = r.db.Exec(ctx, query,
		job.JobID, job.SupplierTag, job.Mode, filtersJSON, job.MaxProducts, job.State,
		job.StartedAt, job.FinishedAt, job.ProductsFound, job.ProductsCollected,
		job.ProductsUpdated, job.ProductsFailed, job.ProductsSkipped, errsJSON,
	)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}
	return nil
}

// FindByID retrieves one job by id, or nil if absent.
func (r *JobRepository) FindByID(ctx context.Context, jobID string) (*domain.CollectionJob, error) {
	const query = `
		SELECT job_id, supplier_tag, mode, filters, max_products, state,
			started_at, finished_at, products_found, products_collected,
			products_updated, products_failed, products_skipped, errors
		FROM ingest_collection_job WHERE job_id = $1`

	row := r.db.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.PersistenceFailed(err)
	}
	return job, nil
}

// ListRecent returns the most recent jobs for a supplier, newest first, for
// list_sync_status (spec §6).
func (r *JobRepository) ListRecent(ctx context.Context, supplierTag string, limit int) ([]*domain.CollectionJob, error) {
	const query = `
		SELECT job_id, supplier_tag, mode, filters, max_products, state,
			started_at, finished_at, products_found, products_collected,
			products_updated, products_failed, products_skipped, errors
		FROM ingest_collection_job
		WHERE supplier_tag = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, supplierTag, limit)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	defer rows.Close()

	var out []*domain.CollectionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.PersistenceFailed(err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*domain.CollectionJob, error) {
	var job domain.CollectionJob
	var filtersJSON, errsJSON []byte

	err := row.Scan(
		&job.JobID, &job.SupplierTag, &job.Mode, &filtersJSON, &job.MaxProducts, &job.State,
		&job.StartedAt, &job.FinishedAt, &job.ProductsFound, &job.ProductsCollected,
		&job.ProductsUpdated, &job.ProductsFailed, &job.ProductsSkipped, &errsJSON,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filtersJSON, &job.Filters); err != nil {
		return nil, err
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &job.Errors); err != nil {
			return nil, err
		}
	}
	return &job, nil
}
