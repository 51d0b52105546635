package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// AccountRepository persists SupplierAccount aggregates. AuthMaterial is
// stored already sealed by pkg/crypto.Sealer; this repository never sees
// plaintext credentials (spec §3, §9).
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository builds an AccountRepository.
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Save inserts or replaces one supplier account's full state.
func (r *AccountRepository) Save(ctx context.Context, a *domain.SupplierAccount) error {
	const query = `
		INSERT INTO ingest_supplier_account (
			supplier_tag, display_name, auth_material, connection_state,
			auto_collect, default_interval, collect_categories, recent_window_days,
			max_products_per_run, last_connected_at, last_error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (supplier_tag) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			auth_material = EXCLUDED.auth_material,
			connection_state = EXCLUDED.connection_state,
			auto_collect = EXCLUDED.auto_collect,
			default_interval = EXCLUDED.default_interval,
			collect_categories = EXCLUDED.collect_categories,
			recent_window_days = EXCLUDED.recent_window_days,
			max_products_per_run = EXCLUDED.max_products_per_run,
			last_connected_at = EXCLUDED.last_connected_at,
			last_error = EXCLUDED.last_error`

	err := r.db.Exec(ctx, query,
		a.SupplierTag, a.DisplayName, a.AuthMaterial, a.ConnectionState,
		a.AutoCollect, int64(a.DefaultInterval), a.CollectCategories, a.RecentWindowDays,
		a.MaxProductsPerRun, a.LastConnectedAt, a.LastError,
	)
	if err != nil {
		return apperrors.PersistenceFailed(err)
	}
	return nil
}

// FindByTag retrieves one supplier account by tag, or nil if absent.
func (r *AccountRepository) FindByTag(ctx context.Context, supplierTag string) (*domain.SupplierAccount, error) {
	const query = `
		SELECT supplier_tag, display_name, auth_material, connection_state,
			auto_collect, default_interval, collect_categories, recent_window_days,
			max_products_per_run, last_connected_at, last_error
		FROM ingest_supplier_account WHERE supplier_tag = $1`

	row := r.db.QueryRow(ctx, query, supplierTag)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.PersistenceFailed(err)
	}
	return a, nil
}

// ListAll returns every registered supplier account, used at process
// startup to build per-supplier adapter instances.
func (r *AccountRepository) ListAll(ctx context.Context) ([]*domain.SupplierAccount, error) {
	const query = `
		SELECT supplier_tag, display_name, auth_material, connection_state,
			auto_collect, default_interval, collect_categories, recent_window_days,
			max_products_per_run, last_connected_at, last_error
		FROM ingest_supplier_account`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	defer rows.Close()

	var out []*domain.SupplierAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, apperrors.PersistenceFailed(err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row rowScanner) (*domain.SupplierAccount, error) {
	var a domain.SupplierAccount
	var intervalNanos int64
	err := row.Scan(
		&a.SupplierTag, &a.DisplayName, &a.AuthMaterial, &a.ConnectionState,
		&a.AutoCollect, &intervalNanos, &a.CollectCategories, &a.RecentWindowDays,
		&a.MaxProductsPerRun, &a.LastConnectedAt, &a.LastError,
	)
	if err != nil {
		return nil, err
	}
	a.DefaultInterval = time.Duration(intervalNanos)
	return &a, nil
}
