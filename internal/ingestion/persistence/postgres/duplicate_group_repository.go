package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// DuplicateGroupRepository persists one generation of Deduplicator output
// per scope (spec §3: "DuplicateGroups are recomputed periodically and are
// replaced atomically per recomputation").
type DuplicateGroupRepository struct {
	db *database.DB
}

// NewDuplicateGroupRepository builds a DuplicateGroupRepository.
func NewDuplicateGroupRepository(db *database.DB) *DuplicateGroupRepository {
	return &DuplicateGroupRepository{db: db}
}

// Replace atomically deletes the prior generation of groups for scope and
// inserts the new one, inside a single transaction.
func (r *DuplicateGroupRepository) Replace(ctx context.Context, scope string, groups []domain.DuplicateGroup) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ingest_duplicate_group WHERE scope = $1`, scope); err != nil {
			return fmt.Errorf("delete prior duplicate groups: %w", err)
		}
		for _, g := range groups {
			membersJSON, err := json.Marshal(g.Members)
			if err != nil {
				return fmt.Errorf("marshal members: %w", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO ingest_duplicate_group (
					group_id, scope, representative_supplier_tag, representative_product_id,
					members, method, threshold, best_deal_supplier_tag, best_deal_product_id,
					potential_savings
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				g.GroupID,
				scope,
				g.RepresentativeProductKey.SupplierTag,
				g.RepresentativeProductKey.SupplierProductID,
				membersJSON,
				g.Method,
				g.Threshold,
				g.BestDealKey.SupplierTag,
				g.BestDealKey.SupplierProductID,
				g.PotentialSavings,
			)
			if err != nil {
				return fmt.Errorf("insert duplicate group %s: %w", g.GroupID, err)
			}
		}
		return nil
	})
}

// ListByScope returns the current generation of duplicate groups for scope.
func (r *DuplicateGroupRepository) ListByScope(ctx context.Context, scope string) ([]domain.DuplicateGroup, error) {
	const query = `
		SELECT group_id, representative_supplier_tag, representative_product_id,
			members, method, threshold, best_deal_supplier_tag, best_deal_product_id,
			potential_savings
		FROM ingest_duplicate_group WHERE scope = $1`

	rows, err := r.db.Query(ctx, query, scope)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	defer rows.Close()

	var out []domain.DuplicateGroup
	for rows.Next() {
		var g domain.DuplicateGroup
		var membersJSON []byte
		if err := rows.Scan(
			&g.GroupID,
			&g.RepresentativeProductKey.SupplierTag,
			&g.RepresentativeProductKey.SupplierProductID,
			&membersJSON,
			&g.Method,
			&g.Threshold,
			&g.BestDealKey.SupplierTag,
			&g.BestDealKey.SupplierProductID,
			&g.PotentialSavings,
		); err != nil {
			return nil, apperrors.PersistenceFailed(err)
		}
		if err := json.Unmarshal(membersJSON, &g.Members); err != nil {
			return nil, fmt.Errorf("unmarshal members: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
