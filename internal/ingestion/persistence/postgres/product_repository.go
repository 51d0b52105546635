// Package postgres implements the Persistence Gateway (SPEC_FULL §4.5) on
// top of jackc/pgx, grounded on the transaction discipline of the
// reference PostgresProductRepository: every upsert runs inside a
// transaction rolled back on any error.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// ProductRepository persists CanonicalProducts keyed by (supplier_tag,
// supplier_product_id) (spec §3, §4.5).
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository builds a ProductRepository.
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// UpsertResult reports whether Upsert inserted a new row or updated an
// existing one, for the ProductsUpserted{op} metric (spec §8).
type UpsertResult struct {
	Inserted bool
}

// Upsert inserts or updates one CanonicalProduct by its natural key,
// preserving first_seen_at across updates (spec §3, §4.5).
func (r *ProductRepository) Upsert(ctx context.Context, p *domain.CanonicalProduct) (UpsertResult, error) {
	var result UpsertResult

	optionsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return result, apperrors.PersistenceFailed(fmt.Errorf("marshal options: %w", err))
	}
	variantsJSON, err := json.Marshal(p.Variants)
	if err != nil {
		return result, apperrors.PersistenceFailed(fmt.Errorf("marshal variants: %w", err))
	}
	shippingJSON, err := json.Marshal(p.Shipping)
	if err != nil {
		return result, apperrors.PersistenceFailed(fmt.Errorf("marshal shipping: %w", err))
	}
	rawJSON, err := json.Marshal(p.Raw)
	if err != nil {
		return result, apperrors.PersistenceFailed(fmt.Errorf("marshal raw: %w", err))
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			INSERT INTO ingest_product (
				supplier_tag, supplier_product_id, supplier_sku, name, description,
				category_path, wholesale_price, retail_price, discount_percent,
				stock_quantity, in_stock, main_image_url, additional_image_urls,
				options, variants, shipping, raw, source_reported_at, first_seen_at, last_seen_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19
			)
			ON CONFLICT (supplier_tag, supplier_product_id) DO UPDATE SET
				supplier_sku = EXCLUDED.supplier_sku,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				category_path = EXCLUDED.category_path,
				wholesale_price = EXCLUDED.wholesale_price,
				retail_price = EXCLUDED.retail_price,
				discount_percent = EXCLUDED.discount_percent,
				stock_quantity = EXCLUDED.stock_quantity,
				in_stock = EXCLUDED.in_stock,
				main_image_url = EXCLUDED.main_image_url,
				additional_image_urls = EXCLUDED.additional_image_urls,
				options = EXCLUDED.options,
				variants = EXCLUDED.variants,
				shipping = EXCLUDED.shipping,
				raw = EXCLUDED.raw,
				source_reported_at = EXCLUDED.source_reported_at,
				last_seen_at = EXCLUDED.last_seen_at
			RETURNING (xmax = 0) AS inserted`

		row := tx.QueryRow(ctx, query,
			p.Key.SupplierTag,
			p.Key.SupplierProductID,
			p.SupplierSKU,
			p.Name,
			p.Description,
			p.CategoryPath,
			p.WholesalePrice,
			p.RetailPrice,
			p.DiscountPercent,
			p.StockQuantity,
			p.InStock,
			p.MainImageURL,
			p.AdditionalImageURLs,
			optionsJSON,
			variantsJSON,
			shippingJSON,
			rawJSON,
			p.SourceReportedAt,
			p.LastSeenAt,
		)
		return row.Scan(&result.Inserted)
	})
	if err != nil {
		return result, apperrors.PersistenceFailed(err)
	}
	return result, nil
}

// FindByKey retrieves one product by its natural key, or nil if absent.
func (r *ProductRepository) FindByKey(ctx context.Context, key domain.ProductKey) (*domain.CanonicalProduct, error) {
	const query = `
		SELECT supplier_tag, supplier_product_id, supplier_sku, name, description,
			category_path, wholesale_price, retail_price, discount_percent,
			stock_quantity, in_stock, main_image_url, additional_image_urls,
			options, variants, shipping, raw, source_reported_at, first_seen_at, last_seen_at
		FROM ingest_product WHERE supplier_tag = $1 AND supplier_product_id = $2`

	row := r.db.QueryRow(ctx, query, key.SupplierTag, key.SupplierProductID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.PersistenceFailed(err)
	}
	return p, nil
}

// ListBySupplier returns all products collected from one supplier, used by
// the Deduplicator to recompute similarity groups (spec §4.6) and by
// list_sync_status (spec §6).
func (r *ProductRepository) ListBySupplier(ctx context.Context, supplierTag string) ([]*domain.CanonicalProduct, error) {
	const query = `
		SELECT supplier_tag, supplier_product_id, supplier_sku, name, description,
			category_path, wholesale_price, retail_price, discount_percent,
			stock_quantity, in_stock, main_image_url, additional_image_urls,
			options, variants, shipping, raw, source_reported_at, first_seen_at, last_seen_at
		FROM ingest_product WHERE supplier_tag = $1 ORDER BY last_seen_at DESC`

	rows, err := r.db.Query(ctx, query, supplierTag)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	defer rows.Close()

	var out []*domain.CanonicalProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.PersistenceFailed(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which implement Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.CanonicalProduct, error) {
	var p domain.CanonicalProduct
	var optionsJSON, variantsJSON, shippingJSON, rawJSON []byte

	err := row.Scan(
		&p.Key.SupplierTag,
		&p.Key.SupplierProductID,
		&p.SupplierSKU,
		&p.Name,
		&p.Description,
		&p.CategoryPath,
		&p.WholesalePrice,
		&p.RetailPrice,
		&p.DiscountPercent,
		&p.StockQuantity,
		&p.InStock,
		&p.MainImageURL,
		&p.AdditionalImageURLs,
		&optionsJSON,
		&variantsJSON,
		&shippingJSON,
		&rawJSON,
		&p.SourceReportedAt,
		&p.FirstSeenAt,
		&p.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(optionsJSON, &p.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	if err := json.Unmarshal(variantsJSON, &p.Variants); err != nil {
		return nil, fmt.Errorf("unmarshal variants: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &p.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping: %w", err)
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &p.Raw); err != nil {
			return nil, fmt.Errorf("unmarshal raw: %w", err)
		}
	}
	return &p, nil
}
