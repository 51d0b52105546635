package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

const productTableSchema = `
CREATE TABLE IF NOT EXISTS ingest_product (
	supplier_tag VARCHAR(64) NOT NULL,
	supplier_product_id VARCHAR(128) NOT NULL,
	supplier_sku VARCHAR(128),
	name TEXT NOT NULL,
	description TEXT,
	category_path TEXT,
	wholesale_price BIGINT NOT NULL,
	retail_price BIGINT,
	discount_percent INT,
	stock_quantity INT NOT NULL,
	in_stock BOOLEAN NOT NULL,
	main_image_url TEXT,
	additional_image_urls TEXT[],
	options JSONB NOT NULL DEFAULT '{}',
	variants JSONB NOT NULL DEFAULT '[]',
	shipping JSONB NOT NULL DEFAULT '{}',
	raw JSONB,
	source_reported_at TIMESTAMPTZ,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (supplier_tag, supplier_product_id)
);
`

// TestProductRepository_UpsertThenFind requires a reachable local Postgres
// and is skipped under -short, matching the integration test convention
// used across this codebase.
func TestProductRepository_UpsertThenFind(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)
	testDB.CreateTestSchema(t, productTableSchema)

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{
		Host:     "localhost",
		Port:     5432,
		Database: testDB.DBName,
		User:     "postgres",
		Password: "postgres",
		SSLMode:  "disable",
	})
	testutil.AssertNoError(t, err, "should connect to test database")
	defer db.Close()

	repo := NewProductRepository(db)
	now := time.Now().UTC().Truncate(time.Second)
	product := &domain.CanonicalProduct{
		Key:            domain.ProductKey{SupplierTag: "zentrade", SupplierProductID: "P-1"},
		Name:           "Test Product",
		WholesalePrice: 9900,
		StockQuantity:  3,
		InStock:        true,
		Options:        domain.Options{Kind: domain.OptionsNone},
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}

	result, err := repo.Upsert(ctx, product)
	testutil.AssertNoError(t, err, "Upsert should succeed")
	testutil.AssertTrue(t, result.Inserted, "first upsert should be an insert")

	found, err := repo.FindByKey(ctx, product.Key)
	testutil.AssertNoError(t, err, "FindByKey should succeed")
	testutil.AssertNotNil(t, found, "product should be found")
	testutil.AssertEqual(t, found.Name, "Test Product", "name should round-trip")
	testutil.AssertEqual(t, found.WholesalePrice, int64(9900), "wholesale price should round-trip")

	product.StockQuantity = 10
	result, err = repo.Upsert(ctx, product)
	testutil.AssertNoError(t, err, "second Upsert should succeed")
	testutil.AssertFalse(t, result.Inserted, "second upsert should be an update")
}
