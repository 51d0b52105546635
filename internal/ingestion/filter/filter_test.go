package filter

import (
	"testing"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func sampleProduct() *domain.CanonicalProduct {
	return &domain.CanonicalProduct{
		Key:            domain.ProductKey{SupplierTag: "zentrade", SupplierProductID: "P1"},
		Name:           "Bluetooth Speaker",
		Description:    "Portable waterproof speaker",
		CategoryPath:   "electronics/audio",
		WholesalePrice: 15000,
		StockQuantity:  10,
		InStock:        true,
	}
}

func TestFilter_StockOnlyExcludesOutOfStock(t *testing.T) {
	// Arrange
	f, err := New(domain.Filters{})
	testutil.AssertNoError(t, err, "New should succeed with no expression")
	p := sampleProduct()
	p.InStock = false
	p.StockQuantity = 0

	// Act
	matched, err := f.Matches(p, domain.Filters{StockOnly: true})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertFalse(t, matched, "out of stock product should be excluded when StockOnly")
}

func TestFilter_PriceRange(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()
	min := int64(20000)

	// Act
	matched, err := f.Matches(p, domain.Filters{PriceMin: &min})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertFalse(t, matched, "product priced below PriceMin should be excluded")
}

func TestFilter_ExcludeKeywords(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()

	// Act
	matched, err := f.Matches(p, domain.Filters{ExcludeKeywords: []string{"waterproof"}})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertFalse(t, matched, "product matching an exclude keyword should be excluded")
}

func TestFilter_ExpressionPredicate(t *testing.T) {
	// Arrange
	f, err := New(domain.Filters{Expression: "wholesale_price > 10000 && in_stock"})
	testutil.AssertNoError(t, err, "New should compile a valid expression")
	p := sampleProduct()

	// Act
	matched, err := f.Matches(p, domain.Filters{})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertTrue(t, matched, "product satisfying the expression should match")
}

func TestFilter_CategorySubstringMatchIsCaseInsensitive(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()
	p.CategoryPath = "Electronics > Phones"

	// Act
	matched, err := f.Matches(p, domain.Filters{Categories: []string{"phones"}})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertTrue(t, matched, "a lowercase substring of a category segment should match")
}

func TestFilter_CategorySubstringExcludesUnrelated(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()
	p.CategoryPath = "Electronics > Audio"

	// Act
	matched, err := f.Matches(p, domain.Filters{Categories: []string{"phones"}})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertFalse(t, matched, "a category without the substring should be excluded")
}

func TestFilter_DateRangeUsesSourceReportedDate(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()
	p.SourceReportedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	p.LastSeenAt = time.Now()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Act
	matched, err := f.Matches(p, domain.Filters{DateFrom: &from})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertFalse(t, matched, "a stale source-reported date should be excluded even with a recent LastSeenAt")
}

func TestFilter_DateRangeSkippedWhenSourceReportedDateUnknown(t *testing.T) {
	// Arrange
	f, _ := New(domain.Filters{})
	p := sampleProduct()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Act
	matched, err := f.Matches(p, domain.Filters{DateFrom: &from})

	// Assert
	testutil.AssertNoError(t, err, "Matches should not error")
	testutil.AssertTrue(t, matched, "a product whose source never reported a date should not be excluded by date filters")
}

func TestFilter_InvalidExpressionFailsAtConstruction(t *testing.T) {
	// Act
	_, err := New(domain.Filters{Expression: "this is not valid expr syntax )))"})

	// Assert
	testutil.AssertError(t, err, "invalid expression should fail at New, not at Matches")
}
