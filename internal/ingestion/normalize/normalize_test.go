package normalize

import (
	"testing"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func testFieldMap() FieldMap {
	return FieldMap{
		SupplierProductID: "id",
		SKU:                "sku",
		Name:               "name",
		Description:        "description",
		CategoryPath:       "category",
		WholesalePrice:     "price",
		RetailPrice:        "retail_price",
		StockQuantity:      "stock",
		InStock:            "in_stock",
		MainImageURL:       "image",
		AdditionalImages:   "images",
	}
}

func TestNormalize_CoercesMoneyAndStock(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":     "P-1001",
			"name":   "Wireless Mouse",
			"price":  "12,500원",
			"stock":  "42",
			"in_stock": "Y",
		},
		FetchedAt: time.Now(),
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertEqual(t, product.WholesalePrice, int64(12500), "wholesale price should coerce cleanly")
	testutil.AssertEqual(t, product.StockQuantity, 42, "stock quantity should parse")
	testutil.AssertTrue(t, product.InStock, "in_stock flag should be true")
}

func TestNormalize_MissingSupplierProductIDIsSchemaMismatch(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload:     map[string]any{"name": "No ID Product", "price": "1000"},
	}

	// Act
	_, err := n.Normalize(rec)

	// Assert
	testutil.AssertError(t, err, "missing supplier_product_id should fail normalization")
}

func TestNormalize_UnregisteredSupplierIsSchemaMismatch(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{})
	rec := &domain.RawRecord{SupplierTag: "unknown", Payload: map[string]any{}}

	// Act
	_, err := n.Normalize(rec)

	// Assert
	testutil.AssertError(t, err, "unregistered supplier should fail normalization")
}

func TestNormalize_ComputesDiscountPercent(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":            "P-2",
			"name":          "Discounted Item",
			"price":         "8000",
			"retail_price":  "10000",
			"stock":         "5",
		},
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertNotNil(t, product.DiscountPercent, "discount percent should be computed")
	testutil.AssertEqual(t, *product.DiscountPercent, 20, "discount should be (retail-wholesale)/retail")
}

func TestStripHTML_RemovesTagsAndCollapsesWhitespace(t *testing.T) {
	// Arrange
	input := "<div>  <b>Great</b>   product<br/>with\n\nspecs  </div>"

	// Act
	got := StripHTML(input)

	// Assert
	testutil.AssertEqual(t, got, "Great product with specs", "HTML stripping should collapse whitespace")
}

func TestStripHTML_PassthroughWhenNoTags(t *testing.T) {
	// Arrange
	input := "Plain description, no markup."

	// Act
	got := StripHTML(input)

	// Assert
	testutil.AssertEqual(t, got, input, "plain text should pass through unchanged")
}

func TestNormalize_RebuildsCategoryPathAcrossSeparators(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":       "P-3",
			"name":     "Category Test",
			"price":    "1000",
			"stock":    "1",
			"category": "/Electronics\\Audio>Speakers/",
		},
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertEqual(t, product.CategoryPath, "Electronics > Audio > Speakers", "mixed separators should rebuild into canonical form")
}

func TestNormalize_RewritesProtocolRelativeImageAndDropsDuplicates(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":    "P-4",
			"name":  "Image Test",
			"price": "1000",
			"stock": "1",
			"image": "//cdn.example.com/main.jpg",
			"images": []string{
				"https://cdn.example.com/a.jpg",
				"https://cdn.example.com/a.jpg",
				"not-a-url",
				"https://cdn.example.com/b.jpg",
			},
		},
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertNotNil(t, product.MainImageURL, "main image should be set")
	testutil.AssertEqual(t, *product.MainImageURL, "https://cdn.example.com/main.jpg", "protocol-relative URL should be rewritten to https")
	testutil.AssertEqual(t, len(product.AdditionalImageURLs), 2, "invalid and duplicate image URLs should be dropped")
}

func TestNormalize_DelimitedOptionTableProducesVariants(t *testing.T) {
	// Arrange
	fm := testFieldMap()
	fm.OptionRaw = "option_raw"
	fm.OptionName = "option_name"
	n := New(map[string]FieldMap{"zentrade": fm})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":          "P-5",
			"name":        "Option Test",
			"price":       "1000",
			"stock":       "7",
			"option_name": "color",
			"option_raw":  "Red^|^1200^|^1500↑=↑Blue^|^1300^|^1600",
		},
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertEqual(t, product.Options.Kind, domain.OptionsCombinatorial, "delimited option table should yield a combinatorial group")
	testutil.AssertEqual(t, len(product.Variants), 2, "each option item should become one variant")
	testutil.AssertEqual(t, product.Variants[0].StockQuantity, 7, "variants inherit the product's base stock when the source reports none")
}

func TestNormalize_BooleanTrueSetIncludesActive(t *testing.T) {
	// Arrange
	n := New(map[string]FieldMap{"zentrade": testFieldMap()})
	rec := &domain.RawRecord{
		SupplierTag: "zentrade",
		Payload: map[string]any{
			"id":       "P-6",
			"name":     "Active Flag Test",
			"price":    "1000",
			"stock":    "1",
			"in_stock": "active",
		},
	}

	// Act
	product, err := n.Normalize(rec)

	// Assert
	testutil.AssertNoError(t, err, "Normalize should succeed")
	testutil.AssertTrue(t, product.InStock, "\"active\" should be recognized as an in-stock signal")
}
