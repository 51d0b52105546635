package dedup

import (
	"testing"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func product(tag, id, name string, price int64, sku string) *domain.CanonicalProduct {
	return &domain.CanonicalProduct{
		Key:            domain.ProductKey{SupplierTag: tag, SupplierProductID: id},
		Name:           name,
		WholesalePrice: price,
		SupplierSKU:    sku,
		StockQuantity:  1,
		InStock:        true,
	}
}

func TestFindGroups_GroupsNearIdenticalNames(t *testing.T) {
	// Arrange
	d := New(DefaultConfig())
	products := []*domain.CanonicalProduct{
		product("zentrade", "1", "Apple Wireless Earbuds Pro White", 45000, ""),
		product("ownerclan", "2", "Apple Wireless Earbuds Pro  White", 42000, ""),
		product("domaemae", "3", "Stainless Steel Kitchen Knife Set", 18000, ""),
	}

	// Act
	groups := d.FindGroups(products)

	// Assert
	testutil.AssertLen(t, groups, 1, "near-identical earbuds should form one group, knife set excluded")
	testutil.AssertLen(t, groups[0].Members, 2, "group should contain exactly the two earbuds listings")
}

func TestFindGroups_SKUMatchGroupsAcrossDissimilarNames(t *testing.T) {
	// Arrange
	d := New(DefaultConfig())
	products := []*domain.CanonicalProduct{
		product("zentrade", "1", "Wireless Mouse Black Edition", 8000, "SKU-999"),
		product("ownerclan", "2", "Office Mouse", 8200, "SKU-999"),
	}

	// Act
	groups := d.FindGroups(products)

	// Assert
	testutil.AssertLen(t, groups, 1, "matching SKU should group even with dissimilar names")
}

func TestFindGroups_BestDealIsLowestPrice(t *testing.T) {
	// Arrange
	d := New(DefaultConfig())
	products := []*domain.CanonicalProduct{
		product("zentrade", "1", "Bluetooth Speaker Mini Portable", 20000, "SKU-1"),
		product("ownerclan", "2", "Bluetooth Speaker Mini Portable", 15000, "SKU-1"),
		product("domaemae", "3", "Bluetooth Speaker Mini Portable", 25000, "SKU-1"),
	}

	// Act
	groups := d.FindGroups(products)

	// Assert
	testutil.AssertLen(t, groups, 1, "all three should group on matching SKU")
	testutil.AssertEqual(t, groups[0].BestDealKey.SupplierProductID, "2", "best deal should be the lowest wholesale price")
	testutil.AssertEqual(t, groups[0].PotentialSavings, int64(10000), "potential savings should be max minus min price")
}

func TestFindGroups_NoMatchesReturnsEmpty(t *testing.T) {
	// Arrange
	d := New(DefaultConfig())
	products := []*domain.CanonicalProduct{
		product("zentrade", "1", "Garden Hose Fifty Feet", 12000, ""),
		product("ownerclan", "2", "Laptop Stand Aluminum", 22000, ""),
	}

	// Act
	groups := d.FindGroups(products)

	// Assert
	testutil.AssertLen(t, groups, 0, "dissimilar products should not be grouped")
}
