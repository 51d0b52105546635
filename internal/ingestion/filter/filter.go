// Package filter implements the Filter Stage (SPEC_FULL §4.4): the
// structural predicates named in spec §3's Filters type, plus an optional
// expression predicate for anything a job's structural filters can't
// express, reusing the rule engine built on expr-lang/expr.
package filter

import (
	"fmt"
	"strings"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/rules"
)

// Filter decides whether one CanonicalProduct passes a job's Filters.
type Filter struct {
	expr *rules.CompiledRule // nil when Filters.Expression is empty
}

// New compiles filters.Expression, if present, once per job rather than
// per product (spec §4.4: "the expression predicate is compiled once at
// job start").
func New(filters domain.Filters) (*Filter, error) {
	f := &Filter{}
	if strings.TrimSpace(filters.Expression) == "" {
		return f, nil
	}
	rule, err := rules.NewRule("collection_filter_expression", filters.Expression, "supplemental collection filter")
	if err != nil {
		return nil, fmt.Errorf("filter: invalid expression filter: %w", err)
	}
	f.expr = rule
	return f, nil
}

// Matches reports whether p passes every structural filter in filters, and
// then the optional expression predicate. Structural filters are checked
// first since they're cheap and catch the overwhelming majority of
// exclusions (spec §4.4).
func (f *Filter) Matches(p *domain.CanonicalProduct, filters domain.Filters) (bool, error) {
	if filters.StockOnly && !p.InStock {
		return false, nil
	}
	if filters.PriceMin != nil && p.WholesalePrice < *filters.PriceMin {
		return false, nil
	}
	if filters.PriceMax != nil && p.WholesalePrice > *filters.PriceMax {
		return false, nil
	}
	if len(filters.Categories) > 0 && !matchesAnyCategory(p.CategoryPath, filters.Categories) {
		return false, nil
	}
	if len(filters.Keywords) > 0 && !containsAnyKeyword(p.Name, p.Description, filters.Keywords) {
		return false, nil
	}
	if len(filters.ExcludeKeywords) > 0 && containsAnyKeyword(p.Name, p.Description, filters.ExcludeKeywords) {
		return false, nil
	}
	// date_from/date_to compare against the supplier's own reported date,
	// never the ingestion-side LastSeenAt timestamp. A product whose
	// source never reported one passes both bounds unfiltered.
	if !p.SourceReportedAt.IsZero() {
		if filters.DateFrom != nil && p.SourceReportedAt.Before(*filters.DateFrom) {
			return false, nil
		}
		if filters.DateTo != nil && p.SourceReportedAt.After(*filters.DateTo) {
			return false, nil
		}
	}

	if f.expr == nil {
		return true, nil
	}
	env := map[string]interface{}{
		"name":            p.Name,
		"description":     p.Description,
		"category_path":   p.CategoryPath,
		"wholesale_price": p.WholesalePrice,
		"retail_price":    derefInt64(p.RetailPrice),
		"stock_quantity":  p.StockQuantity,
		"in_stock":        p.InStock,
		"supplier_sku":    p.SupplierSKU,
	}
	ok, err := f.expr.Evaluate(env)
	if err != nil {
		return false, fmt.Errorf("filter: expression evaluation failed: %w", err)
	}
	return ok, nil
}

// matchesAnyCategory reports whether categoryPath contains any of the
// filter values as a case-insensitive substring (spec §4.4).
func matchesAnyCategory(categoryPath string, values []string) bool {
	haystack := strings.ToLower(categoryPath)
	for _, v := range values {
		if strings.Contains(haystack, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func containsAnyKeyword(name, description string, keywords []string) bool {
	haystack := strings.ToLower(name + " " + description)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
