package domain

import (
	"net/url"
	"time"
)

// OptionKind tags the shape of a product's purchasable options.
type OptionKind string

const (
	OptionsNone          OptionKind = "none"
	OptionsFlat          OptionKind = "flat"
	OptionsCombinatorial OptionKind = "combinatorial"
)

// Options is a tagged variant over the three option shapes a supplier may
// describe a product's purchasable choices with (spec §3).
type Options struct {
	Kind         OptionKind
	Attributes   map[string]string // Kind == OptionsFlat
	Combinations []Combination     // Kind == OptionsCombinatorial
}

// Combination is one priced combination of attribute-group selections.
type Combination struct {
	AttributeGroups map[string]string // group name -> selected value
	PriceDelta      int64             // minor units, relative to wholesale_price
	StockQuantity   int
}

// Variant is a priced sub-SKU of a product (spec §3 "variants").
type Variant struct {
	SupplierVariantID string
	Name               string
	WholesalePrice     int64
	StockQuantity      int
	InStock            bool
}

// Shipping holds the recognized free-form shipping keys (spec §3).
type Shipping struct {
	ShippingCost    *int64
	FreeShippingMin *int64
	CarrierHint     string
	Origin          string
	Returnable      *bool
	TaxFree         *bool
}

// ProductKey is the composite natural identifier (supplier_tag, supplier_product_id).
type ProductKey struct {
	SupplierTag       string
	SupplierProductID string
}

func (k ProductKey) String() string {
	return k.SupplierTag + ":" + k.SupplierProductID
}

// CanonicalProduct is the normalized, invariant-checked product record
// (spec §3). It is the sole output of the Normalizer and the sole input
// to the Persistence Gateway and Deduplicator.
type CanonicalProduct struct {
	Key                 ProductKey
	SupplierSKU         string
	Name                string
	Description         string
	CategoryPath        string
	WholesalePrice      int64
	RetailPrice         *int64
	DiscountPercent     *int
	StockQuantity       int
	InStock             bool
	MainImageURL        *string
	AdditionalImageURLs []string
	Options             Options
	Variants            []Variant
	Shipping            Shipping
	Raw                 map[string]any
	// SourceReportedAt is the supplier's own timestamp for the record
	// (an opendate/updated_at field in the raw payload), not when this
	// system first or last saw it. The zero value means the source
	// didn't report one. Used by the Filter Stage's date_from/date_to
	// filters (spec §4.4, §9).
	SourceReportedAt time.Time
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
}

// Validate enforces the invariants from spec §3. The Normalizer calls it
// once, after all coercion steps; the Persistence Gateway does not call it
// again before upserting.
func (p *CanonicalProduct) Validate() error {
	if p.Key.SupplierTag == "" || p.Key.SupplierProductID == "" {
		return NewDomainError("canonical product requires a non-empty (supplier_tag, supplier_product_id)")
	}
	if p.Name == "" {
		return NewDomainError("canonical product requires a non-empty name")
	}
	if p.WholesalePrice < 0 {
		return NewDomainError("wholesale_price must be >= 0")
	}
	if p.RetailPrice != nil && *p.RetailPrice < p.WholesalePrice {
		return NewDomainError("retail_price must be >= wholesale_price when present")
	}
	if p.StockQuantity < 0 {
		return NewDomainError("stock_quantity must be >= 0")
	}
	if p.StockQuantity > 0 && !p.InStock {
		return NewDomainError("stock_quantity > 0 requires in_stock = true")
	}
	if p.DiscountPercent != nil && (*p.DiscountPercent < 0 || *p.DiscountPercent > 100) {
		return NewDomainError("discount_percent must be in [0, 100]")
	}
	if p.MainImageURL != nil && !isValidImageURL(*p.MainImageURL) {
		return NewDomainError("main_image_url must have a scheme and host")
	}
	for _, u := range p.AdditionalImageURLs {
		if !isValidImageURL(u) {
			return NewDomainError("additional image urls must have a scheme and host: " + u)
		}
	}
	if p.Options.Kind == OptionsCombinatorial {
		groups := make(map[string]struct{}, len(p.Options.Attributes))
		for g := range p.Options.Attributes {
			groups[g] = struct{}{}
		}
		for _, c := range p.Options.Combinations {
			for g := range c.AttributeGroups {
				if len(groups) > 0 {
					if _, ok := groups[g]; !ok {
						return NewDomainError("combinatorial option references undeclared attribute group: " + g)
					}
				}
			}
		}
	}
	return nil
}

func isValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Touch preserves FirstSeenAt and advances LastSeenAt, the bookkeeping the
// Persistence Gateway performs on every upsert (spec §4.5).
func (p *CanonicalProduct) Touch(now time.Time) {
	if p.FirstSeenAt.IsZero() {
		p.FirstSeenAt = now
	}
	p.LastSeenAt = now
}
