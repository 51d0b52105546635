// Package normalize implements the Normalizer (SPEC_FULL §4.3): coercion
// of one supplier's RawRecord into a CanonicalProduct, independent of
// which adapter produced the record.
package normalize

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// FieldMap names, per supplier, which raw keys map to which canonical
// concept (spec §4.3: "a declarative field map per supplier, not a
// hand-written branch per supplier"). Adapters populate RawRecord.Payload
// with their own native key names; the Normalizer never branches on
// supplier_tag beyond selecting the FieldMap.
type FieldMap struct {
	SupplierProductID string
	SKU               string
	Name              string
	Description       string
	CategoryPath      string
	WholesalePrice    string
	RetailPrice       string
	StockQuantity     string
	InStock           string
	MainImageURL      string
	AdditionalImages  string
	ShippingCost      string
	FreeShippingMin   string
	Returnable        string
	TaxFree           string

	// SourceDate names the payload key carrying the supplier's own
	// timestamp for the record (an opendate/updated_at style field),
	// coerced into CanonicalProduct.SourceReportedAt.
	SourceDate string

	// OptionRaw and OptionName name the payload keys carrying an
	// XML-style delimited option table (supplier-option-name attribute
	// plus a `name^|^buy_price^|^consumer_price[^|^image]` CDATA table,
	// items separated by `↑=↑`). Used when a supplier reports options as
	// one flat delimited string rather than a structured array.
	OptionRaw  string
	OptionName string

	// Options names the payload key carrying a structured option array
	// (each entry an id/price/quantity map), used when a supplier's API
	// already returns options as discrete records.
	Options string
}

// Normalizer coerces RawRecords into CanonicalProducts per a registered
// FieldMap per supplier tag.
type Normalizer struct {
	fieldMaps map[string]FieldMap
}

// New builds a Normalizer with one FieldMap per supplier tag it will see.
func New(fieldMaps map[string]FieldMap) *Normalizer {
	return &Normalizer{fieldMaps: fieldMaps}
}

// Normalize converts one RawRecord into a CanonicalProduct, or a
// SchemaMismatch / NormalizeError AppError when the record cannot be
// coerced (spec §4.3, §7).
func (n *Normalizer) Normalize(rec *domain.RawRecord) (*domain.CanonicalProduct, error) {
	fm, ok := n.fieldMaps[rec.SupplierTag]
	if !ok {
		return nil, apperrors.SchemaMismatch(rec.SupplierTag, fmt.Errorf("no field map registered for supplier"))
	}

	supplierProductID, err := stringField(rec.Payload, fm.SupplierProductID)
	if err != nil || supplierProductID == "" {
		return nil, apperrors.SchemaMismatch(rec.SupplierTag, fmt.Errorf("missing supplier_product_id"))
	}

	p := &domain.CanonicalProduct{
		Key: domain.ProductKey{SupplierTag: rec.SupplierTag, SupplierProductID: supplierProductID},
		Raw: rec.Payload,
	}

	p.SupplierSKU, _ = stringField(rec.Payload, fm.SKU)
	p.Name, _ = stringField(rec.Payload, fm.Name)
	if p.Name == "" {
		return nil, apperrors.NormalizeFailed(rec.SupplierTag, supplierProductID, fmt.Errorf("missing name"))
	}

	rawDesc, _ := stringField(rec.Payload, fm.Description)
	p.Description = StripHTML(rawDesc)

	categoryRaw, _ := stringField(rec.Payload, fm.CategoryPath)
	p.CategoryPath = normalizeCategoryPath(categoryRaw)

	wholesale, err := coerceMoney(rec.Payload[fm.WholesalePrice])
	if err != nil {
		return nil, apperrors.NormalizeFailed(rec.SupplierTag, supplierProductID, fmt.Errorf("wholesale_price: %w", err))
	}
	p.WholesalePrice = wholesale

	if raw, ok := rec.Payload[fm.RetailPrice]; ok {
		if retail, err := coerceMoney(raw); err == nil {
			p.RetailPrice = &retail
		}
	}
	if p.RetailPrice != nil && p.WholesalePrice > 0 {
		discount := computeDiscountPercent(p.WholesalePrice, *p.RetailPrice)
		p.DiscountPercent = &discount
	}

	qty, _ := coerceInt(rec.Payload[fm.StockQuantity])
	p.StockQuantity = qty
	p.InStock = coerceBool(rec.Payload[fm.InStock], qty > 0)

	if raw, _ := stringField(rec.Payload, fm.MainImageURL); raw != "" {
		if normalized, ok := normalizeImageURL(raw); ok {
			p.MainImageURL = &normalized
		}
	}
	p.AdditionalImageURLs = normalizeImageURLs(stringSlice(rec.Payload[fm.AdditionalImages]))

	p.Shipping = normalizeShipping(rec.Payload, fm)
	p.Options, p.Variants = normalizeOptions(rec.Payload, fm, p.WholesalePrice, p.StockQuantity, p.InStock)

	if raw, _ := stringField(rec.Payload, fm.SourceDate); raw != "" {
		if t, ok := parseSourceDate(raw); ok {
			p.SourceReportedAt = t
		}
	}

	if err := p.Validate(); err != nil {
		return nil, apperrors.NormalizeFailed(rec.SupplierTag, supplierProductID, err)
	}
	return p, nil
}

func normalizeShipping(payload map[string]any, fm FieldMap) domain.Shipping {
	var s domain.Shipping
	if v, err := coerceMoney(payload[fm.ShippingCost]); err == nil {
		s.ShippingCost = &v
	}
	if v, err := coerceMoney(payload[fm.FreeShippingMin]); err == nil {
		s.FreeShippingMin = &v
	}
	if raw, ok := payload[fm.Returnable]; ok {
		b := coerceBool(raw, true)
		s.Returnable = &b
	}
	if raw, ok := payload[fm.TaxFree]; ok {
		b := coerceBool(raw, false)
		s.TaxFree = &b
	}
	return s
}

// normalizeCategoryPath rebuilds a supplier's category path into the
// canonical ` > `-joined form regardless of the source's own separator
// (spec §4.3 step 7), dropping empty segments produced by leading/
// trailing/doubled separators.
func normalizeCategoryPath(raw string) string {
	segments := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '>' || r == '/' || r == '\\'
	})
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " > ")
}

// normalizeImageURL validates one image URL and rewrites a protocol-
// relative URL to https (spec §4.3 step 6). It reports false for a URL
// that, after rewriting, still lacks a scheme or host.
func normalizeImageURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return raw, true
}

// normalizeImageURLs validates/rewrites a list of image URLs, dropping
// invalid entries and duplicates while preserving first occurrence (spec
// §4.3 step 6, §9).
func normalizeImageURLs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		normalized, ok := normalizeImageURL(r)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// sourceDateLayouts are tried in order when coercing a supplier-reported
// timestamp of unknown format.
var sourceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSourceDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeOptions coerces a supplier's option data, whichever of the two
// shapes the adapters produce, into the domain's option/variant model
// (spec §4.3 step 8, §3). A supplier with neither shape populated yields
// OptionsNone and no variants.
func normalizeOptions(payload map[string]any, fm FieldMap, wholesalePrice int64, baseStock int, baseInStock bool) (domain.Options, []domain.Variant) {
	if fm.OptionRaw != "" {
		if raw, _ := stringField(payload, fm.OptionRaw); raw != "" {
			groupName, _ := stringField(payload, fm.OptionName)
			if groupName == "" {
				groupName = "option"
			}
			return parseDelimitedOptionTable(raw, groupName, wholesalePrice, baseStock)
		}
	}
	if fm.Options != "" {
		if entries := structuredOptionEntries(payload[fm.Options]); len(entries) > 0 {
			return parseStructuredOptions(entries, wholesalePrice, baseInStock)
		}
	}
	return domain.Options{Kind: domain.OptionsNone}, nil
}

// parseDelimitedOptionTable parses the zentrade-style option CDATA: items
// separated by `↑=↑`, fields within an item separated by `^|^` as
// name^|^buy_price^|^consumer_price[^|^image_url]. The source reports no
// per-option stock, so each combination inherits the product's own stock
// (spec §6, grounded on original_source's `_parse_option_string`).
func parseDelimitedOptionTable(raw, groupName string, wholesalePrice int64, baseStock int) (domain.Options, []domain.Variant) {
	items := strings.Split(raw, "↑=↑")
	combinations := make([]domain.Combination, 0, len(items))
	variants := make([]domain.Variant, 0, len(items))

	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, "^|^")
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		buyPrice, err := coerceMoney(parts[1])
		if err != nil {
			continue
		}

		combinations = append(combinations, domain.Combination{
			AttributeGroups: map[string]string{groupName: name},
			PriceDelta:      buyPrice - wholesalePrice,
			StockQuantity:   baseStock,
		})
		variants = append(variants, domain.Variant{
			SupplierVariantID: fmt.Sprintf("%d", i),
			Name:              name,
			WholesalePrice:    buyPrice,
			StockQuantity:     baseStock,
			InStock:           baseStock > 0,
		})
	}

	if len(combinations) == 0 {
		return domain.Options{Kind: domain.OptionsNone}, nil
	}
	return domain.Options{Kind: domain.OptionsCombinatorial, Combinations: combinations}, variants
}

// structuredOptionEntries normalizes a payload's option array, however the
// JSON/Go boundary represented it (`[]map[string]any` when an adapter
// builds it directly, `[]any` of maps after a JSON round trip), into a
// uniform slice of maps.
func structuredOptionEntries(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// parseStructuredOptions maps a supplier's {id, price, quantity} option
// array into one combinatorial group (spec §4.3 step 8).
func parseStructuredOptions(entries []map[string]any, wholesalePrice int64, baseInStock bool) (domain.Options, []domain.Variant) {
	combinations := make([]domain.Combination, 0, len(entries))
	variants := make([]domain.Variant, 0, len(entries))

	for _, entry := range entries {
		id, _ := stringField(entry, "id")
		if id == "" {
			continue
		}
		price, _ := coerceMoney(entry["price"])
		qty, _ := coerceInt(entry["quantity"])

		combinations = append(combinations, domain.Combination{
			AttributeGroups: map[string]string{"option": id},
			PriceDelta:      price - wholesalePrice,
			StockQuantity:   qty,
		})
		variants = append(variants, domain.Variant{
			SupplierVariantID: id,
			Name:              id,
			WholesalePrice:    price,
			StockQuantity:     qty,
			InStock:           qty > 0 && baseInStock,
		})
	}

	if len(combinations) == 0 {
		return domain.Options{Kind: domain.OptionsNone}, nil
	}
	return domain.Options{Kind: domain.OptionsCombinatorial, Combinations: combinations}, variants
}

// coerceMoney parses a price of unknown shape (int, float, numeric
// string, or a string with thousands separators/currency symbols) into
// minor-unit int64, per spec §4.3's currency coercion requirement.
// decimal.Decimal is used rather than float parsing so rounding is exact.
func coerceMoney(raw any) (int64, error) {
	if raw == nil {
		return 0, fmt.Errorf("missing value")
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return decimal.NewFromFloat(v).Round(0).IntPart(), nil
	case string:
		cleaned := cleanNumericString(v)
		if cleaned == "" {
			return 0, fmt.Errorf("empty numeric string")
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return d.Round(0).IntPart(), nil
	default:
		return 0, fmt.Errorf("unsupported price type %T", raw)
	}
}

func cleanNumericString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func coerceInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(cleanNumericString(v))
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, nil
	}
}

func coerceBool(raw any, defaultVal bool) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "in_stock", "active":
			return true
		case "false", "0", "n", "no", "out_of_stock", "soldout", "sold_out":
			return false
		}
	case int, int64, float64:
		n, _ := coerceInt(v)
		return n > 0
	}
	return defaultVal
}

func stringField(payload map[string]any, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	raw, ok := payload[key]
	if !ok || raw == nil {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}

func computeDiscountPercent(wholesale, retail int64) int {
	if retail <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(retail - wholesale).Div(decimal.NewFromInt(retail)).Mul(decimal.NewFromInt(100))
	result := int(pct.Round(0).IntPart())
	if result < 0 {
		return 0
	}
	if result > 100 {
		return 100
	}
	return result
}

// StripHTML removes tags from supplier-provided HTML descriptions,
// returning a plain-text rendering (spec §4.3: "descriptions arrive as
// supplier-authored HTML and must be stored as sanitized plain text").
func StripHTML(input string) string {
	if !strings.Contains(input, "<") {
		return strings.TrimSpace(input)
	}
	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(collapseWhitespace(b.String()))
		case html.TextToken:
			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		}
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
