package postgres

import (
	"context"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/elasticsearch"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
)

// SearchProjection mirrors upserted products into a search index on a
// best-effort basis (SPEC_FULL §4.5 "Go realization"): a failure here never
// fails the batch commit, since Postgres remains the system of record.
type SearchProjection struct {
	es        *elasticsearch.Client
	indexName string
	log       *logger.Logger
}

// NewSearchProjection builds a SearchProjection over an existing index.
func NewSearchProjection(es *elasticsearch.Client, indexName string) *SearchProjection {
	return &SearchProjection{es: es, indexName: indexName, log: logger.Get().WithField("component", "search_projection")}
}

type productDocument struct {
	SupplierTag    string  `json:"supplier_tag"`
	SKU            string  `json:"supplier_sku"`
	Name           string  `json:"name"`
	CategoryPath   string  `json:"category_path"`
	WholesalePrice int64   `json:"wholesale_price"`
	InStock        bool    `json:"in_stock"`
	LastSeenAt     string  `json:"last_seen_at"`
}

// Project indexes one product's search-relevant fields. Errors are logged
// and swallowed; callers should not treat this as part of the commit's
// success/failure signal.
func (s *SearchProjection) Project(ctx context.Context, p *domain.CanonicalProduct) {
	doc := productDocument{
		SupplierTag:    p.Key.SupplierTag,
		SKU:            p.SupplierSKU,
		Name:           p.Name,
		CategoryPath:   p.CategoryPath,
		WholesalePrice: p.WholesalePrice,
		InStock:        p.InStock,
		LastSeenAt:     p.LastSeenAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	docID := p.Key.String()
	if err := s.es.UpdateDocument(ctx, s.indexName, docID, doc); err != nil {
		if err := s.es.IndexDocument(ctx, s.indexName, docID, doc); err != nil {
			s.log.WithError(err).WithField("product_key", docID).Warn("search projection failed, continuing")
		}
	}
}
