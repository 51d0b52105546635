package domain

// MatchReason names why two products were grouped as duplicates (spec §3).
type MatchReason string

const (
	MatchName     MatchReason = "name"
	MatchKeywords MatchReason = "keywords"
	MatchModel    MatchReason = "model"
	MatchSKU      MatchReason = "sku"
)

// DuplicateMember is one product's membership in a DuplicateGroup.
type DuplicateMember struct {
	ProductKey   ProductKey
	Similarity   float64
	MatchReason  MatchReason
}

// DuplicateGroup is the output of one Deduplicator recomputation (spec §3).
type DuplicateGroup struct {
	GroupID                string
	RepresentativeProductKey ProductKey
	Members                []DuplicateMember
	Method                 string // e.g. "tfidf_char_ngram"
	Threshold              float64
	BestDealKey            ProductKey
	PotentialSavings       int64
}
