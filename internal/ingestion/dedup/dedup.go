// Package dedup implements the Deduplicator (SPEC_FULL §4.6): a
// similarity-based grouping of CanonicalProducts across suppliers, grounded
// on the original duplicate-finder's name-similarity, keyword-overlap, and
// model/SKU matching strategies, reimplemented without a numeric/ML
// library since none exists anywhere in this codebase's dependency
// surface (see the design note in SPEC_FULL §4.6).
package dedup

import (
	"sort"

	"github.com/google/uuid"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
)

// Config tunes the similarity thresholds and score bonuses named in spec
// §4.6 and carried over from the original duplicate finder's scoring
// constants.
type Config struct {
	NameSimilarityThreshold float64
	KeywordOverlapThreshold float64
	ModelMatchBaseScore     float64
	PriceProximityBonus     float64
	PriceProximityRatio     float64
}

// DefaultConfig mirrors the original implementation's tuned constants.
func DefaultConfig() Config {
	return Config{
		NameSimilarityThreshold: 0.7,
		KeywordOverlapThreshold: 0.3,
		ModelMatchBaseScore:     0.9,
		PriceProximityBonus:     0.1,
		PriceProximityRatio:     0.8,
	}
}

// Deduplicator recomputes DuplicateGroups over a supplier-scoped or
// cross-supplier candidate set (spec §4.6).
type Deduplicator struct {
	cfg Config
}

// New builds a Deduplicator.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

type scoredEdge struct {
	i, j   int
	score  float64
	reason domain.MatchReason
}

// FindGroups computes duplicate groups over products, using char n-gram
// TF-IDF cosine similarity on names, keyword Jaccard overlap, and exact
// supplier-SKU matching (model numbers are not compared), then merges
// pairwise matches into groups via
// union-find (spec §4.6: "a product may appear in at most one group per
// run").
func (d *Deduplicator) FindGroups(products []*domain.CanonicalProduct) []domain.DuplicateGroup {
	n := len(products)
	if n < 2 {
		return nil
	}

	names := make([]string, n)
	grams := make([][]string, n)
	keywords := make([][]string, n)
	for i, p := range products {
		names[i] = preprocessName(p.Name)
		grams[i] = charNgrams(names[i], 2, 4)
		keywords[i] = extractKeywords(p.Name)
	}
	c := buildCorpus(grams)
	vectors := make([]map[string]float64, n)
	for i, g := range grams {
		vectors[i] = c.vector(g)
	}

	uf := newUnionFind(n)
	edges := make(map[[2]int]scoredEdge)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			best, ok := d.bestEdge(products[i], products[j], i, j, vectors, keywords)
			if !ok {
				continue
			}
			edges[[2]int{i, j}] = best
			uf.union(i, j)
		}
	}

	groupsByRoot := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groupsByRoot[root] = append(groupsByRoot[root], i)
	}

	var out []domain.DuplicateGroup
	for _, members := range groupsByRoot {
		if len(members) < 2 {
			continue
		}
		out = append(out, d.buildGroup(products, members, edges))
	}
	return out
}

func (d *Deduplicator) bestEdge(a, b *domain.CanonicalProduct, i, j int, vectors []map[string]float64, keywords [][]string) (scoredEdge, bool) {
	var best scoredEdge
	var found bool

	if a.SupplierSKU != "" && a.SupplierSKU == b.SupplierSKU {
		score := d.finalScore(a, b, d.cfg.ModelMatchBaseScore)
		best, found = scoredEdge{i, j, score, domain.MatchSKU}, true
	}

	nameSim := cosineSimilarity(vectors[i], vectors[j])
	if nameSim >= d.cfg.NameSimilarityThreshold {
		score := d.finalScore(a, b, nameSim)
		if !found || score > best.score {
			best, found = scoredEdge{i, j, score, domain.MatchName}, true
		}
	}

	kwScore := jaccardSimilarity(keywords[i], keywords[j])
	if kwScore >= d.cfg.KeywordOverlapThreshold {
		score := d.finalScore(a, b, kwScore)
		if !found || score > best.score {
			best, found = scoredEdge{i, j, score, domain.MatchKeywords}, true
		}
	}

	return best, found
}

// finalScore adds the price-proximity bonus on top of the base similarity
// score; no cross-supplier bonus is applied.
func (d *Deduplicator) finalScore(a, b *domain.CanonicalProduct, base float64) float64 {
	score := base
	if a.WholesalePrice > 0 && b.WholesalePrice > 0 {
		lo, hi := a.WholesalePrice, b.WholesalePrice
		if lo > hi {
			lo, hi = hi, lo
		}
		if float64(lo)/float64(hi) > d.cfg.PriceProximityRatio {
			score += d.cfg.PriceProximityBonus
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (d *Deduplicator) buildGroup(products []*domain.CanonicalProduct, memberIdx []int, edges map[[2]int]scoredEdge) domain.DuplicateGroup {
	sort.Slice(memberIdx, func(a, b int) bool {
		return products[memberIdx[a]].WholesalePrice < products[memberIdx[b]].WholesalePrice
	})

	members := make([]domain.DuplicateMember, 0, len(memberIdx))
	bestDealIdx := memberIdx[0]
	worstPrice := products[memberIdx[0]].WholesalePrice
	for _, idx := range memberIdx {
		if products[idx].WholesalePrice > worstPrice {
			worstPrice = products[idx].WholesalePrice
		}
	}

	repIdx := memberIdx[len(memberIdx)/2]
	for _, idx := range memberIdx {
		sim, reason := bestSimilarityFor(idx, memberIdx, edges)
		members = append(members, domain.DuplicateMember{
			ProductKey:  products[idx].Key,
			Similarity:  sim,
			MatchReason: reason,
		})
	}

	return domain.DuplicateGroup{
		GroupID:                  uuid.New().String(),
		RepresentativeProductKey: products[repIdx].Key,
		Members:                  members,
		Method:                   "tfidf_char_ngram",
		Threshold:                0,
		BestDealKey:              products[bestDealIdx].Key,
		PotentialSavings:         worstPrice - products[bestDealIdx].WholesalePrice,
	}
}

func bestSimilarityFor(idx int, group []int, edges map[[2]int]scoredEdge) (float64, domain.MatchReason) {
	var best float64
	var reason domain.MatchReason = domain.MatchName
	for _, other := range group {
		if other == idx {
			continue
		}
		key := [2]int{idx, other}
		if idx > other {
			key = [2]int{other, idx}
		}
		if e, ok := edges[key]; ok && e.score > best {
			best = e.score
			reason = e.reason
		}
	}
	return best, reason
}

// unionFind is a standard disjoint-set structure for merging pairwise
// matches into connected groups.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
