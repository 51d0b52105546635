package dedup

import "strings"

// stopwords mirrors the original duplicate finder's Korean particle list;
// these carry no discriminating weight for keyword overlap.
var stopwords = map[string]struct{}{
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {},
	"의": {}, "에": {}, "와": {}, "과": {}, "도": {}, "로": {},
	"으로": {}, "만": {}, "라": {}, "하": {},
}

// extractKeywords splits a preprocessed name into words of at least two
// runes, excluding stopwords, ordered by descending frequency (spec §4.6).
func extractKeywords(name string) []string {
	words := strings.Fields(preprocessName(name))
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, seen := counts[w]; !seen {
			order = append(order, w)
		}
		counts[w]++
	}
	// stable sort by descending frequency, ties keep first-seen order
	sorted := make([]string, len(order))
	copy(sorted, order)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && counts[sorted[j]] > counts[sorted[j-1]]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

// jaccardSimilarity is the overlap ratio between two keyword sets (spec
// §4.6).
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	var intersection int
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}
