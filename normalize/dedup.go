package normalize

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"pricewatch/extract"
)

// dedupe collapses near-duplicate results: same retailer domain, title
// similarity at or above the threshold, and prices within the relative
// tolerance. The survivor of each cluster is the most complete record,
// ties broken by recency. Already-unique input passes through unchanged,
// so running dedupe twice is a no-op.
func (n *Normalizer) dedupe(results []ProductResult) []ProductResult {
	out := make([]ProductResult, 0, len(results))

	for _, candidate := range results {
		matched := false
		for i := range out {
			if !n.sameProduct(&out[i], &candidate) {
				continue
			}
			matched = true
			if preferOver(&candidate, &out[i]) {
				out[i] = candidate
			}
			break
		}
		if !matched {
			out = append(out, candidate)
		}
	}
	return out
}

func (n *Normalizer) sameProduct(a, b *ProductResult) bool {
	if a.retailerDomain != b.retailerDomain {
		return false
	}
	if TitleSimilarity(a.ProductTitle, b.ProductTitle) < n.similarityThreshold {
		return false
	}
	return withinTolerance(a.Price, b.Price, n.priceTolerance)
}

// TitleSimilarity scores two titles in [0,1]. It takes the better of a
// normalized edit-distance ratio and a token containment ratio; the
// latter catches reworded listings ("MSI GeForce RTX 4070 Ti" vs
// "MSI RTX 4070 Ti Gaming") that character distance scores too low.
func TitleSimilarity(a, b string) float64 {
	a = strings.ToLower(CleanText(a))
	b = strings.ToLower(CleanText(b))
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	editRatio := 1 - float64(dist)/float64(longest)

	return math.Max(editRatio, tokenContainment(a, b))
}

// tokenContainment is the share of the smaller title's tokens present in
// the other title.
func tokenContainment(a, b string) float64 {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	set := make(map[string]bool, len(tb))
	for _, tok := range tb {
		set[tok] = true
	}
	shared := 0
	for _, tok := range ta {
		if set[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

func withinTolerance(a, b, tolerance float64) bool {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return true
	}
	return math.Abs(a-b)/larger <= tolerance
}

// preferOver reports whether a should replace b as the survivor of a
// duplicate cluster.
func preferOver(a, b *ProductResult) bool {
	as, bs := completeness(a), completeness(b)
	if as != bs {
		return as > bs
	}
	return a.FetchedAt.After(b.FetchedAt)
}

func completeness(r *ProductResult) int {
	score := 0
	if r.InStock != extract.StockUnknown {
		score++
	}
	if r.OriginalPrice != nil {
		score++
	}
	if r.ImageURL != "" {
		score++
	}
	if r.Description != "" {
		score++
	}
	if r.AvailabilityText != "" {
		score++
	}
	return score
}
