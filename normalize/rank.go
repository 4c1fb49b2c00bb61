package normalize

import (
	"sort"

	"pricewatch/extract"
)

// rank orders results cheapest first. At equal price, in-stock results
// rank above out-of-stock and unknown; remaining ties go to the higher
// whitelist confidence. The sort is stable so equal results keep their
// arrival order and ranking stays deterministic.
func rank(results []ProductResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		if sa, sb := stockRank(a.InStock), stockRank(b.InStock); sa != sb {
			return sa < sb
		}
		return a.confidence > b.confidence
	})
}

func stockRank(status string) int {
	switch status {
	case extract.StockIn:
		return 0
	case extract.StockUnknown:
		return 1
	default:
		return 2
	}
}
