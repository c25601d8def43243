// Package rank derives an ordered top-N view from aggregated token
// metrics, with filtering and a freeze mode that pins the visible ordering
// while aggregation continues in the background.
package rank

import (
	"sort"

	"token-pulse/internal/domain"
)

// SortMode selects the ranking key. All modes sort descending; ties are
// always broken by token id ascending for deterministic output.
type SortMode int

const (
	// SortBuyVolume ranks by total buy volume (the default).
	SortBuyVolume SortMode = iota
	// SortNetBuy ranks by buyVolume - sellVolume.
	SortNetBuy
	// SortNetSell ranks by sellVolume - buyVolume.
	SortNetSell
	// SortTotalVolume ranks by buyVolume + sellVolume.
	SortTotalVolume
)

// DefaultLimit is used when a query leaves Limit unset.
const DefaultLimit = 10

// MaxLimit caps any requested limit.
const MaxLimit = 20

// Query describes one ranking request.
type Query struct {
	MarketCap domain.RangeFilter // applied to MarketCap
	Volume    domain.RangeFilter // applied to BuyVolume + SellVolume
	Sort      SortMode
	Limit     int
}

// Normalize clamps the limit into [1, MaxLimit], defaulting when unset.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// key returns the descending sort key for a token under this query.
func (q Query) key(m *domain.TokenMetrics) float64 {
	switch q.Sort {
	case SortNetBuy:
		return m.BuyVolume - m.SellVolume
	case SortNetSell:
		return m.SellVolume - m.BuyVolume
	case SortTotalVolume:
		return m.TotalVolume()
	default:
		return m.BuyVolume
	}
}

// Rank filters, orders and truncates a metrics snapshot. The input is
// never mutated; the result is an independent slice.
func Rank(metrics map[string]domain.TokenMetrics, q Query) []domain.TokenMetrics {
	q = q.Normalize()

	ranked := make([]domain.TokenMetrics, 0, len(metrics))
	for _, m := range metrics {
		if !q.MarketCap.Contains(m.MarketCap) {
			continue
		}
		if !q.Volume.Contains(m.TotalVolume()) {
			continue
		}
		ranked = append(ranked, m)
	}

	sort.Slice(ranked, func(i, j int) bool {
		ki, kj := q.key(&ranked[i]), q.key(&ranked[j])
		if ki != kj {
			return ki > kj
		}
		return ranked[i].TokenID < ranked[j].TokenID
	})

	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked
}
