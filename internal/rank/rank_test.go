package rank

import (
	"fmt"
	"testing"

	"token-pulse/internal/domain"
)

func metricsFixture() map[string]domain.TokenMetrics {
	tokens := []domain.TokenMetrics{
		{TokenID: "A", BuyVolume: 500, SellVolume: 100, MarketCap: 2_000_000},
		{TokenID: "B", BuyVolume: 900, SellVolume: 800, MarketCap: 50_000_000},
		{TokenID: "C", BuyVolume: 100, SellVolume: 600, MarketCap: 500_000},
		{TokenID: "D", BuyVolume: 500, SellVolume: 0, MarketCap: 800_000},
		{TokenID: "E", BuyVolume: 50, SellVolume: 10, MarketCap: 120_000_000},
	}
	out := make(map[string]domain.TokenMetrics, len(tokens))
	for _, m := range tokens {
		out[m.TokenID] = m
	}
	return out
}

func ids(ranked []domain.TokenMetrics) []string {
	out := make([]string, len(ranked))
	for i, m := range ranked {
		out[i] = m.TokenID
	}
	return out
}

func assertOrder(t *testing.T, ranked []domain.TokenMetrics, want ...string) {
	t.Helper()
	got := ids(ranked)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRankSortsByBuyVolumeDescending(t *testing.T) {
	ranked := Rank(metricsFixture(), Query{})
	assertOrder(t, ranked, "B", "A", "D", "C", "E")
}

func TestRankBreaksTiesByTokenID(t *testing.T) {
	// A and D both have BuyVolume 500; A sorts first.
	ranked := Rank(metricsFixture(), Query{})
	if ranked[1].TokenID != "A" || ranked[2].TokenID != "D" {
		t.Errorf("tie not broken by token id: %v", ids(ranked))
	}

	// Determinism: repeated runs give the same order.
	for i := 0; i < 10; i++ {
		again := Rank(metricsFixture(), Query{})
		for j := range ranked {
			if again[j].TokenID != ranked[j].TokenID {
				t.Fatalf("run %d: order changed: %v vs %v", i, ids(again), ids(ranked))
			}
		}
	}
}

func TestRankRespectsLimit(t *testing.T) {
	ranked := Rank(metricsFixture(), Query{Limit: 2})
	assertOrder(t, ranked, "B", "A")

	big := make(map[string]domain.TokenMetrics)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("T%02d", i)
		big[id] = domain.TokenMetrics{TokenID: id, BuyVolume: float64(i)}
	}
	if got := len(Rank(big, Query{Limit: 100})); got != MaxLimit {
		t.Errorf("limit not capped at %d: got %d", MaxLimit, got)
	}
	if got := len(Rank(big, Query{})); got != DefaultLimit {
		t.Errorf("default limit not %d: got %d", DefaultLimit, got)
	}
}

func TestRankMarketCapFilter(t *testing.T) {
	q := Query{MarketCap: domain.NewRange(1_000_000, 100_000_000)}
	ranked := Rank(metricsFixture(), q)
	assertOrder(t, ranked, "B", "A")
}

func TestRankVolumeFilter(t *testing.T) {
	// Total volume: A=600 B=1700 C=700 D=500 E=60.
	q := Query{Volume: domain.NewRange(500, 1000)}
	ranked := Rank(metricsFixture(), q)
	assertOrder(t, ranked, "A", "D", "C")
}

func TestRankSortModes(t *testing.T) {
	cases := []struct {
		name string
		sort SortMode
		want []string
	}{
		{"net buy", SortNetBuy, []string{"D", "A", "B", "E", "C"}},
		{"net sell", SortNetSell, []string{"C", "E", "B", "A", "D"}},
		{"total volume", SortTotalVolume, []string{"B", "C", "A", "D", "E"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ranked := Rank(metricsFixture(), Query{Sort: tc.sort})
			assertOrder(t, ranked, tc.want...)
		})
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	metrics := metricsFixture()
	Rank(metrics, Query{Limit: 2})
	if len(metrics) != 5 {
		t.Errorf("input mutated: %d entries", len(metrics))
	}
}
