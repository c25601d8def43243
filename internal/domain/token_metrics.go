package domain

// TokenMetrics holds the rolling trading metrics for a single token.
// One instance exists per token; it is created on the first event for that
// token and updated on every subsequent one.
type TokenMetrics struct {
	TokenID      string
	Name         string
	LastPrice    float64
	LastUpdateAt int64 // timestamp of the most recent applied event (ms)
	MarketCap    float64

	// BuyVolume and SellVolume are monotonically non-decreasing sums of
	// swap amounts partitioned by event side.
	BuyVolume  float64
	SellVolume float64

	// UniqueTraders is the growing union of trader addresses seen.
	UniqueTraders map[string]struct{}
}

// TotalVolume returns combined buy and sell volume.
func (m *TokenMetrics) TotalVolume() float64 {
	return m.BuyVolume + m.SellVolume
}

// TraderCount returns the number of distinct traders seen.
func (m *TokenMetrics) TraderCount() int {
	return len(m.UniqueTraders)
}

// Clone returns a deep copy, including the trader set. Used by snapshot
// paths so callers can never mutate live state.
func (m *TokenMetrics) Clone() TokenMetrics {
	out := *m
	out.UniqueTraders = make(map[string]struct{}, len(m.UniqueTraders))
	for t := range m.UniqueTraders {
		out.UniqueTraders[t] = struct{}{}
	}
	return out
}
