package domain

// PriceUpdate is one swap event as delivered by the indexer feed.
// Field names mirror the upstream JSON contract exactly; the struct is
// never mutated after decoding.
type PriceUpdate struct {
	Name       string  `json:"name"`
	Pubkey     string  `json:"pubkey"`  // token mint address, stable identifier
	Price      float64 `json:"price"`
	MarketCap  float64 `json:"market_cap"`
	Timestamp  int64   `json:"timestamp"` // event time, upstream-assigned (ms)
	Slot       int64   `json:"slot"`      // chain sequence marker, not globally ordered across tokens
	SwapAmount float64 `json:"swap_amount"` // denominated in USD
	Owner      string  `json:"owner"`       // trader wallet address
	Signature  string  `json:"signature"`   // transaction signature, unique per event
	MultiHop   bool    `json:"multi_hop"`
	IsBuy      bool    `json:"is_buy"`
	IsPump     bool    `json:"is_pump"` // true when the swap executed on the origin venue
}
