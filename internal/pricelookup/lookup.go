// Package pricelookup defines the contract of the external price-fallback
// collaborator. The multi-source lookup client itself lives outside this
// system; consumers here only depend on the interface and the sentinel
// semantics.
package pricelookup

import "context"

// Quote is a price point for a token on a chain. The zero value is the
// defined "unknown" sentinel: consumers must treat it exactly like "no
// data yet", never as a valid zero price.
type Quote struct {
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChange24h"`
}

// Unknown reports whether the quote is the no-data sentinel.
func (q Quote) Unknown() bool {
	return q == Quote{}
}

// Client resolves a fallback quote for {address, chain}. Implementations
// return the zero Quote (not an error) when no source knows the token.
type Client interface {
	Lookup(ctx context.Context, address, chain string) (Quote, error)
}

// Static serves quotes from a fixed table; unknown keys yield the
// sentinel. Used in tests and as a placeholder wiring.
type Static struct {
	quotes map[string]Quote
}

// NewStatic builds a static client from an address+":"+chain keyed table.
func NewStatic(quotes map[string]Quote) *Static {
	if quotes == nil {
		quotes = make(map[string]Quote)
	}
	return &Static{quotes: quotes}
}

func (s *Static) Lookup(ctx context.Context, address, chain string) (Quote, error) {
	return s.quotes[address+":"+chain], nil
}

var _ Client = (*Static)(nil)
