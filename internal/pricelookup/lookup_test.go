package pricelookup

import (
	"context"
	"testing"
)

func TestUnknownSentinel(t *testing.T) {
	client := NewStatic(map[string]Quote{
		"mint-1:solana": {Price: 1.25, PriceChange24h: -3.1},
	})

	q, err := client.Lookup(context.Background(), "mint-1", "solana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Unknown() {
		t.Error("known token reported as unknown")
	}
	if q.Price != 1.25 {
		t.Errorf("price mismatch: %v", q.Price)
	}

	q, err = client.Lookup(context.Background(), "mint-missing", "solana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Unknown() {
		t.Error("missing token must yield the no-data sentinel")
	}
}

func TestZeroPriceIsSentinelNotValue(t *testing.T) {
	// A quote whose fields are all zero is indistinguishable from "no
	// data" on purpose; consumers treat both as absence.
	if !(Quote{}).Unknown() {
		t.Error("zero quote must be the sentinel")
	}
	if (Quote{Price: 0, PriceChange24h: 0.1}).Unknown() {
		t.Error("non-zero change is real data")
	}
}
