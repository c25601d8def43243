package rank

import (
	"fmt"
	"testing"

	"token-pulse/internal/aggregate"
	"token-pulse/internal/domain"
)

func applyEvent(e *Engine, token, trader, signature string, amount float64, isBuy bool, ts int64) {
	e.Apply(&domain.PriceUpdate{
		Name:       token,
		Pubkey:     token,
		Price:      1,
		MarketCap:  1_000_000,
		Timestamp:  ts,
		Slot:       1,
		SwapAmount: amount,
		Owner:      trader,
		Signature:  signature,
		IsBuy:      isBuy,
		IsPump:     true,
	})
}

func newTestEngine() *Engine {
	return NewEngine(aggregate.NewStore(aggregate.Config{}), Query{})
}

func TestVisibleRankingTracksLiveState(t *testing.T) {
	e := newTestEngine()

	applyEvent(e, "A", "x", "sig-1", 100, true, 1000)
	applyEvent(e, "B", "y", "sig-2", 300, true, 1001)

	ranked := e.VisibleRanking()
	assertOrder(t, ranked, "B", "A")

	applyEvent(e, "A", "z", "sig-3", 500, true, 1002)
	assertOrder(t, e.VisibleRanking(), "A", "B")
}

func TestFrozenRankingIsStableAcrossApplies(t *testing.T) {
	e := newTestEngine()

	applyEvent(e, "A", "x", "sig-1", 100, true, 1000)
	applyEvent(e, "B", "y", "sig-2", 50, true, 1001)

	e.SetFrozen(true)
	if !e.Frozen() {
		t.Fatal("engine should report frozen")
	}

	first := e.VisibleRanking()

	// Background aggregation continues: B overtakes A.
	applyEvent(e, "B", "z", "sig-3", 900, true, 1002)

	second := e.VisibleRanking()
	if len(first) != len(second) {
		t.Fatalf("frozen ranking changed length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TokenID != second[i].TokenID || first[i].BuyVolume != second[i].BuyVolume {
			t.Fatalf("frozen ranking changed at %d: %+v vs %+v", i, first[i], second[i])
		}
	}

	// Release: all applied events become visible at once.
	e.SetFrozen(false)
	assertOrder(t, e.VisibleRanking(), "B", "A")
	if got := e.VisibleRanking()[0].BuyVolume; got != 950 {
		t.Errorf("post-release ranking missing frozen-period events: BuyVolume %v", got)
	}
}

func TestSetFrozenIsIdempotent(t *testing.T) {
	e := newTestEngine()
	applyEvent(e, "A", "x", "sig-1", 100, true, 1000)

	e.SetFrozen(true)
	captured := e.VisibleRanking()

	applyEvent(e, "A", "y", "sig-2", 100, true, 1001)

	// A second SetFrozen(true) must not re-capture.
	e.SetFrozen(true)
	again := e.VisibleRanking()
	if captured[0].BuyVolume != again[0].BuyVolume {
		t.Errorf("re-freeze recaptured: %v vs %v", captured[0].BuyVolume, again[0].BuyVolume)
	}

	e.SetFrozen(false)
	e.SetFrozen(false)
	if e.Frozen() {
		t.Error("engine should be unfrozen")
	}
}

func TestSetQueryAppliesOnLiveRanking(t *testing.T) {
	e := newTestEngine()
	for i := 0; i < 15; i++ {
		applyEvent(e, fmt.Sprintf("T%02d", i), "x", fmt.Sprintf("sig-%d", i), float64(10+i), true, int64(1000+i))
	}

	if got := len(e.VisibleRanking()); got != DefaultLimit {
		t.Fatalf("default limit: expected %d, got %d", DefaultLimit, got)
	}

	e.SetQuery(Query{Limit: 3})
	if got := len(e.VisibleRanking()); got != 3 {
		t.Errorf("after SetQuery: expected 3, got %d", got)
	}
}

func TestRankWithDoesNotDisturbFreeze(t *testing.T) {
	e := newTestEngine()
	applyEvent(e, "A", "x", "sig-1", 100, true, 1000)

	e.SetFrozen(true)
	adhoc := e.RankWith(Query{Limit: 1})
	if len(adhoc) != 1 {
		t.Fatalf("ad-hoc ranking expected 1 entry, got %d", len(adhoc))
	}
	if !e.Frozen() {
		t.Error("RankWith must not unfreeze the engine")
	}
}
