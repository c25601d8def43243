package rank

import (
	"sync"

	"token-pulse/internal/aggregate"
	"token-pulse/internal/domain"
)

// Engine owns an aggregation store and serves freeze-stable rankings from
// it. The store itself is unsynchronized; the engine's lock makes it a
// single logical owner, so Apply from the feed path and VisibleRanking
// from HTTP handlers can interleave safely.
type Engine struct {
	mu       sync.Mutex
	store    *aggregate.Store
	query    Query
	frozen   bool
	captured []domain.TokenMetrics
}

// NewEngine wraps a store with the given initial query.
func NewEngine(store *aggregate.Store, query Query) *Engine {
	return &Engine{
		store: store,
		query: query.Normalize(),
	}
}

// Apply folds one event into the underlying store. Aggregation continues
// while frozen; only the visible ordering is pinned.
func (e *Engine) Apply(ev *domain.PriceUpdate) {
	e.mu.Lock()
	e.store.Apply(ev)
	e.mu.Unlock()
}

// SetQuery replaces the active filters/sort/limit. While frozen, the
// captured view is kept as-is; the new query takes effect on release.
func (e *Engine) SetQuery(q Query) {
	e.mu.Lock()
	e.query = q.Normalize()
	e.mu.Unlock()
}

// Query returns the active query.
func (e *Engine) Query() Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// SetFrozen toggles freeze mode. Engaging it captures the current ranked
// output; releasing it discards the capture so the live ranking shows
// again, reflecting everything applied in between.
func (e *Engine) SetFrozen(frozen bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if frozen == e.frozen {
		return
	}
	if frozen {
		e.captured = Rank(e.store.Snapshot(), e.query)
	} else {
		e.captured = nil
	}
	e.frozen = frozen
}

// Frozen reports whether the visible ranking is pinned.
func (e *Engine) Frozen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frozen
}

// VisibleRanking returns the ranking the presentation layer should show:
// the pinned capture while frozen, the live computation otherwise.
func (e *Engine) VisibleRanking() []domain.TokenMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		out := make([]domain.TokenMetrics, len(e.captured))
		copy(out, e.captured)
		return out
	}
	return Rank(e.store.Snapshot(), e.query)
}

// RankWith computes a one-off ranking under an ad-hoc query without
// touching the engine's active query or freeze state.
func (e *Engine) RankWith(q Query) []domain.TokenMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Rank(e.store.Snapshot(), q)
}

// Stats returns the underlying store's counters.
func (e *Engine) Stats() aggregate.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Stats()
}

// Tracked returns the number of tokens currently tracked.
func (e *Engine) Tracked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Len()
}
