// Package aggregate folds the swap event stream into per-token rolling
// metrics. The store is a plain in-process reducer: Apply is the sole
// mutator and Snapshot returns defensively-copied views. It is not safe
// for concurrent use; it is meant to be owned by a single consumption
// path (the rank.Engine wraps it with a lock for the server case).
package aggregate

import (
	"sort"

	"token-pulse/internal/domain"
)

const (
	// DefaultCapacity bounds the number of tokens tracked before the
	// oldest ones are evicted.
	DefaultCapacity = 10000
	// DefaultDedupWindow is how many recent signatures are remembered
	// for duplicate suppression.
	DefaultDedupWindow = 8192
)

// Config configures a Store. Zero values select the defaults.
type Config struct {
	Capacity    int
	DedupWindow int
}

// Stats carries the store's lifetime counters.
type Stats struct {
	Applied    uint64 // events folded into metrics
	Ignored    uint64 // valid events skipped (off-venue)
	Duplicates uint64 // events skipped by signature dedup
	Evicted    uint64 // tokens evicted by capacity pressure
}

// Store is the incremental per-token aggregation state.
type Store struct {
	capacity    int
	dedupWindow int

	tokens map[string]*domain.TokenMetrics

	// Recently-seen signatures, FIFO-bounded. A duplicate inside the
	// window is skipped before any field is touched, so a rejected
	// event is never partially applied.
	seen      map[string]struct{}
	seenOrder []string
	seenNext  int

	stats Stats
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	dedupWindow := cfg.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Store{
		capacity:    capacity,
		dedupWindow: dedupWindow,
		tokens:      make(map[string]*domain.TokenMetrics),
		seen:        make(map[string]struct{}, dedupWindow),
		seenOrder:   make([]string, dedupWindow),
	}
}

// Apply folds one event into the store. Only origin-venue events
// contribute to metrics; everything else is counted and ignored. Amortized
// O(1) per call.
func (s *Store) Apply(ev *domain.PriceUpdate) {
	if !ev.IsPump {
		s.stats.Ignored++
		return
	}
	if s.isDuplicate(ev.Signature) {
		s.stats.Duplicates++
		return
	}
	s.remember(ev.Signature)

	m, ok := s.tokens[ev.Pubkey]
	if !ok {
		m = &domain.TokenMetrics{
			TokenID:       ev.Pubkey,
			UniqueTraders: make(map[string]struct{}),
		}
		s.tokens[ev.Pubkey] = m
	}

	if ev.IsBuy {
		m.BuyVolume += ev.SwapAmount
	} else {
		m.SellVolume += ev.SwapAmount
	}
	m.UniqueTraders[ev.Owner] = struct{}{}

	// Last-write-wins on the point-in-time fields.
	m.Name = ev.Name
	m.LastPrice = ev.Price
	m.MarketCap = ev.MarketCap
	m.LastUpdateAt = ev.Timestamp

	s.stats.Applied++

	if len(s.tokens) > s.capacity {
		s.evict(ev.Pubkey)
	}
}

// Snapshot returns a deep copy of the current metrics keyed by token id.
// Callers can never mutate live state through it.
func (s *Store) Snapshot() map[string]domain.TokenMetrics {
	out := make(map[string]domain.TokenMetrics, len(s.tokens))
	for id, m := range s.tokens {
		out[id] = m.Clone()
	}
	return out
}

// Get returns a copy of one token's metrics.
func (s *Store) Get(tokenID string) (domain.TokenMetrics, bool) {
	m, ok := s.tokens[tokenID]
	if !ok {
		return domain.TokenMetrics{}, false
	}
	return m.Clone(), true
}

// Len returns the number of tokens currently tracked.
func (s *Store) Len() int {
	return len(s.tokens)
}

// Stats returns the lifetime counters.
func (s *Store) Stats() Stats {
	return s.stats
}

// isDuplicate reports whether the signature is inside the dedup window.
func (s *Store) isDuplicate(signature string) bool {
	_, ok := s.seen[signature]
	return ok
}

// remember records a signature, displacing the oldest one once the window
// is full.
func (s *Store) remember(signature string) {
	if old := s.seenOrder[s.seenNext]; old != "" {
		delete(s.seen, old)
	}
	s.seenOrder[s.seenNext] = signature
	s.seen[signature] = struct{}{}
	s.seenNext = (s.seenNext + 1) % s.dedupWindow
}

// evict removes the stalest tokens by LastUpdateAt, never touching keep
// (the token just applied). It trims a batch (1/16 of capacity, at least
// one) so the scan cost amortizes across many Apply calls instead of
// running on every insert at steady state.
func (s *Store) evict(keep string) {
	batch := s.capacity / 16
	if batch < 1 {
		batch = 1
	}

	type staleness struct {
		id           string
		lastUpdateAt int64
	}
	all := make([]staleness, 0, len(s.tokens))
	for id, m := range s.tokens {
		if id == keep {
			continue
		}
		all = append(all, staleness{id: id, lastUpdateAt: m.LastUpdateAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].lastUpdateAt != all[j].lastUpdateAt {
			return all[i].lastUpdateAt < all[j].lastUpdateAt
		}
		return all[i].id < all[j].id
	})

	for i := 0; i < batch && i < len(all); i++ {
		delete(s.tokens, all[i].id)
		s.stats.Evicted++
	}
}
