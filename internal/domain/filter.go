package domain

// RangeFilter is an inclusive numeric range. The zero value means "any":
// every value passes until both bounds are set via NewRange.
type RangeFilter struct {
	Min     float64
	Max     float64
	Bounded bool
}

// AnyRange returns a filter that accepts every value.
func AnyRange() RangeFilter {
	return RangeFilter{}
}

// NewRange returns an inclusive [min, max] filter.
func NewRange(min, max float64) RangeFilter {
	return RangeFilter{Min: min, Max: max, Bounded: true}
}

// Contains reports whether v passes the filter.
func (f RangeFilter) Contains(v float64) bool {
	if !f.Bounded {
		return true
	}
	return v >= f.Min && v <= f.Max
}
