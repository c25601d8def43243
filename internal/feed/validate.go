package feed

import (
	"encoding/json"
	"fmt"
	"math"

	"token-pulse/internal/domain"
)

// ValidationError reports a malformed or schema-violating frame. It keeps
// the raw payload for diagnostics; callers log and drop, never propagate.
type ValidationError struct {
	Reason  string
	Payload []byte
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feed: invalid frame: %s", e.Reason)
}

// Validate decodes a raw frame into a PriceUpdate and checks it against
// the event schema. A single malformed frame must never terminate the
// stream: the only possible outcomes are a valid event or a
// *ValidationError.
func Validate(frame RawFrame) (*domain.PriceUpdate, error) {
	var ev domain.PriceUpdate
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("json: %v", err), Payload: frame}
	}

	switch {
	case ev.Pubkey == "":
		return nil, &ValidationError{Reason: "missing pubkey", Payload: frame}
	case ev.Signature == "":
		return nil, &ValidationError{Reason: "missing signature", Payload: frame}
	case ev.Owner == "":
		return nil, &ValidationError{Reason: "missing owner", Payload: frame}
	case ev.Timestamp <= 0:
		return nil, &ValidationError{Reason: "missing timestamp", Payload: frame}
	case ev.Slot <= 0:
		return nil, &ValidationError{Reason: "missing slot", Payload: frame}
	}

	if !validAmount(ev.Price) {
		return nil, &ValidationError{Reason: "invalid price", Payload: frame}
	}
	if !validAmount(ev.MarketCap) {
		return nil, &ValidationError{Reason: "invalid market_cap", Payload: frame}
	}
	if !validAmount(ev.SwapAmount) {
		return nil, &ValidationError{Reason: "invalid swap_amount", Payload: frame}
	}

	return &ev, nil
}

// validAmount accepts finite, non-negative values.
func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
