// Package fanout decouples one upstream feed subscription from many
// independently-paced downstream consumers. Each consumer gets a bounded
// queue; a consumer that cannot keep up is disconnected so it can never
// block the upstream reader or its peers (disconnect-on-overflow policy).
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"token-pulse/internal/domain"
	"token-pulse/internal/feed"
	"token-pulse/internal/observability"
)

var (
	// ErrSlowConsumer terminates a subscription whose queue overflowed.
	ErrSlowConsumer = errors.New("fanout: subscriber queue overflow")
	// ErrUpstreamClosed terminates all subscriptions when the upstream
	// feed is gone for good.
	ErrUpstreamClosed = errors.New("fanout: upstream feed terminated")
	// ErrBridgeClosed is returned by Subscribe after the bridge stopped.
	ErrBridgeClosed = errors.New("fanout: bridge closed")
)

// DefaultQueueSize is the per-subscriber buffer when Options leaves it zero.
const DefaultQueueSize = 256

// Options configures a Bridge.
type Options struct {
	// QueueSize is the bounded per-subscriber buffer capacity.
	QueueSize int
	// OnEvent, when set, is invoked with every validated event from the
	// upstream reader goroutine, before fanout. Used to feed the
	// server-side aggregation store; the callback owns its own
	// synchronization.
	OnEvent func(*domain.PriceUpdate)
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// Bridge maintains exactly one upstream subscription for a logical channel
// and forwards every valid event to all registered subscribers. Transient
// upstream failures are retried by the source itself (bounded backoff);
// once the source gives up, the bridge propagates a terminal error to
// every subscriber.
type Bridge struct {
	source    feed.Source
	queueSize int
	onEvent   func(*domain.PriceUpdate)
	metrics   *observability.Metrics
	logger    *log.Logger

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	termErr error
}

// New creates a bridge over the given source. Run must be called to start
// forwarding.
func New(source feed.Source, opts Options) *Bridge {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		source:    source,
		queueSize: queueSize,
		onEvent:   opts.OnEvent,
		metrics:   opts.Metrics,
		logger:    logger,
		subs:      make(map[uint64]*Subscription),
	}
}

// Run subscribes upstream and forwards events until the context is
// cancelled or the source fails terminally. On return, every subscriber
// has been terminated; a dead upstream never silently stalls downstream
// streams.
func (b *Bridge) Run(ctx context.Context) error {
	frames, err := b.source.Subscribe(ctx)
	if err != nil {
		b.shutdown(err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			b.shutdown(ErrUpstreamClosed)
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				termErr := b.source.Err()
				if termErr == nil {
					termErr = ErrUpstreamClosed
				}
				b.logger.Printf("[fanout] upstream closed: %v", termErr)
				b.shutdown(termErr)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return termErr
			}
			b.handleFrame(frame)
		}
	}
}

// handleFrame validates one frame and, on success, fans it out. A
// malformed frame is logged and dropped; it never terminates the stream.
func (b *Bridge) handleFrame(frame feed.RawFrame) {
	if b.metrics != nil {
		b.metrics.FramesReceived.Inc()
	}

	ev, err := feed.Validate(frame)
	if err != nil {
		if b.metrics != nil {
			b.metrics.ValidationErrors.Inc()
		}
		b.logger.Printf("[fanout] dropping frame: %v", err)
		return
	}
	if b.metrics != nil {
		b.metrics.EventsValidated.Inc()
	}

	if b.onEvent != nil {
		b.onEvent(ev)
	}

	// Re-marshal so downstream always sees schema-clean JSON regardless
	// of upstream formatting.
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Printf("[fanout] marshal event: %v", err)
		return
	}

	b.broadcast(payload)
}

// broadcast pushes one payload to every registered subscription. The
// subscriber map is snapshotted under the lock and never iterated while
// mutated. A full queue disconnects that subscriber only.
func (b *Bridge) broadcast(payload []byte) {
	start := time.Now()

	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		if sub.push(payload) {
			if b.metrics != nil {
				b.metrics.EventsBroadcast.Inc()
			}
			continue
		}

		// Queue overflow: protect the other consumers by dropping this one.
		b.unregister(sub.id)
		sub.terminate(ErrSlowConsumer)
		if b.metrics != nil {
			b.metrics.SlowConsumerDisconnects.Inc()
		}
		b.logger.Printf("[fanout] disconnected slow subscriber %d", sub.id)
	}

	if b.metrics != nil {
		b.metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
	}
}

// Subscribe registers a new downstream consumer with its own bounded queue.
func (b *Bridge) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		if b.termErr != nil {
			return nil, b.termErr
		}
		return nil, ErrBridgeClosed
	}

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		bridge: b,
		ch:     make(chan []byte, b.queueSize),
	}
	b.subs[sub.id] = sub

	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subs)))
	}
	return sub, nil
}

// unregister removes a subscription and releases its slot.
func (b *Bridge) unregister(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subs)))
	}
	b.mu.Unlock()
}

// shutdown terminates every subscription with the given error and rejects
// future Subscribe calls.
func (b *Bridge) shutdown(termErr error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.termErr = termErr
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*Subscription)
	if b.metrics != nil {
		b.metrics.Subscribers.Set(0)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.terminate(termErr)
	}
}

// Subscription is one downstream consumer's bounded event queue.
type Subscription struct {
	id     uint64
	bridge *Bridge
	ch     chan []byte

	mu     sync.Mutex
	closed bool
	err    error
}

// Events returns the subscriber's event stream. The channel is closed when
// the subscription terminates; Err then reports why.
func (s *Subscription) Events() <-chan []byte {
	return s.ch
}

// Err returns the terminal error, if any: ErrSlowConsumer, the upstream's
// transport error, or nil after a local Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unregisters the subscription and releases its queue immediately.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.bridge.unregister(s.id)
	s.terminate(nil)
}

// push enqueues a payload without blocking. It reports false when the
// queue is full. Sends are serialized with terminate via the mutex so a
// payload is never written to a closed channel.
func (s *Subscription) push(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

// terminate marks the subscription dead and closes the event channel.
func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
