package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisSource ingests swap events from the indexer's Redis pub/sub price
// channel. go-redis re-establishes the pub/sub connection internally, so
// the frame channel only closes on Close or when the subscription is torn
// down by the server.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  *log.Logger

	closed     atomic.Bool
	subscribed atomic.Bool
	sub        *redis.PubSub
	wg         sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewRedisSource creates a Redis pub/sub source.
func NewRedisSource(addr, password string, db int, channel string, logger *log.Logger) *RedisSource {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisSource{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
		logger:  logger,
	}
}

// Subscribe subscribes to the price channel and returns the frame stream.
func (s *RedisSource) Subscribe(ctx context.Context) (<-chan RawFrame, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("feed: source closed")
	}
	if s.subscribed.Swap(true) {
		return nil, fmt.Errorf("feed: source already subscribed")
	}

	sub := s.client.Subscribe(ctx, s.channel)
	// Force the subscription round-trip so a bad address fails here
	// rather than on first receive.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, &TransportError{Op: "subscribe", Err: err}
	}
	s.sub = sub

	frames := make(chan RawFrame, 1024)
	msgs := sub.Channel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(frames)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					if !s.closed.Load() {
						s.setErr(&TransportError{Op: "read", Err: fmt.Errorf("pubsub channel closed")})
					}
					return
				}
				select {
				case frames <- RawFrame(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Printf("[feed-redis] subscribed to channel %q", s.channel)
	return frames, nil
}

// Err returns the terminal error recorded when the frame channel closed.
func (s *RedisSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close tears down the subscription and the client.
func (s *RedisSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.sub != nil {
		s.sub.Close()
	}
	err := s.client.Close()
	s.wg.Wait()
	return err
}

func (s *RedisSource) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

var _ Source = (*RedisSource)(nil)
