package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
)

// KafkaSource ingests swap events from a Kafka topic, one JSON event per
// message. The reader handles broker reconnection and rebalancing
// internally; a closed reader or cancelled context ends the stream.
type KafkaSource struct {
	reader *kafka.Reader
	logger *log.Logger

	closed     atomic.Bool
	subscribed atomic.Bool
	wg         sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewKafkaSource creates a Kafka consumer source. A non-empty groupID
// enables consumer-group offset management.
func NewKafkaSource(brokers []string, topic, groupID string, logger *log.Logger) *KafkaSource {
	if logger == nil {
		logger = log.Default()
	}
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		logger: logger,
	}
}

// Subscribe starts consuming the topic and returns the frame stream.
func (s *KafkaSource) Subscribe(ctx context.Context) (<-chan RawFrame, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("feed: source closed")
	}
	if s.subscribed.Swap(true) {
		return nil, fmt.Errorf("feed: source already subscribed")
	}

	frames := make(chan RawFrame, 1024)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(frames)
		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if s.closed.Load() || errors.Is(err, context.Canceled) ||
					errors.Is(err, io.EOF) {
					return
				}
				s.setErr(&TransportError{Op: "read", Err: err})
				return
			}
			select {
			case frames <- RawFrame(msg.Value):
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Printf("[feed-kafka] consuming topic %q", s.reader.Config().Topic)
	return frames, nil
}

// Err returns the terminal error recorded when the frame channel closed.
func (s *KafkaSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops the reader; the in-flight ReadMessage returns io.EOF.
func (s *KafkaSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.reader.Close()
	s.wg.Wait()
	return err
}

func (s *KafkaSource) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

var _ Source = (*KafkaSource)(nil)
