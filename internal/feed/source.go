// Package feed provides ingestion clients for the upstream swap event
// stream: a websocket client talking directly to the indexer, plus Redis
// pub/sub and Kafka alternatives for deployments that front the indexer
// with a broker. All sources deliver the same JSON event frames.
package feed

import (
	"context"
	"fmt"
)

// RawFrame is one undecoded inbound message from an upstream source.
type RawFrame []byte

// Source provides raw event frames from an upstream feed.
type Source interface {
	// Subscribe opens the upstream connection, performs any subscription
	// handshake, and returns an unbounded sequence of raw frames. The
	// channel is closed when the source fails terminally or Close is
	// called; after close, Err reports the terminal error, if any.
	Subscribe(ctx context.Context) (<-chan RawFrame, error)

	// Err returns the terminal error that closed the frame channel,
	// or nil for a clean shutdown.
	Err() error

	// Close tears down the connection and releases resources.
	Close() error
}

// TransportError wraps an upstream or downstream connection failure.
// Recoverable failures are retried internally with backoff; a
// TransportError surfaces only once retries are exhausted.
type TransportError struct {
	Op       string // "dial", "read", "subscribe"
	Attempts int    // reconnect attempts made before giving up
	Err      error
}

func (e *TransportError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("feed: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("feed: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
