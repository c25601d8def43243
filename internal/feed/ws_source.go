package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures websocket source behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// source gives up and surfaces a TransportError.
	MaxReconnectAttempts int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// FrameBuffer is capacity of the delivered frame channel.
	FrameBuffer int
}

// DefaultWSConfig returns default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		FrameBuffer:          1024,
	}
}

// subscribeRequest is the handshake sent after every (re)connect.
// Wildcard "*" requests updates for all tokens.
type subscribeRequest struct {
	Action string   `json:"action"`
	Mints  []string `json:"mints"`
}

// WSSource ingests swap events over a persistent websocket connection.
// After a successful dial it sends one subscription handshake, then reads
// frames until the connection drops. Drops are retried with exponential
// backoff up to MaxReconnectAttempts; each reconnect repeats the handshake.
type WSSource struct {
	endpoint string
	mints    []string
	config   WSConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	closed     atomic.Bool
	subscribed atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewWSSource creates a websocket source for the given feed endpoint.
// An empty mints slice subscribes to all tokens.
func NewWSSource(endpoint string, mints []string, config *WSConfig, logger *log.Logger) *WSSource {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if len(mints) == 0 {
		mints = []string{"*"}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSSource{
		endpoint: endpoint,
		mints:    mints,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Subscribe dials the endpoint, sends the subscription handshake and starts
// the read and ping loops. It may be called once per source.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan RawFrame, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("feed: source closed")
	}
	if s.subscribed.Swap(true) {
		return nil, fmt.Errorf("feed: source already subscribed")
	}

	if err := s.connect(ctx); err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	frames := make(chan RawFrame, s.config.FrameBuffer)

	s.wg.Add(2)
	go s.readLoop(frames)
	go s.pingLoop()

	return frames, nil
}

// Err returns the terminal error recorded when the frame channel closed.
func (s *WSSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close closes the connection and stops all loops.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *WSSource) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// connect dials the endpoint and performs the subscription handshake.
func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Mints: s.mints}); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// readLoop reads frames and forwards them downstream. On read failure it
// reconnects with exponential backoff; once MaxReconnectAttempts
// consecutive attempts fail, the loop records a TransportError and closes
// the frame channel.
func (s *WSSource) readLoop(frames chan<- RawFrame) {
	defer s.wg.Done()
	defer close(frames)

	attempts := 0
	delay := s.config.ReconnectDelay

	for {
		if s.closed.Load() {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Printf("[feed-ws] read error: %v", err)

			if !s.retryConnect(&attempts, &delay, err) {
				return
			}
			continue
		}

		// Successful read resets the backoff schedule.
		attempts = 0
		delay = s.config.ReconnectDelay

		select {
		case frames <- RawFrame(message):
		case <-s.done:
			return
		}
	}
}

// retryConnect runs the bounded reconnect loop. It returns false once
// attempts are exhausted or the source is shut down, after recording the
// terminal error.
func (s *WSSource) retryConnect(attempts *int, delay *time.Duration, cause error) bool {
	for *attempts < s.config.MaxReconnectAttempts {
		*attempts++

		select {
		case <-s.done:
			return false
		case <-time.After(*delay):
		}

		*delay *= 2
		if *delay > s.config.MaxReconnectDelay {
			*delay = s.config.MaxReconnectDelay
		}

		if err := s.reconnect(); err != nil {
			s.logger.Printf("[feed-ws] reconnect %d/%d failed: %v",
				*attempts, s.config.MaxReconnectAttempts, err)
			cause = err
			continue
		}

		s.logger.Printf("[feed-ws] reconnected after %d attempt(s)", *attempts)
		return true
	}

	s.setErr(&TransportError{Op: "read", Attempts: *attempts, Err: cause})
	return false
}

// reconnect replaces the dead connection and repeats the handshake.
func (s *WSSource) reconnect() error {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.connect(ctx)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader handles reconnect.
				}
			}
			s.connMu.Unlock()
		}
	}
}

var _ Source = (*WSSource)(nil)

// marshalSubscribe is used by tests and the feed generator to produce the
// exact handshake payload.
func marshalSubscribe(mints []string) []byte {
	b, _ := json.Marshal(subscribeRequest{Action: "subscribe", Mints: mints})
	return b
}
