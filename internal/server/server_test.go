package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"token-pulse/internal/aggregate"
	"token-pulse/internal/domain"
	"token-pulse/internal/fanout"
	"token-pulse/internal/feed"
	"token-pulse/internal/observability"
	"token-pulse/internal/rank"
)

// stubSource feeds the bridge from an in-memory channel.
type stubSource struct {
	frames chan feed.RawFrame
	mu     sync.Mutex
	err    error
}

func newStubSource() *stubSource {
	return &stubSource{frames: make(chan feed.RawFrame, 64)}
}

func (s *stubSource) Subscribe(ctx context.Context) (<-chan feed.RawFrame, error) {
	return s.frames, nil
}

func (s *stubSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubSource) Close() error { return nil }

type fixture struct {
	source *stubSource
	engine *rank.Engine
	url    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	source := newStubSource()
	engine := rank.NewEngine(aggregate.NewStore(aggregate.Config{}), rank.Query{})
	metrics := observability.NewMetrics("test")
	bridge := fanout.New(source, fanout.Options{OnEvent: engine.Apply, Metrics: metrics})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bridge.Run(ctx)

	ts := httptest.NewServer(New(bridge, engine, metrics, nil))
	t.Cleanup(ts.Close)

	return &fixture{source: source, engine: engine, url: ts.URL}
}

func (f *fixture) apply(token, signature string, buyAmount float64) {
	f.engine.Apply(&domain.PriceUpdate{
		Name:       "name-" + token,
		Pubkey:     token,
		Price:      2,
		MarketCap:  1_000_000,
		Timestamp:  1700000000000,
		Slot:       5,
		SwapAmount: buyAmount,
		Owner:      "trader-1",
		Signature:  signature,
		IsBuy:      true,
		IsPump:     true,
	})
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	getJSON(t, f.url+"/healthz", &body)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMoversRankedAndLimited(t *testing.T) {
	f := newFixture(t)
	f.apply("AAA", "sig-1", 100)
	f.apply("BBB", "sig-2", 300)
	f.apply("CCC", "sig-3", 200)

	var movers []mover
	getJSON(t, f.url+"/api/movers?limit=2", &movers)

	require.Len(t, movers, 2)
	require.Equal(t, "BBB", movers[0].TokenID)
	require.Equal(t, "CCC", movers[1].TokenID)
	require.Equal(t, float64(300), movers[0].BuyVolume)
	require.Equal(t, 1, movers[0].UniqueTraders)
}

func TestMoversFilters(t *testing.T) {
	f := newFixture(t)
	f.apply("AAA", "sig-1", 100)
	f.apply("BBB", "sig-2", 300)

	var movers []mover
	getJSON(t, f.url+"/api/movers?minVolume=200&maxVolume=1000", &movers)
	require.Len(t, movers, 1)
	require.Equal(t, "BBB", movers[0].TokenID)
}

func TestMoversRejectsBadParams(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/api/movers?sort=bogus",
		"/api/movers?limit=-1",
		"/api/movers?limit=abc",
	} {
		resp, err := http.Get(f.url + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestFreezeEndpointPinsVisibleRanking(t *testing.T) {
	f := newFixture(t)
	f.apply("AAA", "sig-1", 100)

	resp, err := http.Post(f.url+"/api/freeze?frozen=true", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state map[string]bool
	getJSON(t, f.url+"/api/freeze", &state)
	require.True(t, state["frozen"])

	// New volume while frozen: visible ranking must not move.
	f.apply("BBB", "sig-2", 900)

	var movers []mover
	getJSON(t, f.url+"/api/movers", &movers)
	require.Len(t, movers, 1)
	require.Equal(t, "AAA", movers[0].TokenID)

	resp, err = http.Post(f.url+"/api/freeze?frozen=false", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	getJSON(t, f.url+"/api/movers", &movers)
	require.Len(t, movers, 2)
	require.Equal(t, "BBB", movers[0].TokenID)
}

func TestSSEStreamDeliversEventFrames(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/stream/prices", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	// The handler subscribes after the request reaches it; keep pushing
	// until a frame comes through (events before registration are lost by
	// design).
	pushCtx, stopPushing := context.WithCancel(ctx)
	defer stopPushing()
	go func() {
		payload, _ := json.Marshal(&domain.PriceUpdate{
			Name: "SAMO", Pubkey: "mint-sse", Price: 1, MarketCap: 1000,
			Timestamp: 1700000000000, Slot: 9, SwapAmount: 42,
			Owner: "trader", Signature: "sig-sse", IsBuy: true, IsPump: true,
		})
		for {
			select {
			case <-pushCtx.Done():
				return
			case f.source.frames <- feed.RawFrame(payload):
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.PriceUpdate
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		require.Equal(t, "mint-sse", ev.Pubkey)
		require.Equal(t, float64(42), ev.SwapAmount)
		return
	}
	t.Fatalf("no SSE data frame received: %v", scanner.Err())
}

func TestMoversDistinctSignaturesAccumulate(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.apply("AAA", fmt.Sprintf("sig-%d", i), 10)
	}
	// Replay of an already-seen signature must not change the total.
	f.apply("AAA", "sig-0", 10)

	var movers []mover
	getJSON(t, f.url+"/api/movers", &movers)
	require.Len(t, movers, 1)
	require.Equal(t, float64(50), movers[0].BuyVolume)
}
