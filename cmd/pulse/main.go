// Package main runs the token-pulse service: it ingests the swap event
// feed, fans events out to browser clients over SSE, and serves the
// aggregated top-movers view.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-pulse/internal/aggregate"
	"token-pulse/internal/config"
	"token-pulse/internal/fanout"
	"token-pulse/internal/feed"
	"token-pulse/internal/observability"
	"token-pulse/internal/rank"
	"token-pulse/internal/server"
)

func main() {
	cfg := config.Load()

	// Flags override environment for the common knobs.
	listenAddr := flag.String("listen-addr", cfg.ListenAddr, "HTTP listen address")
	sourceKind := flag.String("source", cfg.SourceKind, "Upstream source: ws, redis or kafka")
	feedURL := flag.String("feed-url", cfg.FeedURL, "WebSocket feed endpoint")
	queueSize := flag.Int("client-queue", cfg.ClientQueueSize, "Per-client event queue capacity")
	storeCapacity := flag.Int("store-capacity", cfg.StoreCapacity, "Max tokens tracked before eviction")
	flag.Parse()

	logger := log.New(os.Stdout, "[pulse] ", log.LstdFlags)

	source, err := buildSource(cfg, *sourceKind, *feedURL)
	if err != nil {
		logger.Fatal(err)
	}
	defer source.Close()

	metrics := observability.NewMetrics("token_pulse")

	store := aggregate.NewStore(aggregate.Config{
		Capacity:    *storeCapacity,
		DedupWindow: cfg.DedupWindow,
	})
	engine := rank.NewEngine(store, rank.Query{Limit: rank.DefaultLimit})

	bridge := fanout.New(source, fanout.Options{
		QueueSize: *queueSize,
		OnEvent:   engine.Apply,
		Metrics:   metrics,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Keep the aggregation gauges current.
	go statsLoop(ctx, engine, metrics)

	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- bridge.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           server.New(bridge, engine, metrics, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpDone := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (source: %s)", *listenAddr, *sourceKind)
		httpDone <- httpServer.ListenAndServe()
	}()

	bridgeExited := false
	select {
	case <-ctx.Done():
		logger.Println("shutting down...")
	case err := <-bridgeDone:
		bridgeExited = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("bridge stopped: %v", err)
		}
	case err := <-httpDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	stop()
	if !bridgeExited {
		<-bridgeDone
	}
}

// buildSource constructs the configured upstream feed source.
func buildSource(cfg *config.Config, kind, feedURL string) (feed.Source, error) {
	logger := log.New(os.Stdout, "[feed] ", log.LstdFlags)

	switch kind {
	case config.SourceWS:
		wsCfg := feed.DefaultWSConfig()
		wsCfg.MaxReconnectAttempts = cfg.ReconnectMaxAttempts
		return feed.NewWSSource(feedURL, cfg.FeedMints, &wsCfg, logger), nil
	case config.SourceRedis:
		return feed.NewRedisSource(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel, logger), nil
	case config.SourceKafka:
		return feed.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// statsLoop mirrors the store counters into Prometheus gauges.
func statsLoop(ctx context.Context, engine *rank.Engine, metrics *observability.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			metrics.TokensTracked.Set(float64(engine.Tracked()))
			metrics.DuplicatesSkipped.Set(float64(stats.Duplicates))
			metrics.TokensEvicted.Set(float64(stats.Evicted))
		}
	}
}
