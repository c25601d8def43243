// Package main runs a synthetic upstream feed for local development: a
// websocket server that accepts the subscription handshake and then emits
// randomized swap events at a configurable rate.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"token-pulse/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Mints  []string `json:"mints"`
}

// tokenSpec is one synthetic token's baseline.
type tokenSpec struct {
	mint      string
	name      string
	price     float64
	marketCap float64
}

func main() {
	addr := flag.String("addr", ":6969", "listen address")
	rate := flag.Duration("rate", 50*time.Millisecond, "delay between events")
	tokens := flag.Int("tokens", 25, "number of synthetic tokens")
	traders := flag.Int("traders", 200, "number of synthetic traders")
	flag.Parse()

	logger := log.New(os.Stdout, "[feedgen] ", log.LstdFlags)

	universe := makeUniverse(*tokens)
	wallets := makeWallets(*traders)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Wait for the subscription handshake before emitting anything.
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil || req.Action != "subscribe" {
			logger.Printf("bad handshake from %s: %v", r.RemoteAddr, err)
			return
		}
		logger.Printf("client %s subscribed to %v", r.RemoteAddr, req.Mints)

		ticker := time.NewTicker(*rate)
		defer ticker.Stop()

		slot := int64(1_000_000)
		for range ticker.C {
			slot += int64(rand.Intn(3)) + 1
			ev := randomEvent(universe, wallets, slot)
			payload, _ := json.Marshal(ev)
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Printf("client %s gone: %v", r.RemoteAddr, err)
				return
			}
		}
	})

	logger.Printf("emitting %d tokens on %s/ws every %v", *tokens, *addr, *rate)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Fatal(err)
	}
}

func makeUniverse(n int) []tokenSpec {
	universe := make([]tokenSpec, n)
	for i := range universe {
		universe[i] = tokenSpec{
			mint:      uuid.NewString(),
			name:      fmt.Sprintf("TOKEN%02d", i),
			price:     0.0001 * float64(1+rand.Intn(5000)),
			marketCap: float64(100_000 * (1 + rand.Intn(5000))),
		}
	}
	return universe
}

func makeWallets(n int) []string {
	wallets := make([]string, n)
	for i := range wallets {
		wallets[i] = uuid.NewString()
	}
	return wallets
}

// randomEvent produces one plausible swap: price drifts a few percent per
// trade and market cap follows it.
func randomEvent(universe []tokenSpec, wallets []string, slot int64) *domain.PriceUpdate {
	spec := &universe[rand.Intn(len(universe))]

	drift := 1 + (rand.Float64()-0.5)*0.06
	spec.price *= drift
	spec.marketCap *= drift

	return &domain.PriceUpdate{
		Name:       spec.name,
		Pubkey:     spec.mint,
		Price:      spec.price,
		MarketCap:  spec.marketCap,
		Timestamp:  time.Now().UnixMilli(),
		Slot:       slot,
		SwapAmount: 10 + rand.Float64()*2000,
		Owner:      wallets[rand.Intn(len(wallets))],
		Signature:  uuid.NewString(),
		MultiHop:   rand.Intn(10) == 0,
		IsBuy:      rand.Intn(100) < 55,
		IsPump:     rand.Intn(100) < 90,
	}
}
