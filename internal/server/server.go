// Package server exposes the pipeline over HTTP: the SSE event stream for
// browsers, the top-movers JSON view, freeze control, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"token-pulse/internal/domain"
	"token-pulse/internal/fanout"
	"token-pulse/internal/observability"
	"token-pulse/internal/rank"
)

var (
	errBadSort  = errors.New("sort must be one of buy, netbuy, netsell, total")
	errBadLimit = errors.New("limit must be a positive integer")
)

// Server routes HTTP traffic to the bridge and ranking engine.
type Server struct {
	mux     *http.ServeMux
	bridge  *fanout.Bridge
	engine  *rank.Engine
	metrics *observability.Metrics
	logger  *log.Logger
}

// New creates the HTTP server. metrics may be nil.
func New(bridge *fanout.Bridge, engine *rank.Engine, metrics *observability.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		bridge:  bridge,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/stream/prices", s.handleStream)
	s.mux.HandleFunc("/api/movers", s.handleMovers)
	s.mux.HandleFunc("/api/freeze", s.handleFreeze)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleStream pushes every valid feed event to the client as one SSE
// frame. A client that stops reading overflows its bridge queue and is
// disconnected; the others are unaffected.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.bridge.Subscribe()
	if err != nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					s.logger.Printf("[server] stream terminated: %v", err)
				}
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// mover is the JSON shape served by /api/movers.
type mover struct {
	TokenID       string  `json:"token_id"`
	Name          string  `json:"name"`
	LastPrice     float64 `json:"last_price"`
	MarketCap     float64 `json:"market_cap"`
	BuyVolume     float64 `json:"buy_volume"`
	SellVolume    float64 `json:"sell_volume"`
	TotalVolume   float64 `json:"total_volume"`
	UniqueTraders int     `json:"unique_traders"`
	LastUpdateAt  int64   `json:"last_update_at"`
}

// handleMovers serves the ranked leaderboard. Without query parameters it
// returns the engine's visible ranking (honoring freeze); with any filter
// or sort parameter it computes an ad-hoc ranking.
func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var ranked []domain.TokenMetrics
	if r.URL.RawQuery == "" {
		ranked = s.engine.VisibleRanking()
	} else {
		q, err := parseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ranked = s.engine.RankWith(q)
	}

	movers := make([]mover, len(ranked))
	for i, m := range ranked {
		movers[i] = mover{
			TokenID:       m.TokenID,
			Name:          m.Name,
			LastPrice:     m.LastPrice,
			MarketCap:     m.MarketCap,
			BuyVolume:     m.BuyVolume,
			SellVolume:    m.SellVolume,
			TotalVolume:   m.TotalVolume(),
			UniqueTraders: m.TraderCount(),
			LastUpdateAt:  m.LastUpdateAt,
		}
	}

	writeJSON(w, movers)
}

// handleFreeze toggles or reports freeze state. The core exposes freeze as
// a plain state toggle; when the presentation layer decides to pin the
// list (hover, scroll, whatever) it POSTs here.
func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodGet:
		// fallthrough to the state report below
	case http.MethodPost:
		frozen, err := strconv.ParseBool(r.URL.Query().Get("frozen"))
		if err != nil {
			http.Error(w, "frozen must be true or false", http.StatusBadRequest)
			return
		}
		s.engine.SetFrozen(frozen)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]bool{"frozen": s.engine.Frozen()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// parseQuery builds a ranking query from URL parameters:
// minMarketCap, maxMarketCap, minVolume, maxVolume, sort, limit.
func parseQuery(r *http.Request) (rank.Query, error) {
	q := rank.Query{
		MarketCap: parseRange(r, "minMarketCap", "maxMarketCap"),
		Volume:    parseRange(r, "minVolume", "maxVolume"),
	}

	switch r.URL.Query().Get("sort") {
	case "", "buy":
		q.Sort = rank.SortBuyVolume
	case "netbuy":
		q.Sort = rank.SortNetBuy
	case "netsell":
		q.Sort = rank.SortNetSell
	case "total":
		q.Sort = rank.SortTotalVolume
	default:
		return rank.Query{}, errBadSort
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return rank.Query{}, errBadLimit
		}
		q.Limit = limit
	}

	return q.Normalize(), nil
}

// parseRange reads an inclusive numeric range; a missing bound is open.
func parseRange(r *http.Request, minKey, maxKey string) domain.RangeFilter {
	minRaw := r.URL.Query().Get(minKey)
	maxRaw := r.URL.Query().Get(maxKey)
	if minRaw == "" && maxRaw == "" {
		return domain.AnyRange()
	}

	min := math.Inf(-1)
	max := math.Inf(1)
	if v, err := strconv.ParseFloat(minRaw, 64); err == nil {
		min = v
	}
	if v, err := strconv.ParseFloat(maxRaw, 64); err == nil {
		max = v
	}
	return domain.NewRange(min, max)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
