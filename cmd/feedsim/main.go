// cmd/feedsim — demo market-data feed server.
// Speaks the same WebSocket protocol as a real feed (auth frame, subscribe
// frame, raw event stream) so the engine can run end-to-end without broker
// credentials. Prices follow a small random walk; every Nth event for an
// instrument is a full quote and depth snapshot instead of a bare LTP.
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default ":8765")
//	FEEDSIM_SYMBOLS      — comma-separated EXCHANGE:SYMBOL pairs (default "NSE:SBIN,NSE:TCS")
//	FEEDSIM_INTERVAL_MS  — event interval milliseconds (default "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"indicator-enginev1/internal/model"
)

const quoteEvery = 5 // every 5th event per instrument: quote + depth

// instrument holds per-symbol simulation state.
type instrument struct {
	Exchange string
	Symbol   string
	Price    float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop event
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsHandler accepts the engine's handshake (auth + subscribe frames are
// read and acknowledged by silence, like the real feed) and then streams
// broadcast events to the client.
func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Read pump: drain handshake and any later control frames so
		// pings keep flowing and a closed peer is noticed.
		go func() {
			for {
				var frame map[string]any
				if err := conn.ReadJSON(&frame); err != nil {
					h.unregister(conn)
					return
				}
				if t, ok := frame["type"].(string); ok {
					log.Printf("[feedsim] %s frame from %s", t, r.RemoteAddr)
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a ±0.1% random walk, floored at 1.00.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	price += price * pct
	if price < 1.0 {
		price = 1.0
	}
	return price
}

func ltpEvent(in instrument) model.RawEvent {
	ltp := in.Price
	return model.RawEvent{
		Mode:        "ltp",
		Exchange:    in.Exchange,
		Symbol:      in.Symbol,
		LTP:         &ltp,
		TimestampMs: time.Now().UnixMilli(),
	}
}

func quoteEvent(in instrument) model.RawEvent {
	ltp := in.Price
	open := in.Price * 0.999
	high := in.Price * 1.002
	low := in.Price * 0.998
	cls := in.Price
	return model.RawEvent{
		Mode:        "quote",
		Exchange:    in.Exchange,
		Symbol:      in.Symbol,
		LTP:         &ltp,
		Open:        &open,
		High:        &high,
		Low:         &low,
		Close:       &cls,
		Volume:      int64(rand.Intn(10000) + 100),
		TimestampMs: time.Now().UnixMilli(),
	}
}

func depthEvent(in instrument) model.RawEvent {
	ev := model.RawEvent{
		Mode:        "depth",
		Exchange:    in.Exchange,
		Symbol:      in.Symbol,
		TimestampMs: time.Now().UnixMilli(),
	}
	tickSize := in.Price * 0.0001
	for i := 0; i < model.BookLevels; i++ {
		bidQty := int64(rand.Intn(900) + 100)
		askQty := int64(rand.Intn(900) + 100)
		ev.Bids = append(ev.Bids, model.RawLevel{
			Price: in.Price - tickSize*float64(i+1),
			Qty:   bidQty,
		})
		ev.Asks = append(ev.Asks, model.RawLevel{
			Price: in.Price + tickSize*float64(i+1),
			Qty:   askQty,
		})
		ev.TotalBuyQty += bidQty
		ev.TotalSellQty += askQty
	}
	return ev
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	n := 0
	for range ticker.C {
		n++
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)

			events := []model.RawEvent{ltpEvent(instruments[i])}
			if n%quoteEvery == 0 {
				events = append(events, quoteEvent(instruments[i]), depthEvent(instruments[i]))
			}
			for _, ev := range events {
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				h.broadcast(b)
			}
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":8765")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "NSE:SBIN,NSE:TCS")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no instruments configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] instruments: %+v, interval: %dms", instruments, intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/stream", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/stream)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
			continue
		}
		result = append(result, instrument{
			Exchange: strings.TrimSpace(seg[0]),
			Symbol:   strings.TrimSpace(seg[1]),
			Price:    1000.0 + rand.Float64()*500,
		})
	}
	return result
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
