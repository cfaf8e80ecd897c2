package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"indicator-enginev1/internal/model"
)

const (
	streamSendDepth = 256
	pingInterval    = 30 * time.Second
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
)

// Hub fans indicator results out to WebSocket subscribers. Slow clients
// never stall the engine: a full send queue drops the result for that
// client only.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*streamClient]bool
	latest  map[string][]byte // channel key → last envelope, for initial state
	seq     int64
}

// NewHub creates an empty stream hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[*streamClient]bool),
		latest:  make(map[string][]byte),
	}
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte

	// Optional filter: instrument keys from ?instruments=NSE:SBIN,NSE:TCS.
	// Empty means everything.
	instruments map[string]bool
}

func (c *streamClient) wants(r model.IndicatorResult) bool {
	if len(c.instruments) == 0 {
		return true
	}
	return c.instruments[r.Key()]
}

// Broadcast envelopes one result and sends it to every matching client.
// The envelope is hand-built; this runs on the result fan-out path.
func (h *Hub) Broadcast(r model.IndicatorResult) {
	data := r.JSON()
	channel := r.ChannelKey()

	h.mu.Lock()
	h.seq++
	seq := h.seq

	buf := make([]byte, 0, len(channel)+len(data)+64)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')

	h.latest[channel] = buf
	for c := range h.clients {
		if !c.wants(r) {
			continue
		}
		select {
		case c.send <- buf:
		default: // slow client — drop this result for them
		}
	}
	h.mu.Unlock()
}

// ClientCount reports connected stream subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = true
	// Initial state: latest envelope per channel the client cares about.
	for key, env := range h.latest {
		if len(c.instruments) == 0 || matchesAnyInstrument(key, c.instruments) {
			select {
			case c.send <- env:
			default:
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// matchesAnyInstrument checks an "ind:{name}:{exchange}:{symbol}" channel
// key against an instrument filter.
func matchesAnyInstrument(channelKey string, instruments map[string]bool) bool {
	for key := range instruments {
		if len(channelKey) >= len(key) && channelKey[len(channelKey)-len(key):] == key {
			return true
		}
	}
	return false
}

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleStream upgrades the connection and pumps envelopes until the peer
// goes away.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("stream upgrade failed", slog.Any("error", err))
		return
	}

	client := &streamClient{
		conn:        conn,
		send:        make(chan []byte, streamSendDepth),
		instruments: parseInstrumentFilter(c.Query("instruments")),
	}
	s.stream.add(client)
	s.log.Debug("stream client connected", slog.Int("clients", s.stream.ClientCount()))

	go client.writePump()
	client.readPump(s.stream)
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// parseInstrumentFilter splits "NSE:SBIN,NSE:TCS" into a lookup set.
func parseInstrumentFilter(q string) map[string]bool {
	if q == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, part := range strings.Split(q, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[strings.ToUpper(part)] = true
		}
	}
	return out
}
