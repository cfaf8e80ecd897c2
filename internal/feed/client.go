// Package feed implements the market-data transport collaborator: a
// reconnecting WebSocket client that authenticates, subscribes the
// configured instruments and streams decoded raw events into the engine.
//
// The engine core never blocks on this package; a full event channel drops
// the newest frame (the normalizer's monotone clock absorbs the gap).
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"indicator-enginev1/internal/model"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// Subscription names one instrument + mode pair to request from the feed.
type Subscription struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Mode     string `json:"mode"` // "ltp", "quote" or "depth"
}

// Config configures the feed client.
type Config struct {
	URL        string
	APIKey     string
	ClientCode string
	TOTPSecret string // optional; when set a fresh TOTP code is attached to auth
	Subs       []Subscription
}

// Client connects to the feed and pushes raw events into rawCh.
// Implements model.TickSource.
type Client struct {
	cfg       Config
	sessionID string

	// Optional hooks
	OnConnect   func()
	OnReconnect func()
	OnDropped   func()
}

var _ model.TickSource = (*Client)(nil)

// New creates a feed client with a fresh session identity.
func New(cfg Config) *Client {
	return &Client{
		cfg:       cfg,
		sessionID: uuid.NewString(),
	}
}

type authRequest struct {
	Type       string `json:"type"` // "auth"
	APIKey     string `json:"api_key"`
	ClientCode string `json:"client_code,omitempty"`
	TOTP       string `json:"totp,omitempty"`
	SessionID  string `json:"session_id"`
}

type subscribeRequest struct {
	Type  string         `json:"type"` // "subscribe"
	ReqID string         `json:"req_id"`
	Subs  []Subscription `json:"subs"`
}

// Start connects and streams events until ctx is cancelled. Connection
// drops trigger reconnection with exponential backoff; every (re)connect
// re-authenticates and re-subscribes the full instrument set.
func (c *Client) Start(ctx context.Context, rawCh chan<- model.RawEvent) error {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.runOnce(ctx, rawCh)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[feed] connection lost: %v, reconnecting in %v", err, backoff)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce performs one connect → auth → subscribe → read-loop cycle.
func (c *Client) runOnce(ctx context.Context, rawCh chan<- model.RawEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	if err := c.subscribe(conn); err != nil {
		return err
	}
	log.Printf("[feed] connected, %d subscriptions sent", len(c.cfg.Subs))
	if c.OnConnect != nil {
		c.OnConnect()
	}

	for {
		var raw model.RawEvent
		if err := conn.ReadJSON(&raw); err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		select {
		case rawCh <- raw:
		default:
			// Transport must never block the engine.
			if c.OnDropped != nil {
				c.OnDropped()
			}
		}
	}
}

// authenticate sends the auth frame, attaching a fresh TOTP code when a
// shared secret is configured.
func (c *Client) authenticate(conn *websocket.Conn) error {
	req := authRequest{
		Type:       "auth",
		APIKey:     c.cfg.APIKey,
		ClientCode: c.cfg.ClientCode,
		SessionID:  c.sessionID,
	}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("feed totp: %w", err)
		}
		req.TOTP = code
	}
	return c.writeJSON(conn, req)
}

// subscribe sends the full subscription set in one frame.
func (c *Client) subscribe(conn *websocket.Conn) error {
	if len(c.cfg.Subs) == 0 {
		return nil
	}
	return c.writeJSON(conn, subscribeRequest{
		Type:  "subscribe",
		ReqID: uuid.NewString(),
		Subs:  c.cfg.Subs,
	})
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("feed encode: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed write: %w", err)
	}
	return nil
}
