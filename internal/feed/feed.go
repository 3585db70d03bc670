// Package feed provides the WebSocket tick client feeding the alert
// engine. The expected JSON message format on the wire is identical to
// model.Tick:
//
//	{"token":"2885","exchange":"NSE","price":185005000,"qty":10,"tick_ts":"..."}
//
// The transport that produces these messages is an external concern;
// cmd/tickserver ships a simulated producer for local runs.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"stallwatch/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WS tick feed.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client connects to a plain-JSON WebSocket tick server and hands each
// tick to OnTick. Reconnects automatically with exponential backoff.
type Client struct {
	cfg Config

	// OnTick receives every parsed tick. Must be fast and non-blocking;
	// the main wiring pushes into an SPSC ring buffer.
	OnTick func(model.Tick)

	// Optional hooks.
	OnConnect   func()
	OnReconnect func()
}

// New creates a new Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// Start connects and streams ticks until ctx is cancelled. Reconnects
// automatically on disconnect.
func (c *Client) Start(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel.
func (c *Client) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)
	if c.OnConnect != nil {
		c.OnConnect()
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if tick.Token == "" {
			log.Printf("[feed] skipping tick with empty token")
			continue
		}
		if tick.TickTS.IsZero() {
			tick.TickTS = time.Now().UTC()
		}

		if c.OnTick != nil {
			c.OnTick(tick)
		}
	}
}
