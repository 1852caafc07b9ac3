package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one connection subscribed to a tenant's occurrence events.
// Clients only listen; frames they send are discarded.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	tenantID string
	memberID string
	send     chan []byte
}

// NewClient ties conn to tenantID. memberID is informational and may be
// empty for anonymous displays.
func NewClient(hub *Hub, conn *ws.Conn, tenantID, memberID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		tenantID: tenantID,
		memberID: memberID,
		send:     make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and writes queued events until the peer goes
// away, ctx ends or the hub drops the client.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead consumes control frames so pings get their pongs, and
	// cancels ctx once the peer closes.
	ctx = c.conn.CloseRead(ctx)

	err := c.pump(ctx)
	c.hub.logger.Debug("websocket client gone", "tenant_id", c.tenantID, "member_id", c.memberID, "error", err)
	c.conn.Close(ws.StatusNormalClosure, "")
}

func (c *Client) pump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.withTimeout(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, ws.MessageText, msg)
			}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.withTimeout(ctx, c.conn.Ping); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fn(ctx)
}
