// Package ws adapts gorilla websocket connections to the realtime.Conn contract.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/estatehub/realtime/internal/domain"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send once the client has been closed.
var ErrClosed = errors.New("connection closed")

const maxMessageSize = 4096

// Options tunes a single client.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer < 1 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

// Client owns one websocket connection. Outgoing frames are queued on a bounded
// buffer and written by a single pump goroutine.
type Client struct {
	id   string
	conn *websocket.Conn
	opts Options
	log  *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewClient(id string, conn *websocket.Conn, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Client{
		id:   id,
		conn: conn,
		opts: opts,
		log:  log,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking. A closed client or a full buffer is a transport error.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("send to %s: %w: %w", c.id, domain.ErrTransport, ErrClosed)
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send to %s: %w: send buffer full", c.id, domain.ErrTransport)
	}
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close sends a close frame and releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Run starts the write pump and reads inbound messages into handle until the peer
// goes away, a read fails, or ctx is cancelled. The client is closed on return.
func (c *Client) Run(ctx context.Context, handle func(msg []byte)) error {
	defer c.Close()
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	pongWait := c.opts.PingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return fmt.Errorf("read %s: %w: %w", c.id, domain.ErrTransport, err)
			}
			return nil
		}
		handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", "conn_id", c.id, "err", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping failed", "conn_id", c.id, "err", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// NewUpgrader returns an upgrader that accepts browser origins listed in allowedOrigins.
// "*" accepts any origin; requests without an Origin header are always accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}
