// Package websocket is the persistent transport for the realtime layer.
// WebSockets are long-lived two-way connections: the client sends small JSON frames
// (authenticate, join_chat, typing_start, ...) and the server pushes chat events back the
// moment they happen. Everything about who receives what lives in the realtime package;
// this package only moves frames between the socket and the realtime.Hub.
package websocket

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trentd187/chat-relay/internal/realtime"
)

// Frame opcodes used by the pumps.
const (
	textMessage  = fiberws.TextMessage
	closeMessage = fiberws.CloseMessage
	pingMessage  = fiberws.PingMessage
)

// Config tunes one connection's timers and buffers.
type Config struct {
	SendQueue      int           // Outbound events buffered per connection before Send reports a full queue
	WriteWait      time.Duration // Time allowed to write one frame
	PongWait       time.Duration // Time allowed between pongs before the peer counts as dead
	PingPeriod     time.Duration // How often we ping; must be shorter than PongWait
	MaxMessageSize int64         // Largest inbound frame we accept
}

// DefaultConfig returns the timers used in production.
func DefaultConfig() Config {
	return Config{
		SendQueue:      64,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 16 * 1024,
	}
}

// wireConn is the part of a websocket connection the pumps use.
// *websocket.Conn from gofiber/contrib satisfies it; tests provide a fake.
type wireConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one connected socket. It implements realtime.Conn, so the realtime layer
// can register it as a user's connection of record and route events to it.
type Client struct {
	id   realtime.ConnID
	conn wireConn
	cfg  Config
	log  zerolog.Logger

	// send is the FIFO of events waiting for the write pump. Its capacity is the
	// connection's backpressure limit.
	send chan realtime.Event

	// mu guards closed and the close of send, so Send never writes to a closed channel.
	mu     sync.Mutex
	closed bool
}

func newClient(conn wireConn, cfg Config, log zerolog.Logger) *Client {
	id := realtime.ConnID(uuid.NewString())
	return &Client{
		id:   id,
		conn: conn,
		cfg:  cfg,
		log:  log.With().Str("conn_id", string(id)).Logger(),
		send: make(chan realtime.Event, cfg.SendQueue),
	}
}

// ID implements realtime.Conn.
func (c *Client) ID() realtime.ConnID { return c.id }

// Send implements realtime.Conn. It never blocks: a slow reader gets
// ErrSendQueueFull instead of stalling whoever is broadcasting.
func (c *Client) Send(ev realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return realtime.ErrConnClosed
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return realtime.ErrSendQueueFull
	}
}

// Close stops accepting events. Anything already queued is still written, then the
// write pump sends a close frame. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue onto the socket and pings the peer on a timer.
// It is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Best-effort; the read pump notices and exits
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.log.Debug().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// Close() was called and the queue is drained
				_ = c.conn.WriteMessage(closeMessage, []byte{})
				return
			}

			frame, err := json.Marshal(ev)
			if err != nil {
				// One bad payload must not take the connection down
				c.log.Error().Err(err).Str("event", ev.Name).Msg("failed to encode event")
				continue
			}
			if err := c.conn.WriteMessage(textMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(pingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump hands every inbound frame to handle until the socket fails or closes.
// handle runs on this goroutine, so frames from one client are processed in order.
func (c *Client) readPump(handle func(realtime.Inbound), onBadFrame func(error)) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		return err
	}
	// Every pong proves the peer is alive, so push the deadline out again
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		in, err := decodeFrame(raw)
		if err != nil {
			onBadFrame(err)
			continue
		}
		handle(in)
	}
}
