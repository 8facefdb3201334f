package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
	sendBuffer   = 64
)

// Frame is the envelope written to WebSocket clients.
type Frame struct {
	Type  string `json:"type"` // "event", "subscribed", "unsubscribed", "error"
	Chan  string `json:"channel,omitempty"`
	Event *Event `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

// Conn is one WebSocket client attached to the hub. Channel subscriptions
// are keyed by name and released together when the connection is removed.
type Conn struct {
	UserID uuid.UUID

	ws   *websocket.Conn
	send chan Frame

	mu      sync.Mutex
	cancels map[string]func()

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks connected WebSocket clients and bridges them onto a Broker.
type Hub struct {
	broker *Broker
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates a hub that fans events from broker out to its connections.
func NewHub(broker *Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
	}
}

// Add registers a WebSocket connection for the given user and starts its
// write and keepalive loops.
func (h *Hub) Add(userID uuid.UUID, ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		UserID:  userID,
		ws:      ws,
		send:    make(chan Frame, sendBuffer),
		cancels: make(map[string]func()),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

// Remove cancels all of the connection's subscriptions and closes it. It
// returns the number of subscriptions released.
func (h *Hub) Remove(c *Conn) int {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	c.mu.Lock()
	released := len(c.cancels)
	for channel, cancel := range c.cancels {
		cancel()
		delete(c.cancels, channel)
	}
	c.mu.Unlock()

	c.cancel()
	_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	return released
}

// ConnCount returns the number of attached connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Subscribe attaches the connection to a broker channel. Subscribing to the
// same channel twice is a no-op, so a reconnecting client cannot register
// duplicate callbacks. Returns false for the no-op case.
func (h *Hub) Subscribe(c *Conn, channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cancels[channel]; ok {
		return false
	}
	c.cancels[channel] = h.broker.Subscribe(channel, func(ev Event) {
		c.enqueue(Frame{Type: "event", Chan: channel, Event: &ev})
	})
	return true
}

// Unsubscribe detaches the connection from a broker channel. The channel's
// callback never fires for this connection again. Returns false if the
// connection was not subscribed.
func (h *Hub) Unsubscribe(c *Conn, channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.cancels[channel]; ok {
		cancel()
		delete(c.cancels, channel)
		return true
	}
	return false
}

// Notify queues a control frame for the client.
func (c *Conn) Notify(f Frame) {
	c.enqueue(f)
}

// enqueue drops the frame if the client's buffer is full; events are wake-up
// signals and the client re-fetches, so a dropped frame costs one refresh.
func (c *Conn) enqueue(f Frame) {
	select {
	case <-c.ctx.Done():
	case c.send <- f:
	default:
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := wsjson.Write(writeCtx, c.ws, f)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *Conn) keepAliveLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
