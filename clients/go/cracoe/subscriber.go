package cracoe

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 10 * time.Second

// Event is one change notification from the live bridge. Events carry row
// identifiers only; subscribers re-fetch authoritative state over HTTP.
type Event struct {
	Channel        string `json:"channel"`
	Table          string `json:"table"`
	Type           string `json:"type"`
	RowID          string `json:"row_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	Timestamp      int64  `json:"ts"`
}

// Event types.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// MessageChannel names the per-conversation message stream.
func MessageChannel(conversationID string) string {
	return "messages:" + conversationID
}

// ConversationChannel names a user's conversation-list stream.
func ConversationChannel(userID string) string {
	return "conversations:" + userID
}

// frame mirrors the server's WebSocket envelope.
type frame struct {
	Type  string `json:"type"`
	Chan  string `json:"channel,omitempty"`
	Event *Event `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

// command mirrors the server's channel management frame.
type command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// EventHandler receives events for one subscription.
type EventHandler func(Event)

// Subscription is one channel attachment on a Subscriber. Unsubscribing
// detaches the handler before the server is told: no new delivery starts
// after Unsubscribe returns. A delivery the read loop has already begun
// dispatching may still complete concurrently.
type Subscription struct {
	sub     *Subscriber
	channel string
	id      uint64
}

// Unsubscribe detaches the handler. If it was the channel's last handler the
// server-side subscription is released too. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.sub.unsubscribe(s)
}

// Subscriber is one WebSocket connection to the live bridge, multiplexing
// any number of channel subscriptions.
type Subscriber struct {
	ws *websocket.Conn

	mu       sync.Mutex
	nextID   uint64
	handlers map[string]map[uint64]EventHandler
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the client's live bridge. The session token rides a query
// parameter because WebSocket upgrades cannot carry headers from browsers,
// and the native client mirrors that contract.
func (c *Client) Dial(ctx context.Context) (*Subscriber, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws"
	if sess := c.Session.Current(); sess.SignedIn {
		wsURL += "?token=" + url.QueryEscape(sess.Token)
	}

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		ws:       ws,
		handlers: make(map[string]map[uint64]EventHandler),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.readLoop(readCtx)
	return s, nil
}

// Subscribe attaches fn to a channel. The first handler on a channel opens
// the server-side subscription; later handlers share it.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, fn EventHandler) (*Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	id := s.nextID
	s.nextID++
	first := s.handlers[channel] == nil
	if first {
		s.handlers[channel] = make(map[uint64]EventHandler)
	}
	s.handlers[channel][id] = fn
	s.mu.Unlock()

	if first {
		if err := wsjson.Write(ctx, s.ws, command{Action: "subscribe", Channel: channel}); err != nil {
			s.drop(channel, id)
			return nil, err
		}
	}
	return &Subscription{sub: s, channel: channel, id: id}, nil
}

func (s *Subscriber) unsubscribe(sub *Subscription) {
	last := s.drop(sub.channel, sub.id)
	if last {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = wsjson.Write(ctx, s.ws, command{Action: "unsubscribe", Channel: sub.channel})
	}
}

// drop removes one handler and reports whether the channel is now empty.
func (s *Subscriber) drop(channel string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.handlers[channel]
	if !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(s.handlers, channel)
		return !s.closed
	}
	return false
}

// Close tears the connection down and detaches every handler; the same
// in-flight dispatch caveat as Unsubscribe applies.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.handlers = make(map[string]map[uint64]EventHandler)
	s.mu.Unlock()

	s.cancel()
	err := s.ws.Close(websocket.StatusNormalClosure, "bye")
	<-s.done
	return err
}

// Done is closed when the connection's read loop exits, whether from Close
// or a network failure.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) readLoop(ctx context.Context) {
	defer close(s.done)

	for {
		var f frame
		if err := wsjson.Read(ctx, s.ws, &f); err != nil {
			return
		}
		if f.Type != "event" || f.Event == nil {
			continue
		}

		s.mu.Lock()
		fns := make([]EventHandler, 0, len(s.handlers[f.Chan]))
		for _, fn := range s.handlers[f.Chan] {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(*f.Event)
		}
	}
}
