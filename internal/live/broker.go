// Package live provides the change-notification layer: a channel-keyed
// broker that fans row-change events out to subscribers, and a WebSocket hub
// that delivers them to connected clients.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event types.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is one change notification. Events are wake-up signals: the row
// identifiers let subscribers re-fetch authoritative state, the event itself
// carries no row payload.
type Event struct {
	Channel        string `json:"channel"`
	Table          string `json:"table"`
	Type           string `json:"type"`
	RowID          string `json:"row_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	Timestamp      int64  `json:"ts"`
}

// MessageChannel names the per-conversation message stream.
func MessageChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("messages:%s", conversationID)
}

// ConversationChannel names a user's conversation-list stream. The channel is
// participant-scoped so clients only wake up for conversations they are in.
func ConversationChannel(userID uuid.UUID) string {
	return fmt.Sprintf("conversations:%s", userID)
}

// Publisher is the write side of the bridge. Handlers publish through it
// after a successful mutation.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler receives events for one subscription.
type Handler func(Event)

// Broker is an in-process fan-out keyed by channel name. Subscriptions have
// independent lifecycles; cancelling one never affects another.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]Handler)}
}

// Subscribe registers fn for events on channel and returns a cancel function.
// After cancel returns, fn is never invoked again.
func (b *Broker) Subscribe(channel string, fn Handler) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]Handler)
	}
	b.subs[channel][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[channel]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		}
	}
}

// Publish delivers ev to every subscriber of ev.Channel.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Channel]))
	for _, fn := range b.subs[ev.Channel] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// SubscriberCount returns the number of active subscriptions on channel.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
