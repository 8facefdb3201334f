package cracoe

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Thread is the live view of one conversation: the ascending message log
// kept current by the update bridge. Messages arrive from three paths (the
// initial load, optimistic sends, and push events) and each append is
// deduplicated by message ID so no path can double an entry.
type Thread struct {
	client *Client
	conv   string
	self   string
	logger zerolog.Logger

	mu         sync.Mutex
	messages   []Message
	seen       map[string]struct{}
	generation uint64
	onChange   func([]Message)

	sub *Subscription
}

// OpenThread loads a conversation's messages, marks foreign unread messages
// read, and subscribes to its message stream. onChange is invoked with the
// full ascending log after every change; nil is allowed. The callback runs
// with the thread's lock held and must not call back into the thread.
func (c *Client) OpenThread(ctx context.Context, sub *Subscriber, conversationID string, onChange func([]Message)) (*Thread, error) {
	sess := c.Session.Current()
	if !sess.SignedIn {
		return nil, &APIError{Status: 401, Message: "not signed in"}
	}

	t := &Thread{
		client:   c,
		conv:     conversationID,
		self:     sess.User.ID,
		logger:   zerolog.Nop(),
		seen:     make(map[string]struct{}),
		onChange: onChange,
	}

	if err := t.Reload(ctx); err != nil {
		return nil, err
	}

	if _, err := c.MarkRead(ctx, conversationID); err != nil {
		// Read receipts are cosmetic next to the log itself.
		logger := t.log()
		logger.Warn().Err(err).Str("conversation", conversationID).Msg("mark read failed")
	}

	if sub != nil {
		s, err := sub.Subscribe(ctx, MessageChannel(conversationID), t.handleEvent)
		if err != nil {
			return nil, err
		}
		t.sub = s
	}
	return t, nil
}

// SetLogger replaces the thread's logger.
func (t *Thread) SetLogger(logger zerolog.Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

func (t *Thread) log() zerolog.Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logger
}

// Messages returns a copy of the current log, oldest first.
func (t *Thread) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Reload refetches the whole log. A reload that loses the race to a newer
// reload is discarded rather than clobbering its result.
func (t *Thread) Reload(ctx context.Context) error {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	msgs, err := t.client.ListMessages(ctx, t.conv)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return nil
	}
	t.messages = msgs
	t.seen = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		t.seen[m.ID] = struct{}{}
	}
	t.notifyLocked()
	t.mu.Unlock()
	return nil
}

// Send trims and appends a message. The server's copy lands in the log
// immediately; the push event for it later is a dedup no-op.
func (t *Thread) Send(ctx context.Context, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &APIError{Status: 400, Message: "content is required"}
	}

	msg, err := t.client.SendMessage(ctx, t.conv, content)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.append(*msg)
	t.mu.Unlock()
	return msg, nil
}

// handleEvent reacts to one push event: fetch the row by ID, append it, and
// mark it read if someone else sent it. Fetch failures are logged and the
// event dropped; the log heals on the next Reload.
func (t *Thread) handleEvent(ev Event) {
	if ev.Type != EventInsert || ev.RowID == "" {
		return
	}

	t.mu.Lock()
	if _, dup := t.seen[ev.RowID]; dup {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg, err := t.client.FetchMessage(ctx, t.conv, ev.RowID)
	if err != nil {
		logger := t.log()
		logger.Warn().Err(err).Str("message", ev.RowID).Msg("event fetch failed")
		return
	}

	t.mu.Lock()
	t.append(*msg)
	foreign := msg.SenderID != t.self
	t.mu.Unlock()

	if foreign {
		if _, err := t.client.MarkRead(ctx, t.conv); err != nil {
			logger := t.log()
			logger.Warn().Err(err).Str("conversation", t.conv).Msg("mark read failed")
		}
	}
}

// append inserts one message, ignoring IDs already present, and restores
// (created_at, id) order. Callers hold t.mu.
func (t *Thread) append(m Message) {
	if _, dup := t.seen[m.ID]; dup {
		return
	}
	t.seen[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	sort.SliceStable(t.messages, func(i, j int) bool {
		a, b := t.messages[i], t.messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	t.notifyLocked()
}

func (t *Thread) notifyLocked() {
	if t.onChange == nil {
		return
	}
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	t.onChange(out)
}

// Close detaches the thread from the message stream. No callback fires after
// Close returns.
func (t *Thread) Close() {
	if t.sub != nil {
		t.sub.Unsubscribe()
		t.sub = nil
	}
}
