package cracoe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Inbox is the live view of the caller's conversation list. Events on the
// conversation channel are wake-up signals only; every one triggers a full
// refetch so the list, ordering, and last-message summaries stay
// authoritative.
type Inbox struct {
	client *Client
	logger zerolog.Logger

	mu            sync.Mutex
	conversations []Conversation
	generation    uint64
	onChange      func([]Conversation)

	sub *Subscription
}

// OpenInbox loads the caller's conversations and subscribes to their
// conversation-list stream. onChange fires with the recency-ordered list
// after every refresh; nil is allowed. The callback runs with the inbox's
// lock held and must not call back into the inbox.
func (c *Client) OpenInbox(ctx context.Context, sub *Subscriber, onChange func([]Conversation)) (*Inbox, error) {
	sess := c.Session.Current()
	if !sess.SignedIn {
		return nil, &APIError{Status: 401, Message: "not signed in"}
	}

	in := &Inbox{
		client:   c,
		logger:   zerolog.Nop(),
		onChange: onChange,
	}

	if err := in.Reload(ctx); err != nil {
		return nil, err
	}

	if sub != nil {
		s, err := sub.Subscribe(ctx, ConversationChannel(sess.User.ID), in.handleEvent)
		if err != nil {
			return nil, err
		}
		in.sub = s
	}
	return in, nil
}

// SetLogger replaces the inbox's logger.
func (in *Inbox) SetLogger(logger zerolog.Logger) {
	in.mu.Lock()
	in.logger = logger
	in.mu.Unlock()
}

func (in *Inbox) log() zerolog.Logger {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.logger
}

// Conversations returns a copy of the current list, most recent first.
func (in *Inbox) Conversations() []Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Conversation, len(in.conversations))
	copy(out, in.conversations)
	return out
}

// Reload refetches the list. A stale reload loses to the newer one.
func (in *Inbox) Reload(ctx context.Context) error {
	in.mu.Lock()
	in.generation++
	gen := in.generation
	in.mu.Unlock()

	convs, err := in.client.ListConversations(ctx)
	if err != nil {
		return err
	}

	in.mu.Lock()
	if gen != in.generation {
		in.mu.Unlock()
		return nil
	}
	in.conversations = convs
	if in.onChange != nil {
		out := make([]Conversation, len(convs))
		copy(out, convs)
		in.onChange(out)
	}
	in.mu.Unlock()
	return nil
}

// handleEvent treats every event as a wake-up and refetches. A failed
// refresh is logged and the stale list kept; the next event heals it.
func (in *Inbox) handleEvent(Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := in.Reload(ctx); err != nil {
		logger := in.log()
		logger.Warn().Err(err).Msg("inbox refresh failed")
	}
}

// Close detaches the inbox from the conversation stream.
func (in *Inbox) Close() {
	if in.sub != nil {
		in.sub.Unsubscribe()
		in.sub = nil
	}
}
