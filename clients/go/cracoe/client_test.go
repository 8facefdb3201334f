package cracoe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI is a minimal in-memory stand-in for the messaging service.
type fakeAPI struct {
	mu       sync.Mutex
	messages []Message
	marked   int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()

	api := &fakeAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResult{
			Token: "tok-1",
			User:  Profile{ID: "user-alice", Username: "alice"},
		})
	})
	mux.HandleFunc("/conversations/conv-1/messages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.mu.Lock()
			defer api.mu.Unlock()
			json.NewEncoder(w).Encode(messageList{Messages: api.messages})
		case http.MethodPost:
			var req struct {
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			api.mu.Lock()
			msg := Message{
				ID:             time.Now().UTC().Format("20060102150405.000000000"),
				ConversationID: "conv-1",
				SenderID:       "user-alice",
				Content:        req.Content,
				CreatedAt:      time.Now().UTC(),
			}
			api.messages = append(api.messages, msg)
			api.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(msg)
		}
	})
	mux.HandleFunc("/conversations/conv-1/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/conversations/conv-1/messages/")
		api.mu.Lock()
		defer api.mu.Unlock()
		for _, m := range api.messages {
			if m.ID == id {
				json.NewEncoder(w).Encode(m)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "message not found"})
	})
	mux.HandleFunc("/conversations/conv-1/read", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.marked++
		api.mu.Unlock()
		json.NewEncoder(w).Encode(markReadResult{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := &Client{
		BaseURL:    srv.URL,
		ConfigDir:  t.TempDir(),
		HTTPClient: srv.Client(),
		Session:    NewSessionStore(),
	}
	return api, c
}

// seed inserts a message directly, as if another client had written it.
func (api *fakeAPI) seed(id, sender, content string, at time.Time) Message {
	api.mu.Lock()
	defer api.mu.Unlock()
	msg := Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       sender,
		Content:        content,
		CreatedAt:      at,
	}
	api.messages = append(api.messages, msg)
	return msg
}

func signIn(t *testing.T, c *Client) {
	t.Helper()
	if _, err := c.SignIn(context.Background(), "alice", "password123"); err != nil {
		t.Fatal(err)
	}
}

func TestSessionStoreNotifiesOnChange(t *testing.T) {
	s := NewSessionStore()

	var got []Session
	cancel := s.OnChange(func(sess Session) { got = append(got, sess) })

	s.set(Session{Token: "t1", SignedIn: true})
	if len(got) != 1 || got[0].Token != "t1" {
		t.Fatalf("expected one notification with t1, got %v", got)
	}
	if !s.Current().SignedIn {
		t.Fatal("current session not updated")
	}

	cancel()
	s.set(Session{})
	if len(got) != 1 {
		t.Fatal("cancelled listener still fired")
	}
}

func TestSignInStoresSession(t *testing.T) {
	_, c := newFakeAPI(t)

	var changes int
	c.Session.OnChange(func(Session) { changes++ })

	user, err := c.SignIn(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatal(err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %s", user.Username)
	}

	sess := c.Session.Current()
	if !sess.SignedIn || sess.Token != "tok-1" {
		t.Fatalf("session not adopted: %+v", sess)
	}
	if changes != 1 {
		t.Fatalf("expected 1 session change, got %d", changes)
	}

	// A fresh client over the same config dir picks the session up from disk.
	reloaded := &Client{
		BaseURL:    c.BaseURL,
		ConfigDir:  c.ConfigDir,
		HTTPClient: c.HTTPClient,
		Session:    NewSessionStore(),
	}
	if err := reloaded.loadSession(); err != nil {
		t.Fatal(err)
	}
	if !reloaded.Session.Current().SignedIn {
		t.Fatal("persisted session not restored")
	}

	if err := c.SignOut(); err != nil {
		t.Fatal(err)
	}
	if c.Session.Current().SignedIn {
		t.Fatal("sign-out left session active")
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	_, c := newFakeAPI(t)
	signIn(t, c)

	_, err := c.FetchMessage(context.Background(), "conv-1", "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", apiErr.Status)
	}
	if apiErr.Message != "message not found" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestThreadLoadAndSend(t *testing.T) {
	api, c := newFakeAPI(t)
	signIn(t, c)

	base := time.Now().UTC().Add(-time.Minute)
	api.seed("m1", "user-bob", "hi alice", base)

	thread, err := c.OpenThread(context.Background(), nil, "conv-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	if got := thread.Messages(); len(got) != 1 || got[0].Content != "hi alice" {
		t.Fatalf("unexpected initial log: %v", got)
	}
	if api.marked == 0 {
		t.Fatal("opening the thread should mark it read")
	}

	sent, err := thread.Send(context.Background(), "  hi bob  ")
	if err != nil {
		t.Fatal(err)
	}
	if sent.Content != "hi bob" {
		t.Fatalf("content not trimmed: %q", sent.Content)
	}

	got := thread.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[1].ID != sent.ID {
		t.Fatal("optimistic append missing")
	}
}

func TestThreadSendRejectsEmpty(t *testing.T) {
	_, c := newFakeAPI(t)
	signIn(t, c)

	thread, err := c.OpenThread(context.Background(), nil, "conv-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	if _, err := thread.Send(context.Background(), "   "); err == nil {
		t.Fatal("expected error for whitespace-only content")
	}
	if got := thread.Messages(); len(got) != 0 {
		t.Fatalf("rejected send still appended: %d messages", len(got))
	}
}

func TestThreadDedupesPushAfterSend(t *testing.T) {
	_, c := newFakeAPI(t)
	signIn(t, c)

	thread, err := c.OpenThread(context.Background(), nil, "conv-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	sent, err := thread.Send(context.Background(), "only once")
	if err != nil {
		t.Fatal(err)
	}

	// The push event for our own send arrives after the optimistic append.
	thread.handleEvent(Event{Type: EventInsert, RowID: sent.ID, SenderID: "user-alice"})
	thread.handleEvent(Event{Type: EventInsert, RowID: sent.ID, SenderID: "user-alice"})

	copies := 0
	for _, m := range thread.Messages() {
		if m.ID == sent.ID {
			copies++
		}
	}
	if copies != 1 {
		t.Fatalf("expected exactly one copy, got %d", copies)
	}
}

func TestThreadAppendsForeignPush(t *testing.T) {
	api, c := newFakeAPI(t)
	signIn(t, c)

	var changes int
	thread, err := c.OpenThread(context.Background(), nil, "conv-1", func([]Message) { changes++ })
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	markedBefore := api.marked
	msg := api.seed("m-push", "user-bob", "pushed", time.Now().UTC())
	thread.handleEvent(Event{Type: EventInsert, RowID: msg.ID, SenderID: "user-bob"})

	got := thread.Messages()
	if len(got) != 1 || got[0].Content != "pushed" {
		t.Fatalf("push not fetched into log: %v", got)
	}
	if changes == 0 {
		t.Fatal("onChange never fired")
	}
	// A foreign arrival in an open thread is read immediately.
	if api.marked <= markedBefore {
		t.Fatal("foreign push should trigger mark read")
	}
}

func TestThreadOrdersOutOfOrderArrivals(t *testing.T) {
	api, c := newFakeAPI(t)
	signIn(t, c)

	thread, err := c.OpenThread(context.Background(), nil, "conv-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	base := time.Now().UTC()
	newer := api.seed("m2", "user-bob", "second", base.Add(time.Second))
	older := api.seed("m1", "user-bob", "first", base)

	// Events arrive newest first; the log still reads oldest first.
	thread.handleEvent(Event{Type: EventInsert, RowID: newer.ID, SenderID: "user-bob"})
	thread.handleEvent(Event{Type: EventInsert, RowID: older.ID, SenderID: "user-bob"})

	got := thread.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Content != "first" || got[1].Content != "second" {
		t.Fatalf("log out of order: %q then %q", got[0].Content, got[1].Content)
	}
}

func TestThreadIgnoresNonInsertEvents(t *testing.T) {
	_, c := newFakeAPI(t)
	signIn(t, c)

	thread, err := c.OpenThread(context.Background(), nil, "conv-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer thread.Close()

	thread.handleEvent(Event{Type: EventUpdate, RowID: "whatever"})
	thread.handleEvent(Event{Type: EventInsert})

	if got := thread.Messages(); len(got) != 0 {
		t.Fatalf("expected empty log, got %d messages", len(got))
	}
}
