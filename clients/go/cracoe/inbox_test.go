package cracoe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestInboxReloadsOnEvent(t *testing.T) {
	var mu sync.Mutex
	convs := []Conversation{
		{ID: "conv-1", LastMessageAt: time.Now().UTC()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewEncoder(w).Encode(conversationList{Conversations: convs})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{
		BaseURL:    srv.URL,
		ConfigDir:  t.TempDir(),
		HTTPClient: srv.Client(),
		Session:    NewSessionStore(),
	}
	c.Session.set(Session{Token: "tok-1", User: Profile{ID: "user-alice"}, SignedIn: true})

	var changes int
	inbox, err := c.OpenInbox(context.Background(), nil, func([]Conversation) { changes++ })
	if err != nil {
		t.Fatal(err)
	}
	defer inbox.Close()

	if got := inbox.Conversations(); len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}

	// A new conversation lands server-side; the event is just a wake-up.
	mu.Lock()
	convs = append([]Conversation{{ID: "conv-2", LastMessageAt: time.Now().UTC()}}, convs...)
	mu.Unlock()
	inbox.handleEvent(Event{Table: "conversations", Type: EventInsert, RowID: "conv-2"})

	got := inbox.Conversations()
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations after refresh, got %d", len(got))
	}
	if got[0].ID != "conv-2" {
		t.Fatalf("expected conv-2 first, got %s", got[0].ID)
	}
	if changes < 2 {
		t.Fatalf("expected onChange on load and refresh, got %d", changes)
	}
}

func TestOpenInboxRequiresSession(t *testing.T) {
	c := &Client{
		BaseURL:    "http://localhost:0",
		HTTPClient: http.DefaultClient,
		Session:    NewSessionStore(),
	}

	_, err := c.OpenInbox(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error when signed out")
	}
}
