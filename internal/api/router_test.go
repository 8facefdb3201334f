package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/config"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

type testServer struct {
	*httptest.Server
	broker *live.Broker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	cfg := &config.Config{
		Env:                "test",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		RateLimitPerMinute: 10000,
	}
	logger := zerolog.Nop()
	broker := live.NewBroker()
	hub := live.NewHub(broker, logger)

	srv := httptest.NewServer(NewRouter(cfg, logger, db, nil, broker, hub))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, broker: broker}
}

// doJSON performs a request and decodes the response body into out (when
// non-nil), returning the status code.
func (ts *testServer) doJSON(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

type authResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

func (ts *testServer) signup(t *testing.T, username string) authResponse {
	t.Helper()
	var resp authResponse
	status := ts.doJSON(t, "POST", "/auth/signup", "", map[string]string{
		"username": username,
		"password": "password123",
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d", username, status)
	}
	return resp
}

func TestSignupLoginMe(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.signup(t, "alice")
	if alice.Token == "" {
		t.Fatal("signup returned no token")
	}

	var login authResponse
	status := ts.doJSON(t, "POST", "/auth/login", "", map[string]string{
		"username": "alice",
		"password": "password123",
	}, &login)
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", status)
	}
	if login.User.ID != alice.User.ID {
		t.Fatal("login returned a different user")
	}

	var me models.Profile
	status = ts.doJSON(t, "GET", "/me", login.Token, nil, &me)
	if status != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", status)
	}
	if me.Username != "alice" {
		t.Fatalf("expected alice, got %s", me.Username)
	}
}

func TestSignupValidation(t *testing.T) {
	ts := newTestServer(t)

	// Too-short username.
	status := ts.doJSON(t, "POST", "/auth/signup", "", map[string]string{
		"username": "ab", "password": "password123",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for short username, got %d", status)
	}

	// Weak password.
	status = ts.doJSON(t, "POST", "/auth/signup", "", map[string]string{
		"username": "valid_name", "password": "short",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", status)
	}

	// Duplicate username.
	ts.signup(t, "taken")
	status = ts.doJSON(t, "POST", "/auth/signup", "", map[string]string{
		"username": "taken", "password": "password123",
	}, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", status)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice")

	status := ts.doJSON(t, "POST", "/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/me", "/conversations", "/messages/unread-count"} {
		status := ts.doJSON(t, "GET", path, "", nil, nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, status)
		}
	}
}

type resolveResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

func TestResolveConversationConverges(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")

	var first resolveResponse
	status := ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &first)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !first.Created {
		t.Fatal("first resolve should report created")
	}

	// Bob resolving from his side lands on the same conversation.
	var second resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", bob.Token,
		map[string]string{"other_user_id": alice.User.ID.String()}, &second)
	if second.Created {
		t.Fatal("second resolve should report found")
	}
	if first.ID != second.ID {
		t.Fatalf("resolves diverged: %s vs %s", first.ID, second.ID)
	}
}

func TestResolveConversationRejectsSelf(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")

	status := ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": alice.User.ID.String()}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestResolveConversationUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")

	status := ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": "5f0c33e1-32dd-4c2c-9e79-d21a53032c2e"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestMessageFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")

	var conv resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &conv)

	// Alice sends two messages; whitespace is trimmed.
	var sent models.Message
	status := ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", alice.Token,
		map[string]string{"content": "  hello bob  "}, &sent)
	if status != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d", status)
	}
	if sent.Content != "hello bob" {
		t.Fatalf("content not trimmed: %q", sent.Content)
	}
	if sent.Sender == nil || sent.Sender.Username != "alice" {
		t.Fatal("sender projection missing on send response")
	}
	ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", alice.Token,
		map[string]string{"content": "you there?"}, nil)

	// Bob lists: ascending order, both present.
	var list struct {
		Messages []models.Message `json:"messages"`
	}
	status = ts.doJSON(t, "GET", "/conversations/"+conv.ID+"/messages", bob.Token, nil, &list)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	if len(list.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list.Messages))
	}
	if list.Messages[0].Content != "hello bob" {
		t.Fatalf("list not ascending: first is %q", list.Messages[0].Content)
	}

	// Bob has 2 unread; alice has none.
	var unread struct {
		Count int64 `json:"count"`
	}
	ts.doJSON(t, "GET", "/messages/unread-count", bob.Token, nil, &unread)
	if unread.Count != 2 {
		t.Fatalf("expected 2 unread for bob, got %d", unread.Count)
	}
	ts.doJSON(t, "GET", "/messages/unread-count", alice.Token, nil, &unread)
	if unread.Count != 0 {
		t.Fatalf("expected 0 unread for alice, got %d", unread.Count)
	}

	// Bob marks read; twice is a no-op.
	var marked struct {
		Marked int64 `json:"marked"`
	}
	status = ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/read", bob.Token, nil, &marked)
	if status != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", status)
	}
	if marked.Marked != 2 {
		t.Fatalf("expected 2 marked, got %d", marked.Marked)
	}
	ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/read", bob.Token, nil, &marked)
	if marked.Marked != 0 {
		t.Fatalf("expected idempotent no-op, got %d", marked.Marked)
	}

	// The conversation list carries the last-message summary.
	var convList struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	ts.doJSON(t, "GET", "/conversations", bob.Token, nil, &convList)
	if len(convList.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convList.Conversations))
	}
	summary := convList.Conversations[0]
	if summary.LastMessageContent == nil || *summary.LastMessageContent != "you there?" {
		t.Fatalf("wrong last-message summary: %v", summary.LastMessageContent)
	}
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")

	var conv resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &conv)

	status := ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", alice.Token,
		map[string]string{"content": "   "}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for whitespace-only content, got %d", status)
	}
}

func TestNonParticipantForbidden(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")
	eve := ts.signup(t, "eve")

	var conv resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &conv)

	status := ts.doJSON(t, "GET", "/conversations/"+conv.ID+"/messages", eve.Token, nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("list: expected 403 for non-participant, got %d", status)
	}
	status = ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", eve.Token,
		map[string]string{"content": "hi"}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("send: expected 403 for non-participant, got %d", status)
	}
	status = ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/read", eve.Token, nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("read: expected 403 for non-participant, got %d", status)
	}
}

func TestFetchSingleMessage(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")

	var conv resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &conv)

	var sent models.Message
	ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", alice.Token,
		map[string]string{"content": "fetch me"}, &sent)

	var got models.Message
	status := ts.doJSON(t, "GET", fmt.Sprintf("/conversations/%s/messages/%s", conv.ID, sent.ID), bob.Token, nil, &got)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got.ID != sent.ID || got.Content != "fetch me" {
		t.Fatalf("fetched wrong message: %+v", got)
	}
	if got.Sender == nil || got.Sender.Username != "alice" {
		t.Fatal("sender projection missing")
	}
}

func TestSendPublishesEvents(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")
	bob := ts.signup(t, "bob")

	var conv resolveResponse
	ts.doJSON(t, "POST", "/conversations/resolve", alice.Token,
		map[string]string{"other_user_id": bob.User.ID.String()}, &conv)

	msgEvents := make(chan live.Event, 4)
	convEvents := make(chan live.Event, 4)
	defer ts.broker.Subscribe("messages:"+conv.ID, func(ev live.Event) { msgEvents <- ev })()
	defer ts.broker.Subscribe("conversations:"+bob.User.ID.String(), func(ev live.Event) { convEvents <- ev })()

	var sent models.Message
	ts.doJSON(t, "POST", "/conversations/"+conv.ID+"/messages", alice.Token,
		map[string]string{"content": "ping"}, &sent)

	select {
	case ev := <-msgEvents:
		if ev.Type != live.EventInsert || ev.RowID != sent.ID {
			t.Fatalf("unexpected message event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no message event published")
	}

	select {
	case ev := <-convEvents:
		if ev.RowID != conv.ID {
			t.Fatalf("unexpected conversation event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no conversation event published")
	}
}

func TestUserLookup(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice")

	var profile models.Profile
	status := ts.doJSON(t, "GET", "/users/alice", "", nil, &profile)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if profile.ID != alice.User.ID {
		t.Fatal("lookup returned wrong user")
	}

	status = ts.doJSON(t, "GET", "/users/nobody_here", "", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]interface{}
	status := ts.doJSON(t, "GET", "/health", "", nil, &health)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if health["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %v", health["status"])
	}
}
