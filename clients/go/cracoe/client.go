// Package cracoe provides a Go client for the Cracoe direct-messaging
// service: conversation resolution, the per-conversation message log,
// read-state tracking, and the live update bridge.
package cracoe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Profile is the display projection of a user.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Conversation is the canonical record pairing two participants.
type Conversation struct {
	ID                  string    `json:"id"`
	Participant1ID      string    `json:"participant_1_id"`
	Participant2ID      string    `json:"participant_2_id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	LastMessageAt       time.Time `json:"last_message_at"`
	LastMessageContent  *string   `json:"last_message_content,omitempty"`
	LastMessageSenderID *string   `json:"last_message_sender_id,omitempty"`
	Participant1        *Profile  `json:"participant_1,omitempty"`
	Participant2        *Profile  `json:"participant_2,omitempty"`
}

// Other returns the participant that is not the given user.
func (c *Conversation) Other(userID string) *Profile {
	if c.Participant1ID == userID {
		return c.Participant2
	}
	return c.Participant1
}

// Message is one entry in a conversation's message log.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	Sender         *Profile   `json:"sender,omitempty"`
}

// APIError is a non-2xx response from the service. Callers can distinguish
// "call failed" from "zero rows": the latter is a nil error with an empty
// result.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client is a Cracoe messaging API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	HTTPClient *http.Client
	Session    *SessionStore
}

// NewClient creates a new client. Persisted credentials, if any, are loaded
// into the session.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CRACOE_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".cracoe")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Session:    NewSessionStore(),
	}

	_ = c.loadSession()
	return c
}

// loadSession loads a persisted session from disk.
func (c *Client) loadSession() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return err
	}
	if sess.Token == "" {
		return nil
	}
	sess.SignedIn = true
	c.Session.set(sess)
	return nil
}

// saveSession persists the session to disk.
func (c *Client) saveSession(sess Session) error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(sess, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request, attaching the bearer token when the
// session is signed in.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sess := c.Session.Current(); sess.SignedIn {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	return respBody, nil
}

// authPayload is the request body for signup and login.
type authPayload struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// authResult is the response from signup and login.
type authResult struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

// SignUp creates an account and signs the session in.
func (c *Client) SignUp(ctx context.Context, username, password, fullName string) (*Profile, error) {
	body, _ := json.Marshal(authPayload{Username: username, Password: password, FullName: fullName})
	respBody, err := c.doRequest(ctx, "POST", "/auth/signup", body)
	if err != nil {
		return nil, err
	}
	return c.adoptSession(respBody)
}

// SignIn authenticates and stores the session. Only this flow (and SignOut)
// mutates the process-wide session.
func (c *Client) SignIn(ctx context.Context, username, password string) (*Profile, error) {
	body, _ := json.Marshal(authPayload{Username: username, Password: password})
	respBody, err := c.doRequest(ctx, "POST", "/auth/login", body)
	if err != nil {
		return nil, err
	}
	return c.adoptSession(respBody)
}

func (c *Client) adoptSession(respBody []byte) (*Profile, error) {
	var resp authResult
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	sess := Session{Token: resp.Token, User: resp.User, SignedIn: true}
	c.Session.set(sess)
	if err := c.saveSession(sess); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// SignOut clears the session in memory and on disk.
func (c *Client) SignOut() error {
	c.Session.set(Session{})
	err := os.Remove(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Me returns the authenticated caller's identity.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	respBody, err := c.doRequest(ctx, "GET", "/me", nil)
	if err != nil {
		return nil, err
	}

	var resp Profile
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupUser returns a user's public profile by username.
func (c *Client) LookupUser(ctx context.Context, username string) (*Profile, error) {
	respBody, err := c.doRequest(ctx, "GET", "/users/"+username, nil)
	if err != nil {
		return nil, err
	}

	var resp Profile
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// resolveResult is the response from conversation resolution.
type resolveResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// ResolveConversation finds or creates the conversation between the caller
// and the given user and returns its ID. Calling it twice, even
// concurrently, yields the same ID.
func (c *Client) ResolveConversation(ctx context.Context, otherUserID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"other_user_id": otherUserID})
	respBody, err := c.doRequest(ctx, "POST", "/conversations/resolve", body)
	if err != nil {
		return "", err
	}

	var resp resolveResult
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// conversationList is the response from listing conversations.
type conversationList struct {
	Conversations []Conversation `json:"conversations"`
}

// ListConversations returns the caller's conversations ordered by last
// message time descending. An empty slice with a nil error means the caller
// has no conversations; an error means the call failed.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	respBody, err := c.doRequest(ctx, "GET", "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp conversationList
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// messageList is the response from listing messages.
type messageList struct {
	Messages []Message `json:"messages"`
}

// ListMessages returns a conversation's messages oldest first, sender
// projections attached.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	respBody, err := c.doRequest(ctx, "GET", "/conversations/"+conversationID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var resp messageList
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// FetchMessage retrieves one message by ID with its sender projection. The
// live bridge delivers row IDs only; this is the authoritative fetch.
func (c *Client) FetchMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	respBody, err := c.doRequest(ctx, "GET", "/conversations/"+conversationID+"/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage appends a message to the conversation. Content is trimmed
// before sending; rejecting empty-after-trim input is the caller's job. The
// returned message carries the server-assigned ID and timestamp.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*Message, error) {
	body, _ := json.Marshal(map[string]string{"content": strings.TrimSpace(content)})
	respBody, err := c.doRequest(ctx, "POST", "/conversations/"+conversationID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// markReadResult is the response from marking a conversation read.
type markReadResult struct {
	Marked int64 `json:"marked"`
}

// MarkRead transitions every unread message in the conversation not sent by
// the caller to read. Idempotent; returns how many messages changed state.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	respBody, err := c.doRequest(ctx, "POST", "/conversations/"+conversationID+"/read", nil)
	if err != nil {
		return 0, err
	}

	var resp markReadResult
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Marked, nil
}

// unreadResult is the response from the unread count endpoint.
type unreadResult struct {
	Count int64 `json:"count"`
}

// UnreadCount returns the number of unread messages addressed to the caller.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	respBody, err := c.doRequest(ctx, "GET", "/messages/unread-count", nil)
	if err != nil {
		return 0, err
	}

	var resp unreadResult
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
