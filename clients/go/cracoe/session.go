package cracoe

import "sync"

// Session is the authenticated identity shared by every view. It is
// read-only to consumers; only the sign-in/out flow mutates it, through the
// SessionStore.
type Session struct {
	Token    string  `json:"token"`
	User     Profile `json:"user"`
	SignedIn bool    `json:"signed_in"`
}

// SessionStore holds the process-wide session value and notifies listeners
// when it changes. Consumers read a snapshot; they never mutate it.
type SessionStore struct {
	mu        sync.RWMutex
	current   Session
	nextID    uint64
	listeners map[uint64]func(Session)
}

// NewSessionStore creates an empty (signed-out) session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{listeners: make(map[uint64]func(Session))}
}

// Current returns a snapshot of the session.
func (s *SessionStore) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to run on every session change and returns a cancel
// function. fn is called with the new session value.
func (s *SessionStore) OnChange(fn func(Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// set replaces the session and notifies listeners. Only the auth flow calls
// this.
func (s *SessionStore) set(sess Session) {
	s.mu.Lock()
	s.current = sess
	fns := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}
