package usersync

import "sync"

// Listener receives session states.
type Listener func(SessionState)

// Session publishes session state changes to listeners, in the manner of an
// identity provider's client SDK.
type Session struct {
	mu        sync.Mutex
	state     SessionState
	listeners map[int]Listener
	next      int
}

func NewSession() *Session {
	return &Session{listeners: map[int]Listener{}}
}

// Subscribe registers l and immediately delivers the current state to it.
// The returned func removes the listener.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = l
	state := s.state
	s.mu.Unlock()

	l(state)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Set replaces the current state and notifies every listener, including when
// the state is unchanged (a re-render).
func (s *Session) Set(state SessionState) {
	s.mu.Lock()
	s.state = state
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(state)
	}
}

// Attach subscribes w to s.
func (w *Watcher) Attach(s *Session) (detach func()) {
	return s.Subscribe(w.OnSessionChange)
}
