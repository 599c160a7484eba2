package sessions

import (
	"sync"

	"github.com/jrsteele09/go-session-client/users"
)

// Listener is notified with the new current user; nil means signed out.
type Listener func(user *users.User)

// State holds the authenticated user for the lifetime of the process.
// It is owned by the auth service and handed to anything that needs to react to sign-in/out.
type State struct {
	mu        sync.RWMutex
	current   *users.User
	listeners map[uint64]Listener
	nextID    uint64
}

// NewState creates a state seeded with initial (which may be nil)
func NewState(initial *users.User) *State {
	return &State{
		current:   clone(initial),
		listeners: make(map[uint64]Listener),
	}
}

// Current returns a copy of the current user, or nil
func (s *State) Current() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// Set replaces the current user and notifies listeners
func (s *State) Set(user *users.User) {
	s.mu.Lock()
	s.current = clone(user)
	listeners := s.snapshot()
	s.mu.Unlock()

	notify(listeners, user)
}

// Clear signs the state out and notifies listeners
func (s *State) Clear() {
	s.Set(nil)
}

// Subscribe registers l and immediately calls it with the current value.
// The returned func removes the listener; calling it twice is safe.
func (s *State) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	current := clone(s.current)
	s.mu.Unlock()

	l(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// snapshot must be called with mu held
func (s *State) snapshot() []Listener {
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}

func notify(listeners []Listener, user *users.User) {
	for _, l := range listeners {
		l(clone(user))
	}
}

func clone(u *users.User) *users.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
