// Package flow holds the short-lived drafts behind ephemeral selection
// messages. Drafts are never authoritative: they only collect picks until
// the user confirms, and they expire after a period of inactivity.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrExpired is returned for a draft that timed out or never existed
var ErrExpired = errors.New("draft expired")

type entry[T any] struct {
	value   T
	touched time.Time
}

// Store keeps drafts keyed by a random ID that is embedded in component
// custom IDs. Every successful access extends the draft's lifetime.
type Store[T any] struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]*entry[T]
	now    func() time.Time
}

// NewStore creates a draft store with the given inactivity window
func NewStore[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{
		ttl:    ttl,
		drafts: make(map[string]*entry[T]),
		now:    time.Now,
	}
}

// Put stores a new draft and returns its ID
func (s *Store[T]) Put(value T) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[id] = &entry[T]{value: value, touched: s.now()}
	return id
}

// lookup returns a live entry. Must be called with mu held.
func (s *Store[T]) lookup(id string) (*entry[T], bool) {
	e, ok := s.drafts[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.touched) > s.ttl {
		delete(s.drafts, id)
		return nil, false
	}
	return e, true
}

// Get returns a copy of a draft and refreshes its lifetime
func (s *Store[T]) Get(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		var zero T
		return zero, ErrExpired
	}
	e.touched = s.now()
	return e.value, nil
}

// Update applies fn to a draft. When fn fails the draft is left unchanged.
func (s *Store[T]) Update(id string, fn func(*T) error) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		var zero T
		return zero, ErrExpired
	}
	next := e.value
	if err := fn(&next); err != nil {
		return e.value, err
	}
	e.value = next
	e.touched = s.now()
	return next, nil
}

// Take removes a draft and returns it
func (s *Store[T]) Take(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		var zero T
		return zero, ErrExpired
	}
	delete(s.drafts, id)
	return e.value, nil
}

// Len returns the number of stored drafts, expired or not
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

// Sweep drops expired drafts and returns how many were removed
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, e := range s.drafts {
		if now.Sub(e.touched) > s.ttl {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired drafts until ctx is cancelled
func (s *Store[T]) Run(ctx context.Context, name string) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("Expired drafts removed", "flow", name, "count", n)
			}
		}
	}
}
