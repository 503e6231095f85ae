// Package tokenstore implements an in-process keyed map with per-entry expiry,
// used for one-time codes and short-lived follow-up tokens.
package tokenstore

import (
	"sync"
	"time"
)

type entry[T any] struct {
	payload   T
	expiresAt time.Time
}

// Store is a mutex-guarded map of key -> {payload, expiry}. Expired entries are
// evicted lazily by whichever Get or Put observes them; there is no sweeper.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	now     func() time.Time
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithClock overrides the time source.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// New constructs an empty store.
func New[T any](opts ...Option[T]) *Store[T] {
	s := &Store[T]{entries: make(map[string]entry[T]), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores payload under key for ttl, replacing any previous entry.
// A ttl <= 0 produces an entry that is already expired.
func (s *Store[T]) Put(key string, payload T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if old, ok := s.entries[key]; ok && expired(old, now) {
		delete(s.entries, key)
	}
	s.entries[key] = entry[T]{payload: payload, expiresAt: now.Add(ttl)}
}

// Get returns the payload for key. An expired entry behaves exactly like a
// missing one and is removed.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if expired(e, s.now()) {
		delete(s.entries, key)
		return zero, false
	}
	return e.payload, true
}

// Take returns the payload for key and removes it under the same lock, so at
// most one caller ever receives a given entry.
func (s *Store[T]) Take(key string) (T, bool) {
	v, _, ok := s.TakeWithExpiry(key)
	return v, ok
}

// TakeWithExpiry is Take that also returns the entry deadline, for callers
// that may hand the entry back with Restore.
func (s *Store[T]) TakeWithExpiry(key string) (T, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key]
	if !ok {
		return zero, time.Time{}, false
	}
	delete(s.entries, key)
	if expired(e, s.now()) {
		return zero, time.Time{}, false
	}
	return e.payload, e.expiresAt, true
}

// Restore puts a taken entry back with its original deadline. It does nothing
// when the deadline has passed or a live entry already holds key.
func (s *Store[T]) Restore(key string, payload T, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.entries[key]; ok && !expired(cur, now) {
		return false
	}
	if !now.Before(expiresAt) {
		delete(s.entries, key)
		return false
	}
	s.entries[key] = entry[T]{payload: payload, expiresAt: expiresAt}
	return true
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of entries currently held, expired or not.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expired reports whether now has reached the entry expiry, so ttl <= 0 is never visible.
func expired[T any](e entry[T], now time.Time) bool {
	return !now.Before(e.expiresAt)
}
