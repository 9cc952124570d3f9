// Package inflight tracks keys that currently have an operation running.
//
// A Set is an advisory, process-local guard: it prevents the same key from
// being worked on twice concurrently but provides no cross-process
// exclusion.
package inflight

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
)

// ErrBusy is returned by Do when the key is already in flight.
var ErrBusy = errors.New("operation already in flight")

// Set is a concurrency-safe set of in-flight keys. The zero value is ready
// to use.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// TryAcquire marks key as in flight. It reports false if key was already
// held.
func (s *Set) TryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Release clears key. Releasing a key that is not held is a no-op.
func (s *Set) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Has reports whether key is in flight.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys in flight.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Do runs fn while holding key. The key is released when fn returns or
// panics. If key is already held, fn is not called and ErrBusy is returned.
func (s *Set) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if !s.TryAcquire(key) {
		return ErrBusy
	}
	defer s.Release(key)
	return fn(ctx)
}
