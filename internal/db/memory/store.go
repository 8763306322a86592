// Package memory is an in-process db.Store used when no external cache is configured.
package memory

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/dmodel/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	value    []byte
	deadline time.Time
}

// Store keeps values in a map guarded by a mutex. Expired keys are dropped lazily.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry), now: time.Now}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Close drops all values.
func (s *Store) Close() {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value that expires after ttl. A non-positive ttl never expires.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
	return nil
}

// Del deletes a key. Missing keys are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Scan returns live keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k, e := range s.data {
		if s.expired(e) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) expired(e entry) bool {
	return !e.deadline.IsZero() && !s.now().Before(e.deadline)
}
