// Package memory provides an in-process kv.Backend. It is the default
// backend for tests and for the Forge extension when no database is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/coinledger/kv"
)

// compile-time interface checks
var (
	_ kv.Backend = (*Store)(nil)
	_ kv.Applier = (*Store)(nil)
)

// Store is a map-backed kv.Backend.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

func (s *Store) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, kv.ErrClosed
	}
	_, ok := s.data[key]
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	return snapshot(s.data).Get(ctx, key)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Value: value}})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Delete: true}})
}

func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	return snapshot(s.data).Scan(ctx, prefix)
}

// Apply validates rs and applies all writes under a single lock.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	if err := rs.Validate(ctx, snapshot(s.data)); err != nil {
		return err
	}
	for _, w := range writes {
		if w.Delete {
			delete(s.data, w.Key)
		} else {
			s.data[w.Key] = slices.Clone(w.Value)
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kv.ErrClosed
	}
	return nil
}

// Close marks the store closed. Further calls fail with kv.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// snapshot reads the map directly. Callers hold the store lock.
type snapshot map[string][]byte

func (m snapshot) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m[key]; ok {
		return slices.Clone(v), nil
	}
	return nil, kv.ErrNotFound
}

func (m snapshot) Scan(_ context.Context, prefix string) ([]kv.Entry, error) {
	keys := make([]string, 0)
	for k := range m {
		if kv.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	entries := make([]kv.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, kv.Entry{Key: k, Value: slices.Clone(m[k])})
	}
	return entries, nil
}
