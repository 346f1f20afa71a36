package kv

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. Apply holds the write lock for the whole
// batch so readers never observe half of it.
type MemStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string][]byte)}
}

func (s *MemStore) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.items[string(key)]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *MemStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = clone(s.items[k])
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Apply(writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, w := range writes {
		if w.Delete {
			delete(s.items, string(w.Key))
			continue
		}
		s.items[string(w.Key)] = clone(w.Value)
	}
	return nil
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
