package store

import (
	"slices"
	"strings"
	"sync"

	"closedgroups/internal/domain"
)

// MemoryKV is a KeyValueStore held in memory. Values are copied on the way
// in and out.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Get returns the value stored under key.
func (s *MemoryKV) Get(collection, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[collection][key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set stores value under key.
func (s *MemoryKV) Set(collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(collection, key, value)
	return nil
}

func (s *MemoryKV) set(collection, key string, value []byte) {
	c, ok := s.data[collection]
	if !ok {
		c = make(map[string][]byte)
		s.data[collection] = c
	}
	c[key] = slices.Clone(value)
}

// Delete removes key. Missing keys are not an error.
func (s *MemoryKV) Delete(collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[collection], key)
	return nil
}

// Update runs fn under the store's write lock.
func (s *MemoryKV) Update(collection, key string, fn func(old []byte, ok bool) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.data[collection][key]
	v, err := fn(slices.Clone(old), ok)
	if err != nil {
		return err
	}
	if v != nil {
		s.set(collection, key, v)
	}
	return nil
}

// Keys lists keys starting with prefix in byte order.
func (s *MemoryKV) Keys(collection, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data[collection] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (s *MemoryKV) DeletePrefix(collection, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.data[collection] {
		if strings.HasPrefix(k, prefix) {
			delete(s.data[collection], k)
		}
	}
	return nil
}

// Compile-time assertion that MemoryKV implements domain.KeyValueStore.
var _ domain.KeyValueStore = (*MemoryKV)(nil)
