// Package inmem provides an in-memory kv.Store for tests and local
// development, mirroring the teacher's in-memory session store idiom of a
// mutex-guarded map with explicit expiry bookkeeping.
package inmem

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/homemesh/orchestrator/internal/kv"
)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Store is an in-memory, mutex-guarded kv.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string]entry)}
}

var _ kv.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kv.ErrNotFound
	}
	return v, nil
}

func (s *Store) GetOK(_ context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.getLocked(key)
	return v, ok, err
}

func (s *Store) getLocked(key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.data[key] = entry{value: cp, expires: expires}
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expires.IsZero() && now.After(e.expires) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
