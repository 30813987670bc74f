// Package memory is an in-memory registry.Store, the default for single-
// process deployments and tests, adapted from registry/store/memory.
package memory

import (
	"context"
	"sync"

	"github.com/homemesh/orchestrator/internal/registry"
)

// Store is a mutex-guarded in-memory registry.Store.
type Store struct {
	mu    sync.RWMutex
	descs map[string]*registry.AgentDescriptor
}

// New returns an empty Store.
func New() *Store {
	return &Store{descs: make(map[string]*registry.AgentDescriptor)}
}

var _ registry.Store = (*Store)(nil)

func (s *Store) Register(_ context.Context, desc registry.AgentDescriptor) error {
	cp := desc
	s.mu.Lock()
	s.descs[desc.Name] = &cp
	s.mu.Unlock()
	return nil
}

func (s *Store) Unregister(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.descs, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, name string) (*registry.AgentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descs[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) List(_ context.Context) ([]*registry.AgentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*registry.AgentDescriptor, 0, len(s.descs))
	for _, d := range s.descs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Query(_ context.Context, filter registry.QueryFilter) ([]*registry.AgentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*registry.AgentDescriptor, 0, len(s.descs))
	for _, d := range s.descs {
		if !registry.Matches(d, filter) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}
