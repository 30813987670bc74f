// Package replicated provides a replicated-map-backed registry.Store.
//
// The store persists agent descriptors in a Pulse replicated map (rmap),
// backed by Redis. This makes agent registration durable across process
// restarts and visible to every node in a multi-node deployment. Adapted
// nearly verbatim from registry/store/replicated/replicated.go, retargeted
// from genregistry.Toolset onto registry.AgentDescriptor.
package replicated

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/homemesh/orchestrator/internal/registry"
)

// Map is the minimal replicated-map contract required by this store.
// Satisfied by *rmap.Map from goa.design/pulse/rmap; defined here to keep
// the store unit-testable without Redis and to avoid coupling callers to a
// concrete Pulse type. Implementations must be safe for concurrent use.
type Map interface {
	Delete(ctx context.Context, key string) (string, error)
	Get(key string) (string, bool)
	Keys() []string
	Set(ctx context.Context, key, value string) (string, error)
}

// Store persists agent descriptors in a replicated map.
type Store struct {
	m Map
}

const agentKeyPrefix = "registry:agent:"

// New creates a replicated store backed by the given map.
func New(m Map) *Store { return &Store{m: m} }

var _ registry.Store = (*Store)(nil)

func (s *Store) Register(ctx context.Context, desc registry.AgentDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal agent %q: %w", desc.Name, err)
	}
	if _, err := s.m.Set(ctx, agentKey(desc.Name), string(b)); err != nil {
		return fmt.Errorf("store agent %q: %w", desc.Name, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*registry.AgentDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, ok := s.m.Get(agentKey(name))
	if !ok {
		return nil, registry.ErrNotFound
	}
	var desc registry.AgentDescriptor
	if err := json.Unmarshal([]byte(val), &desc); err != nil {
		return nil, fmt.Errorf("unmarshal agent %q: %w", name, err)
	}
	return &desc, nil
}

func (s *Store) Unregister(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := agentKey(name)
	if _, ok := s.m.Get(key); !ok {
		return registry.ErrNotFound
	}
	if _, err := s.m.Delete(ctx, key); err != nil {
		return fmt.Errorf("unregister agent %q: %w", name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*registry.AgentDescriptor, error) {
	return s.Query(ctx, registry.QueryFilter{})
}

func (s *Store) Query(ctx context.Context, filter registry.QueryFilter) ([]*registry.AgentDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*registry.AgentDescriptor, 0)
	for _, k := range s.m.Keys() {
		if !strings.HasPrefix(k, agentKeyPrefix) {
			continue
		}
		name := strings.TrimPrefix(k, agentKeyPrefix)
		desc, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if registry.Matches(desc, filter) {
			out = append(out, desc)
		}
	}
	return out, nil
}

func agentKey(name string) string { return agentKeyPrefix + name }
