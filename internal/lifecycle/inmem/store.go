// Package inmem is an in-memory lifecycle.Store, adapted from
// runtime/agent/session/inmem/store.go.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/homemesh/orchestrator/internal/lifecycle"
)

// Store is a mutex-guarded in-memory lifecycle.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*lifecycle.Session
	runs     map[string]*lifecycle.RunMeta
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*lifecycle.Session),
		runs:     make(map[string]*lifecycle.RunMeta),
	}
}

var _ lifecycle.Store = (*Store)(nil)

func (s *Store) CreateSession(_ context.Context, id string) (*lifecycle.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		if existing.Status == lifecycle.SessionEnded {
			return nil, lifecycle.ErrSessionEnded
		}
		return cloneSession(existing), nil
	}
	sess := &lifecycle.Session{ID: id, Status: lifecycle.SessionActive, CreatedAt: time.Now().UTC()}
	s.sessions[id] = sess
	return cloneSession(sess), nil
}

func (s *Store) LoadSession(_ context.Context, id string) (*lifecycle.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, lifecycle.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) EndSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return lifecycle.ErrSessionNotFound
	}
	if sess.Status == lifecycle.SessionEnded {
		return nil
	}
	now := time.Now().UTC()
	sess.Status = lifecycle.SessionEnded
	sess.EndedAt = &now
	return nil
}

func (s *Store) UpsertRun(_ context.Context, meta *lifecycle.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[meta.RunID]
	now := time.Now().UTC()
	if !ok {
		cp := cloneRunMeta(meta)
		if cp.StartedAt.IsZero() {
			cp.StartedAt = now
		}
		cp.UpdatedAt = now
		s.runs[meta.RunID] = cp
		return nil
	}
	// StartedAt is immutable: a caller cannot retroactively move when a
	// run began by upserting with a different timestamp.
	merged := cloneRunMeta(meta)
	merged.StartedAt = existing.StartedAt
	merged.UpdatedAt = now
	s.runs[meta.RunID] = merged
	return nil
}

func (s *Store) LoadRun(_ context.Context, runID string) (*lifecycle.RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, lifecycle.ErrRunNotFound
	}
	return cloneRunMeta(run), nil
}

func (s *Store) ListRunsBySession(_ context.Context, sessionID string, status lifecycle.RunStatus) ([]*lifecycle.RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*lifecycle.RunMeta
	for _, run := range s.runs {
		if run.SessionID != sessionID {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		out = append(out, cloneRunMeta(run))
	}
	return out, nil
}

func cloneSession(s *lifecycle.Session) *lifecycle.Session {
	cp := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

func cloneRunMeta(r *lifecycle.RunMeta) *lifecycle.RunMeta {
	cp := *r
	cp.Labels = cloneMap(r.Labels)
	cp.Metadata = cloneMap(r.Metadata)
	return &cp
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
