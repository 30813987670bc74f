// Package conversation persists the hot conversational state of the
// orchestration core: per-context turn snapshots and per-task A2A task
// snapshots. It is built on top of the abstract internal/kv store, the way
// the teacher's runtime/a2a.inMemoryTaskStore wraps a map but generalized to
// a pluggable backend.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homemesh/orchestrator/internal/kv"
)

type (
	// Role identifies the speaker of a Turn.
	Role string

	// Turn is one message in a conversation.
	Turn struct {
		Role    Role      `json:"role"`
		Content string    `json:"content"`
		At      time.Time `json:"at"`
	}

	// Snapshot is the durable transcript for one context identifier.
	// Turns grow append-only within the lifetime of the context.
	Snapshot struct {
		ContextID string `json:"contextId"`
		Turns     []Turn `json:"turns"`
	}

	// TaskState is the lifecycle state of a TaskSnapshot, matching the A2A
	// task status vocabulary.
	TaskState string

	// TaskSnapshot is the durable record for one long-running or
	// interrogative task.
	TaskSnapshot struct {
		TaskID      string          `json:"taskId"`
		ContextID   string          `json:"contextId"`
		State       TaskState       `json:"state"`
		LastMessage string          `json:"lastMessage"`
		Continuation json.RawMessage `json:"continuation,omitempty"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	TaskSubmitted     TaskState = "submitted"
	TaskWorking       TaskState = "working"
	TaskInputRequired TaskState = "input-required"
	TaskCompleted     TaskState = "completed"
	TaskCancelled     TaskState = "cancelled"
	TaskFailed        TaskState = "failed"
)

const (
	sessionKeyPrefix = "sessions/"
	taskKeyPrefix    = "tasks/"
)

// Store persists Snapshot and TaskSnapshot records atop a kv.Store.
type Store struct {
	kv         kv.Store
	sessionTTL time.Duration
	taskTTL    time.Duration
}

// New constructs a Store. A zero TTL disables expiry for that category.
func New(store kv.Store, sessionTTL, taskTTL time.Duration) *Store {
	return &Store{kv: store, sessionTTL: sessionTTL, taskTTL: taskTTL}
}

// LoadSnapshot returns the snapshot for contextID, or ok=false on a miss. A
// store outage is surfaced as an error; per SPEC_FULL.md §4.1 the driver
// treats any error here as a cold start, never a failed request.
func (s *Store) LoadSnapshot(ctx context.Context, contextID string) (*Snapshot, bool, error) {
	raw, ok, err := s.kv.GetOK(ctx, sessionKey(contextID))
	if err != nil || !ok {
		return nil, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("unmarshal session %q: %w", contextID, err)
	}
	return &snap, true, nil
}

// SaveSnapshot persists snap under its own ContextID.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", snap.ContextID, err)
	}
	return s.kv.Set(ctx, sessionKey(snap.ContextID), b, s.sessionTTL)
}

// DeleteSnapshot removes the snapshot for contextID.
func (s *Store) DeleteSnapshot(ctx context.Context, contextID string) error {
	return s.kv.Delete(ctx, sessionKey(contextID))
}

// LoadTask returns the task snapshot for taskID, or ok=false on a miss.
func (s *Store) LoadTask(ctx context.Context, taskID string) (*TaskSnapshot, bool, error) {
	raw, ok, err := s.kv.GetOK(ctx, taskKey(taskID))
	if err != nil || !ok {
		return nil, false, err
	}
	var task TaskSnapshot
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, false, fmt.Errorf("unmarshal task %q: %w", taskID, err)
	}
	return &task, true, nil
}

// SaveTask persists task under its own TaskID. A task in a terminal state
// (completed/cancelled/failed) is still written so tasks/get returns a
// definite answer, per the resolved Open Question in SPEC_FULL.md §9; it
// simply relies on taskTTL to prune it later.
func (s *Store) SaveTask(ctx context.Context, task *TaskSnapshot) error {
	task.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %q: %w", task.TaskID, err)
	}
	return s.kv.Set(ctx, taskKey(task.TaskID), b, s.taskTTL)
}

// DeleteTask removes the task snapshot for taskID.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	return s.kv.Delete(ctx, taskKey(taskID))
}

// AppendTurn loads, appends, and saves in one call, returning the updated
// snapshot. Driver code uses this for the user-turn append (before routing)
// and the assistant-turn append (after aggregation).
func (s *Store) AppendTurn(ctx context.Context, contextID string, turn Turn) (*Snapshot, error) {
	snap, ok, err := s.LoadSnapshot(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if !ok {
		snap = &Snapshot{ContextID: contextID}
	}
	turn.At = time.Now().UTC()
	snap.Turns = append(snap.Turns, turn)
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func sessionKey(contextID string) string { return sessionKeyPrefix + contextID }
func taskKey(taskID string) string       { return taskKeyPrefix + taskID }
