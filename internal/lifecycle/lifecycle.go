// Package lifecycle tracks the coarse-grained Session/Run bookkeeping that
// sits alongside the hot conversation.Store: whether a context identifier's
// conversation is still open, and an auditable record of each workflow run
// executed against it. Adapted from runtime/agent/session/session.go.
package lifecycle

import (
	"context"
	"errors"
	"time"
)

type (
	// SessionStatus is the lifecycle state of a Session.
	SessionStatus string

	// RunStatus is the lifecycle state of a RunMeta.
	RunStatus string

	// Session records whether a context identifier's conversation is open.
	Session struct {
		ID        string
		Status    SessionStatus
		CreatedAt time.Time
		EndedAt   *time.Time
	}

	// RunMeta is an auditable record of one workflow execution.
	RunMeta struct {
		AgentID   string
		RunID     string
		SessionID string
		Status    RunStatus
		StartedAt time.Time
		UpdatedAt time.Time
		Labels    map[string]string
		Metadata  map[string]string
	}

	// Store persists Session and RunMeta records.
	Store interface {
		// CreateSession is idempotent: calling it twice with the same id
		// returns the existing session rather than erroring, unless the
		// session has already ended.
		CreateSession(ctx context.Context, id string) (*Session, error)
		LoadSession(ctx context.Context, id string) (*Session, error)
		// EndSession is idempotent.
		EndSession(ctx context.Context, id string) error
		// UpsertRun creates the run on first call and updates it on
		// subsequent calls. StartedAt is immutable once set.
		UpsertRun(ctx context.Context, meta *RunMeta) error
		LoadRun(ctx context.Context, runID string) (*RunMeta, error)
		// ListRunsBySession returns runs for sessionID, optionally
		// filtered to a single status.
		ListRunsBySession(ctx context.Context, sessionID string, status RunStatus) ([]*RunMeta, error)
	}
)

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("lifecycle: session not found")
	// ErrSessionEnded is returned by CreateSession when the session
	// already exists and has ended.
	ErrSessionEnded = errors.New("lifecycle: session already ended")
	// ErrRunNotFound is returned when no run exists for an id.
	ErrRunNotFound = errors.New("lifecycle: run not found")
)
