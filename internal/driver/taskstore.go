package driver

import (
	"context"
	"fmt"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/conversation"
)

// taskStoreAdapter satisfies a2a.TaskStore over internal/conversation.Store,
// translating between the durable TaskSnapshot record and the wire Task
// shape. The driver owns all task writes through internal/conversation
// directly; this adapter exists solely for the a2a.Server's read path
// (tasks/get) and cancellation-state transition (tasks/cancel).
type taskStoreAdapter struct {
	conv *conversation.Store
}

var _ a2a.TaskStore = (*taskStoreAdapter)(nil)

func newTaskStoreAdapter(conv *conversation.Store) *taskStoreAdapter {
	return &taskStoreAdapter{conv: conv}
}

func (a *taskStoreAdapter) LoadTask(ctx context.Context, taskID string) (*a2a.Task, bool, error) {
	snap, ok, err := a.conv.LoadTask(ctx, taskID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return toWireTask(snap), true, nil
}

func (a *taskStoreAdapter) MarkCancelled(ctx context.Context, taskID string) (*a2a.Task, error) {
	snap, ok, err := a.conv.LoadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("driver: task %q not found", taskID)
	}
	snap.State = conversation.TaskCancelled
	if err := a.conv.SaveTask(ctx, snap); err != nil {
		return nil, err
	}
	return toWireTask(snap), nil
}

func toWireTask(snap *conversation.TaskSnapshot) *a2a.Task {
	var msg *a2a.Message
	if snap.LastMessage != "" {
		msg = &a2a.Message{
			Role:      "agent",
			Parts:     []a2a.MessagePart{{Kind: "text", Text: snap.LastMessage}},
			ContextID: snap.ContextID,
			Kind:      "message",
		}
	}
	return &a2a.Task{
		ID:        snap.TaskID,
		ContextID: snap.ContextID,
		Status:    a2a.TaskStatus{State: string(snap.State), Message: msg, Timestamp: snap.UpdatedAt},
	}
}
