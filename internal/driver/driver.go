// Package driver implements the Workflow Driver: the top-level pipeline
// that turns one inbound A2A message/send call into a routed, fanned-out,
// aggregated reply, persists the conversation, and classifies the result
// into a plain message or a task. Adapted from runtime/a2a/server.go's
// TasksSend orchestration of a single request's lifecycle, generalized to
// the multi-branch pipeline in SPEC_FULL.md §4.7.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/pulse/rmap"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/aggregator"
	"github.com/homemesh/orchestrator/internal/conversation"
	"github.com/homemesh/orchestrator/internal/docstore"
	"github.com/homemesh/orchestrator/internal/engine"
	"github.com/homemesh/orchestrator/internal/lifecycle"
	"github.com/homemesh/orchestrator/internal/router"
	"github.com/homemesh/orchestrator/internal/telemetry"
	"github.com/homemesh/orchestrator/internal/wrapper"
)

// Options configures a Driver.
type Options struct {
	// FallbackAgent is used when the workflow body cannot determine a
	// decision at all (should be rare; the router itself already falls
	// back internally per SPEC_FULL.md §4.4).
	FallbackAgent string
	// Priority orders the aggregator's composition; see internal/aggregator.
	Priority []string
	// RequestTimeout bounds one request end-to-end (default 5s).
	RequestTimeout time.Duration
	// RouterActivityTimeout bounds the route activity specifically
	// (default 1s, should stay below RequestTimeout).
	RouterActivityTimeout time.Duration
	// DefaultAgentTimeout bounds a fan-out branch when AgentTimeouts has
	// no entry for that agent (default 2s).
	DefaultAgentTimeout time.Duration
	// AgentTimeouts overrides DefaultAgentTimeout per agent name.
	AgentTimeouts map[string]time.Duration
	// MaxQueueDepth bounds per-context request queueing (default 8; see
	// SPEC_FULL.md §9's resolved Open Question).
	MaxQueueDepth int
	// TaskQueue names the task queue new workflow/activity registrations
	// use; ignored by the in-memory engine.
	TaskQueue string
	// EmptyRequestReply is returned verbatim when the user's text is
	// empty or whitespace-only; the router is bypassed entirely.
	EmptyRequestReply string
	// ClusterMap, when non-nil, coordinates per-context serialization
	// across processes via a Pulse replicated map instead of an
	// in-process mutex map (use when the Session Store is Redis-backed
	// and multiple orchestrator processes share it).
	ClusterMap *rmap.Map
	// Lifecycle, when non-nil, records a Session per context identifier
	// and a RunMeta per request, alongside the hot conversation.Store
	// path. Optional: the request pipeline works without it.
	Lifecycle lifecycle.Store
	// Archive, when non-nil, receives a small transcript snapshot of
	// each plain-reply exchange (not a task still awaiting input or
	// still working) for audit/search, independent of the hot
	// conversation.Store TTL.
	Archive docstore.Store
}

// Driver assembles and runs the per-request pipeline.
type Driver struct {
	opts   Options
	engine engine.Engine
	router *router.Executor
	wrapper *wrapper.Wrapper
	conv   *conversation.Store
	log    telemetry.Logger
	serializer contextSerializer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs and registers a Driver's workflow/activities with eng. Call
// once per engine instance before handling any requests.
func New(ctx context.Context, eng engine.Engine, routerExec *router.Executor, wrap *wrapper.Wrapper, conv *conversation.Store, log telemetry.Logger, opts Options) (*Driver, error) {
	if opts.FallbackAgent == "" {
		opts.FallbackAgent = "fallback"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.RouterActivityTimeout <= 0 {
		opts.RouterActivityTimeout = time.Second
	}
	if opts.DefaultAgentTimeout <= 0 {
		opts.DefaultAgentTimeout = 2 * time.Second
	}
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = 8
	}
	if opts.EmptyRequestReply == "" {
		opts.EmptyRequestReply = "I need a request before I can help with that."
	}

	var serializer contextSerializer
	if opts.ClusterMap != nil {
		serializer = newRmapSerializer(opts.ClusterMap, opts.MaxQueueDepth)
	} else {
		serializer = newInProcessSerializer(opts.MaxQueueDepth)
	}

	d := &Driver{
		opts:       opts,
		engine:     eng,
		router:     routerExec,
		wrapper:    wrap,
		conv:       conv,
		log:        log,
		serializer: serializer,
		cancels:    make(map[string]context.CancelFunc),
	}
	if err := d.registerWorkflow(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// TaskStore returns an a2a.TaskStore view over the driver's conversation
// store, for wiring into a2a.NewServer.
func (d *Driver) TaskStore() a2a.TaskStore { return newTaskStoreAdapter(d.conv) }

var _ a2a.Handler = (*Driver)(nil)

// HandleMessage runs the full pipeline for one message/send call.
func (d *Driver) HandleMessage(ctx context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	contextID := req.Message.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	release, err := d.serializer.acquire(ctx, contextID)
	if err != nil {
		return a2a.SendMessageResult{}, err
	}
	defer release()

	if d.opts.Lifecycle != nil {
		if _, err := d.opts.Lifecycle.CreateSession(ctx, contextID); err != nil && !errors.Is(err, lifecycle.ErrSessionEnded) {
			d.log.Warn(ctx, "session lifecycle create failed", "contextId", contextID, "error", err)
		}
	}

	text := strings.TrimSpace(textOf(req.Message.Parts))
	if text == "" {
		return a2a.SendMessageResult{Message: &a2a.Message{
			Role:      "agent",
			Parts:     []a2a.MessagePart{{Kind: "text", Text: d.opts.EmptyRequestReply}},
			ContextID: contextID,
			MessageID: uuid.NewString(),
			Kind:      "message",
		}}, nil
	}

	taskID := uuid.NewString()
	reqCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
	d.trackCancel(taskID, cancel)
	defer func() {
		d.untrackCancel(taskID)
		cancel()
	}()

	if _, err := d.conv.AppendTurn(reqCtx, contextID, conversation.Turn{Role: conversation.RoleUser, Content: text}); err != nil {
		d.log.Warn(reqCtx, "session append (user turn) failed", "contextId", contextID, "error", err)
	}

	handle, err := d.engine.StartWorkflow(reqCtx, engine.WorkflowStartRequest{
		ID:       taskID,
		Workflow: workflowName,
		Input: workflowInput{
			ContextID: contextID,
			Text:      text,
			Message:   req.Message,
			Metadata:  req.Metadata,
		},
	})
	if err != nil {
		return a2a.SendMessageResult{}, fmt.Errorf("driver: start workflow: %w", err)
	}

	var out workflowOutput
	waitErr := handle.Wait(reqCtx, &out)
	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		// The caller abandoned the request: skip the assistant-turn
		// session write entirely, per SPEC_FULL.md §4.7's cancellation
		// rule. A per-request deadline (reqCtx) expiring on its own,
		// by contrast, still degrades to an apology below rather than
		// silently dropping the user's already-recorded turn.
		return a2a.SendMessageResult{}, context.Canceled
	}
	if waitErr != nil {
		d.log.Warn(reqCtx, "workflow execution failed", "contextId", contextID, "error", waitErr)
		out = workflowOutput{Result: routerOutageResult(waitErr)}
	}

	replyText := out.Result.Text
	if out.Decision.Clarification {
		replyText = clarificationText(out.Decision)
	}

	if _, err := d.conv.AppendTurn(ctx, contextID, conversation.Turn{Role: conversation.RoleAssistant, Content: replyText}); err != nil {
		d.log.Warn(ctx, "session append (assistant turn) failed", "contextId", contextID, "error", err)
	}

	msg := a2a.Message{
		Role:      "agent",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: replyText}},
		ContextID: contextID,
		MessageID: uuid.NewString(),
		Kind:      "message",
	}

	runStatus := lifecycle.RunCompleted
	if out.Result.AllFailed {
		runStatus = lifecycle.RunFailed
	}
	d.recordRun(ctx, taskID, contextID, out.Decision.AgentID, runStatus)

	switch {
	case out.Decision.Clarification || out.Result.NeedsInput:
		return d.persistTask(ctx, taskID, contextID, req.Message, msg, conversation.TaskInputRequired, replyText)
	case out.Result.PerformedLong:
		return d.persistTask(ctx, taskID, contextID, req.Message, msg, conversation.TaskWorking, replyText)
	default:
		d.archiveExchange(ctx, contextID, text, replyText)
		return a2a.SendMessageResult{Message: &msg}, nil
	}
}

// recordRun upserts a lifecycle.RunMeta for one request, a no-op when no
// lifecycle.Store is configured.
func (d *Driver) recordRun(ctx context.Context, taskID, contextID, agentID string, status lifecycle.RunStatus) {
	if d.opts.Lifecycle == nil {
		return
	}
	now := time.Now()
	if err := d.opts.Lifecycle.UpsertRun(ctx, &lifecycle.RunMeta{
		AgentID:   agentID,
		RunID:     taskID,
		SessionID: contextID,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}); err != nil {
		d.log.Warn(ctx, "run lifecycle upsert failed", "runId", taskID, "error", err)
	}
}

// archiveExchange sends a completed plain-reply exchange to the document
// store for audit/search, a no-op when no docstore.Store is configured.
func (d *Driver) archiveExchange(ctx context.Context, contextID, userText, replyText string) {
	if d.opts.Archive == nil {
		return
	}
	now := time.Now().Unix()
	snap := docstore.ArchivedSnapshot{
		ContextID: contextID,
		Turns: []docstore.ArchivedTurn{
			{Role: string(conversation.RoleUser), Content: userText, AtUnix: now},
			{Role: string(conversation.RoleAssistant), Content: replyText, AtUnix: now},
		},
		ClosedAt: now,
	}
	if err := d.opts.Archive.ArchiveSnapshot(ctx, snap); err != nil {
		d.log.Warn(ctx, "exchange archive failed", "contextId", contextID, "error", err)
	}
}

func (d *Driver) persistTask(ctx context.Context, taskID, contextID string, userMsg, agentMsg a2a.Message, state conversation.TaskState, lastMessage string) (a2a.SendMessageResult, error) {
	task := &a2a.Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    a2a.NewTaskStatus(string(state), &agentMsg),
		History:   []a2a.Message{userMsg, agentMsg},
	}
	if err := d.conv.SaveTask(ctx, &conversation.TaskSnapshot{
		TaskID:      taskID,
		ContextID:   contextID,
		State:       state,
		LastMessage: lastMessage,
	}); err != nil {
		d.log.Warn(ctx, "task snapshot persist failed", "taskId", taskID, "error", err)
	}
	return a2a.SendMessageResult{Task: task}, nil
}

// CancelTask signals cancellation to an in-flight request's context, if any
// is currently tracked under taskID. A request that has already completed
// (or never existed) is not an error: the caller's subsequent tasks/cancel
// task-state transition still applies to the persisted snapshot.
func (d *Driver) CancelTask(_ context.Context, taskID string) error {
	d.mu.Lock()
	cancel, ok := d.cancels[taskID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (d *Driver) trackCancel(taskID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancels[taskID] = cancel
	d.mu.Unlock()
}

func (d *Driver) untrackCancel(taskID string) {
	d.mu.Lock()
	delete(d.cancels, taskID)
	d.mu.Unlock()
}

func (d *Driver) agentTimeout(name string) time.Duration {
	if t, ok := d.opts.AgentTimeouts[name]; ok && t > 0 {
		return t
	}
	return d.opts.DefaultAgentTimeout
}

func textOf(parts []a2a.MessagePart) string {
	for _, p := range parts {
		if p.Kind == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}

func clarificationText(d router.Decision) string {
	if d.Reasoning != "" {
		return "Could you clarify what you mean? " + d.Reasoning
	}
	return "Could you clarify what you'd like me to do?"
}

// routerOutageResult builds the apologetic aggregator.Result used when the
// workflow itself fails to complete (engine outage, activity panic), per
// SPEC_FULL.md §7's "all branches failed" failure semantics.
func routerOutageResult(_ error) aggregator.Result {
	return aggregator.Result{
		Text:      "I'm sorry, I wasn't able to help with that because the orchestration service is temporarily unavailable.",
		AllFailed: true,
	}
}
