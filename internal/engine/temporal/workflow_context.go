package temporal

import (
	"context"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/homemesh/orchestrator/internal/engine"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

// temporalWorkflowContext adapts workflow.Context to engine.WorkflowContext.
// Trimmed from runtime/agent/engine/temporal/workflow_context.go: that type
// additionally exposed agent-planner hooks (ExecutePlannerActivity,
// ExecuteToolActivity(Async)), typed pause/resume/clarification/tool-result/
// confirmation signal receivers, child-workflow support, and a generic
// Future[T]/Receiver[T] pair plus WithCancel/Detached/NewTimer/Await — none
// of which engine.WorkflowContext declares, since this module's workflow
// body only needs to schedule plain activities and wait on named signals.
type temporalWorkflowContext struct {
	eng *Engine
	ctx workflow.Context
}

var _ engine.WorkflowContext = (*temporalWorkflowContext)(nil)

func newTemporalWorkflowContext(eng *Engine, ctx workflow.Context) *temporalWorkflowContext {
	return &temporalWorkflowContext{eng: eng, ctx: ctx}
}

// Context returns context.Background(). workflow.Context is not itself a
// context.Context, and workflow code must never perform blocking I/O or
// honor external cancellation directly — both go through ExecuteActivity
// instead. This method exists only so code written against
// engine.WorkflowContext compiles unchanged against both engines.
func (w *temporalWorkflowContext) Context() context.Context { return context.Background() }

func (w *temporalWorkflowContext) WorkflowID() string {
	return workflow.GetInfo(w.ctx).WorkflowExecution.ID
}

func (w *temporalWorkflowContext) RunID() string {
	return workflow.GetInfo(w.ctx).WorkflowExecution.RunID
}

func (w *temporalWorkflowContext) Logger() telemetry.Logger   { return w.eng.logger }
func (w *temporalWorkflowContext) Metrics() telemetry.Metrics { return w.eng.metrics }
func (w *temporalWorkflowContext) Tracer() telemetry.Tracer   { return w.eng.tracer }

// Now returns workflow.Now, which is replay-deterministic, unlike time.Now.
func (w *temporalWorkflowContext) Now() time.Time { return workflow.Now(w.ctx) }

func (w *temporalWorkflowContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *temporalWorkflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptions(req))
	f := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &future{ctx: actx, f: f}, nil
}

func (w *temporalWorkflowContext) activityOptions(req engine.ActivityRequest) workflow.ActivityOptions {
	defaults := w.eng.activityDefaultsFor(req.Name)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retry := req.RetryPolicy
	if retry == (engine.RetryPolicy{}) {
		retry = defaults.RetryPolicy
	}

	opts := workflow.ActivityOptions{
		TaskQueue:           req.Queue,
		StartToCloseTimeout: timeout,
	}
	if retry.MaxAttempts > 0 || retry.InitialInterval > 0 || retry.BackoffCoefficient > 0 {
		opts.RetryPolicy = convertRetryPolicy(retry)
	}
	return opts
}

func convertRetryPolicy(rp engine.RetryPolicy) *sdktemporal.RetryPolicy {
	out := &sdktemporal.RetryPolicy{}
	if rp.MaxAttempts > 0 {
		out.MaximumAttempts = int32(rp.MaxAttempts)
	}
	if rp.InitialInterval > 0 {
		out.InitialInterval = rp.InitialInterval
	}
	if rp.BackoffCoefficient > 0 {
		out.BackoffCoefficient = rp.BackoffCoefficient
	}
	return out
}

func (w *temporalWorkflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

// future wraps workflow.Future. It ignores the context.Context passed to
// Get: Temporal activity awaits must use the originating workflow.Context,
// which is captured at schedule time since engine.Future.Get only accepts
// context.Context.
type future struct {
	ctx workflow.Context
	f   workflow.Future
}

func (f *future) Get(_ context.Context, result any) error {
	return f.f.Get(f.ctx, result)
}

func (f *future) IsReady() bool { return f.f.IsReady() }

type signalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
