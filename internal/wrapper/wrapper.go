// Package wrapper implements the Agent Executor Wrapper: one instance per
// fan-out branch, translating a routing decision's target agent into an
// invocation and a normalized response that never surfaces an error to its
// caller. Adapted from the per-branch event-emission idiom used throughout
// runtime/agent/engine/inmem/engine.go's activity wrappers.
package wrapper

import (
	"context"
	"time"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/invoker"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

// Response is one branch's normalized outcome.
type Response struct {
	AgentName  string
	Kind       invoker.ReplyKind
	Text       string
	Artifact   *a2a.Artifact
	TaskID     string
	Err        string
	Elapsed    time.Duration
	LongRunning bool
}

// Wrapper invokes one agent and produces a Response.
type Wrapper struct {
	regs    registry.Store
	inv     *invoker.Invoker
	log     telemetry.Logger
	timeout time.Duration
}

// New constructs a Wrapper with a default per-agent timeout, overridable per
// call.
func New(regs registry.Store, inv *invoker.Invoker, log telemetry.Logger, defaultTimeout time.Duration) *Wrapper {
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Second
	}
	return &Wrapper{regs: regs, inv: inv, log: log, timeout: defaultTimeout}
}

// Run resolves agentName's descriptor, invokes it with req, and returns a
// Response. It never returns an error: invocation and registry failures are
// folded into Response.Kind == invoker.ReplyKindError.
func (w *Wrapper) Run(ctx context.Context, agentName string, req a2a.SendMessageRequest, timeoutOverride time.Duration) Response {
	start := time.Now()
	w.log.Info(ctx, "agent branch started", "agent", agentName)

	desc, err := w.regs.Get(ctx, agentName)
	if err != nil {
		resp := Response{AgentName: agentName, Kind: invoker.ReplyKindError, Err: err.Error(), Elapsed: time.Since(start)}
		w.log.Info(ctx, "agent branch completed", "agent", agentName, "result", resp.Kind, "elapsed", resp.Elapsed)
		return resp
	}

	timeout := w.timeout
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}
	reply, err := w.inv.Invoke(ctx, desc, req, timeout)
	if err != nil {
		resp := Response{AgentName: agentName, Kind: invoker.ReplyKindError, Err: err.Error(), Elapsed: time.Since(start)}
		w.log.Info(ctx, "agent branch completed", "agent", agentName, "result", resp.Kind, "elapsed", resp.Elapsed)
		return resp
	}

	resp := Response{
		AgentName:   agentName,
		Kind:        reply.Kind,
		Text:        reply.Text,
		Artifact:    reply.Artifact,
		TaskID:      reply.TaskID,
		Elapsed:     time.Since(start),
		LongRunning: desc.Capabilities.LongRunning,
	}
	if reply.Kind == invoker.ReplyKindError {
		resp.Err = reply.Text
	}
	w.log.Info(ctx, "agent branch completed", "agent", agentName, "result", resp.Kind, "elapsed", resp.Elapsed)
	return resp
}
