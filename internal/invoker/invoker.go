// Package invoker provides a uniform invocation surface over local
// (in-process), remote (A2A JSON-RPC peer), and keyed (service-locator
// resolved) domain agents. Adapted from runtime/a2a/caller.go's Caller
// contract and the convertMessage/convertArtifact classification idiom in
// runtime/a2a/server.go.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

type (
	// LocalHandle is an in-process agent implementation, registered under
	// the same name as its registry.AgentDescriptor.
	LocalHandle interface {
		HandleMessage(ctx context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error)
	}

	// KeyedResolver resolves a Keyed-transport descriptor's Address into a
	// live a2a.Caller, e.g. via a service discovery lookup or connection
	// pool. Resolved callers are not cached by the invoker.
	KeyedResolver interface {
		Resolve(ctx context.Context, address string) (a2a.Caller, error)
	}

	// CallerFactory builds a Remote-transport a2a.Caller bound to a peer
	// address (an HTTP base URL).
	CallerFactory func(address string) a2a.Caller

	// ReplyKind classifies a completed invocation's reply shape so the
	// wrapper and aggregator can treat it uniformly across transports.
	ReplyKind string

	// Reply is the normalized result of one agent invocation.
	Reply struct {
		Kind     ReplyKind
		Text     string
		Artifact *a2a.Artifact
		TaskID   string
	}

	// Invoker dispatches a send-message call to a registered agent over
	// whichever transport its descriptor names, rate-limited per call.
	Invoker struct {
		locals   map[string]LocalHandle
		keyed    KeyedResolver
		remoteOf CallerFactory
		limiter  *rate.Limiter
		log      telemetry.Logger
	}
)

const (
	ReplyKindText           ReplyKind = "text"
	ReplyKindNeedsInput     ReplyKind = "needs-input"
	ReplyKindPerformed      ReplyKind = "performed-action"
	ReplyKindError          ReplyKind = "error"
)

// ErrUnknownTransport is returned when a descriptor names a Transport value
// the invoker does not recognize.
var ErrUnknownTransport = errors.New("invoker: unknown transport")

// New constructs an Invoker. ratePerSecond/burst bound the total rate of
// outbound invocations across all agents; pass 0 burst to disable limiting.
func New(locals map[string]LocalHandle, keyed KeyedResolver, remoteOf CallerFactory, log telemetry.Logger, ratePerSecond float64, burst int) *Invoker {
	var limiter *rate.Limiter
	if burst > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	if locals == nil {
		locals = map[string]LocalHandle{}
	}
	return &Invoker{locals: locals, keyed: keyed, remoteOf: remoteOf, limiter: limiter, log: log}
}

// Invoke sends req to the agent named by desc.Name over its transport and
// classifies the reply. It always returns a Reply; transport and protocol
// failures are reported as ReplyKindError rather than via the error return,
// so a fan-out caller need not special-case individual agent failures. A
// missing local handle is likewise reported as ReplyKindError. The error
// return is reserved for an unknown transport, which indicates a
// registry/invoker mismatch.
func (inv *Invoker) Invoke(ctx context.Context, desc *registry.AgentDescriptor, req a2a.SendMessageRequest, timeout time.Duration) (Reply, error) {
	if inv.limiter != nil {
		if err := inv.limiter.Wait(ctx); err != nil {
			return Reply{Kind: ReplyKindError, Text: err.Error()}, nil
		}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := inv.dispatch(ctx, desc, req)
	if err != nil {
		if errors.Is(err, ErrUnknownTransport) {
			return Reply{}, err
		}
		inv.log.Warn(ctx, "agent invocation failed", "agent", desc.Name, "error", err)
		return Reply{Kind: ReplyKindError, Text: err.Error()}, nil
	}
	return classify(ctx, desc, result, inv.log), nil
}

func (inv *Invoker) dispatch(ctx context.Context, desc *registry.AgentDescriptor, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	switch desc.Transport {
	case registry.TransportLocal:
		handle, ok := inv.locals[desc.Name]
		if !ok {
			return a2a.SendMessageResult{}, fmt.Errorf("invoker: no local handle registered for %q", desc.Name)
		}
		return handle.HandleMessage(ctx, req)
	case registry.TransportRemote:
		if inv.remoteOf == nil {
			return a2a.SendMessageResult{}, fmt.Errorf("invoker: no remote caller factory configured for %q", desc.Name)
		}
		caller := inv.remoteOf(desc.Address)
		return caller.SendMessage(ctx, req)
	case registry.TransportKeyed:
		if inv.keyed == nil {
			return a2a.SendMessageResult{}, fmt.Errorf("invoker: no keyed resolver configured for %q", desc.Name)
		}
		caller, err := inv.keyed.Resolve(ctx, desc.Address)
		if err != nil {
			return a2a.SendMessageResult{}, fmt.Errorf("invoker: resolve keyed agent %q: %w", desc.Name, err)
		}
		return caller.SendMessage(ctx, req)
	default:
		return a2a.SendMessageResult{}, fmt.Errorf("%w: %q", ErrUnknownTransport, desc.Transport)
	}
}

// classify maps a raw SendMessageResult onto the ReplyKind taxonomy the
// aggregator consumes, mirroring the state-to-meaning mapping server.go
// applies when converting a TaskStatus into a response message. desc gates
// whether a non-completed task reply is even admissible: an agent whose
// descriptor disclaims long-running capability has no business returning a
// task still in working/input-required state, and doing so is treated as a
// contract violation rather than classified as if it were well-behaved.
func classify(ctx context.Context, desc *registry.AgentDescriptor, result a2a.SendMessageResult, log telemetry.Logger) Reply {
	if result.Message != nil {
		return Reply{Kind: ReplyKindText, Text: textOf(result.Message.Parts)}
	}
	if result.Task == nil {
		return Reply{Kind: ReplyKindError, Text: "agent returned neither a message nor a task"}
	}
	task := result.Task
	if !desc.Capabilities.LongRunning && task.Status.State != a2a.TaskStateCompleted &&
		task.Status.State != a2a.TaskStateFailed && task.Status.State != a2a.TaskStateCancelled {
		log.Error(ctx, "agent returned a non-terminal task without declaring long-running capability",
			"agent", desc.Name, "state", task.Status.State, "task_id", task.ID)
		return Reply{Kind: ReplyKindError, Text: "agent returned an incomplete task but is not declared long-running", TaskID: task.ID}
	}
	switch task.Status.State {
	case a2a.TaskStateInputRequired:
		text := ""
		if task.Status.Message != nil {
			text = textOf(task.Status.Message.Parts)
		}
		return Reply{Kind: ReplyKindNeedsInput, Text: text, TaskID: task.ID}
	case a2a.TaskStateFailed, a2a.TaskStateCancelled:
		text := "the action could not be completed"
		if task.Status.Message != nil {
			text = textOf(task.Status.Message.Parts)
		}
		return Reply{Kind: ReplyKindError, Text: text, TaskID: task.ID}
	default:
		var artifact *a2a.Artifact
		if len(task.Artifacts) > 0 {
			artifact = &task.Artifacts[len(task.Artifacts)-1]
		}
		text := ""
		if task.Status.Message != nil {
			text = textOf(task.Status.Message.Parts)
		}
		return Reply{Kind: ReplyKindPerformed, Text: text, Artifact: artifact, TaskID: task.ID}
	}
}

func textOf(parts []a2a.MessagePart) string {
	for _, p := range parts {
		if p.Kind == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
