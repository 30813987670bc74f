package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

type fakeLocal struct {
	result a2a.SendMessageResult
	err    error
}

func (f *fakeLocal) HandleMessage(context.Context, a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	return f.result, f.err
}

type fakeCaller struct {
	result a2a.SendMessageResult
	err    error
}

func (f *fakeCaller) SendMessage(context.Context, a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	return f.result, f.err
}
func (f *fakeCaller) GetTask(context.Context, string) (a2a.Task, error)       { return a2a.Task{}, nil }
func (f *fakeCaller) CancelTask(context.Context, string) (a2a.Task, error)    { return a2a.Task{}, nil }
func (f *fakeCaller) AgentCard(context.Context) (a2a.AgentCard, error)        { return a2a.AgentCard{}, nil }

type fakeKeyedResolver struct {
	caller a2a.Caller
	err    error
}

func (f *fakeKeyedResolver) Resolve(context.Context, string) (a2a.Caller, error) {
	return f.caller, f.err
}

func TestInvoke_LocalTextReply(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{Message: &a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: "done"}},
	}}}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Kind != ReplyKindText || reply.Text != "done" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestInvoke_LocalMissingHandleBecomesReplyKindError(t *testing.T) {
	inv := New(nil, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "ghost", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface a missing local handle via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError for a missing local handle, got %+v", reply)
	}
}

func TestInvoke_LocalHandlerErrorBecomesReplyKindError(t *testing.T) {
	local := &fakeLocal{err: errors.New("boom")}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface handler errors via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError, got %+v", reply)
	}
}

func TestInvoke_UnknownTransportIsConfigError(t *testing.T) {
	inv := New(nil, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	_, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "x", Transport: "carrier-pigeon"}, a2a.SendMessageRequest{}, 0)
	if !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestInvoke_RemoteDispatchesThroughCallerFactory(t *testing.T) {
	caller := &fakeCaller{result: a2a.SendMessageResult{Message: &a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: "remote ok"}},
	}}}
	var gotAddress string
	factory := func(address string) a2a.Caller {
		gotAddress = address
		return caller
	}
	inv := New(nil, nil, factory, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{
		Name: "remote-light", Transport: registry.TransportRemote, Address: "https://peer.example",
	}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Text != "remote ok" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if gotAddress != "https://peer.example" {
		t.Fatalf("expected factory to receive the descriptor's address, got %q", gotAddress)
	}
}

func TestInvoke_KeyedResolvesThroughResolver(t *testing.T) {
	caller := &fakeCaller{result: a2a.SendMessageResult{Message: &a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: "keyed ok"}},
	}}}
	inv := New(nil, &fakeKeyedResolver{caller: caller}, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{
		Name: "keyed-light", Transport: registry.TransportKeyed, Address: "locator-key",
	}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Text != "keyed ok" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestInvoke_KeyedResolveFailureBecomesReplyKindError(t *testing.T) {
	inv := New(nil, &fakeKeyedResolver{err: errors.New("locator unavailable")}, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{
		Name: "keyed-light", Transport: registry.TransportKeyed, Address: "locator-key",
	}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface resolve errors via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError, got %+v", reply)
	}
}

func TestInvoke_ClassifiesTaskStates(t *testing.T) {
	cases := []struct {
		name  string
		state string
		want  ReplyKind
	}{
		{"inputRequired", a2a.TaskStateInputRequired, ReplyKindNeedsInput},
		{"working", a2a.TaskStateWorking, ReplyKindPerformed},
		{"completed", a2a.TaskStateCompleted, ReplyKindPerformed},
		{"failed", a2a.TaskStateFailed, ReplyKindError},
		{"cancelled", a2a.TaskStateCancelled, ReplyKindError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := &fakeLocal{result: a2a.SendMessageResult{Task: &a2a.Task{
				ID:     "task-1",
				Status: a2a.TaskStatus{State: tc.state},
			}}}
			// A long-running descriptor is entitled to return any of these
			// states; the contract-violation gate below covers the case
			// where the descriptor disclaims long-running capability.
			desc := &registry.AgentDescriptor{Name: "timer", Transport: registry.TransportLocal}
			desc.Capabilities.LongRunning = true
			inv := New(map[string]LocalHandle{"timer": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

			reply, err := inv.Invoke(context.Background(), desc, a2a.SendMessageRequest{}, 0)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if reply.Kind != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, reply.Kind)
			}
			if reply.TaskID != "task-1" {
				t.Fatalf("expected task id to propagate, got %q", reply.TaskID)
			}
		})
	}
}

func TestInvoke_NonLongRunningAgentReturningWorkingTaskIsContractViolation(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{Task: &a2a.Task{
		ID:     "task-1",
		Status: a2a.TaskStatus{State: a2a.TaskStateWorking},
	}}}
	// Capabilities.LongRunning defaults to false: this agent never declared
	// it could hand back a non-terminal task.
	desc := &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), desc, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface a contract violation via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError for a non-long-running agent returning a working task, got %+v", reply)
	}
	if reply.TaskID != "task-1" {
		t.Fatalf("expected task id to propagate, got %q", reply.TaskID)
	}
}

func TestInvoke_NonLongRunningAgentReturningInputRequiredTaskIsContractViolation(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{Task: &a2a.Task{
		ID:     "task-1",
		Status: a2a.TaskStatus{State: a2a.TaskStateInputRequired},
	}}}
	desc := &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), desc, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface a contract violation via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError for a non-long-running agent returning an input-required task, got %+v", reply)
	}
}

func TestInvoke_NonLongRunningAgentReturningCompletedTaskIsStillPerformed(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{Task: &a2a.Task{
		ID:     "task-1",
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
	}}}
	desc := &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), desc, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Kind != ReplyKindPerformed {
		t.Fatalf("a completed task from a non-long-running agent is not a contract violation, got %+v", reply)
	}
}

func TestInvoke_NeitherMessageNorTaskIsAnError(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{}}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 0, 0)

	reply, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected ReplyKindError for an empty result, got %+v", reply)
	}
}

func TestInvoke_RateLimiterBlocksBeyondBurst(t *testing.T) {
	local := &fakeLocal{result: a2a.SendMessageResult{Message: &a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: "ok"}},
	}}}
	inv := New(map[string]LocalHandle{"light": local}, nil, nil, telemetry.NewNoopLogger(), 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// First call consumes the single burst token immediately.
	if _, err := inv.Invoke(context.Background(), &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	// Second call within the short-lived context should hit the limiter wait
	// and come back as a context-deadline reply rather than blocking forever.
	reply, err := inv.Invoke(ctx, &registry.AgentDescriptor{Name: "light", Transport: registry.TransportLocal}, a2a.SendMessageRequest{}, 0)
	if err != nil {
		t.Fatalf("Invoke should not surface limiter context errors via the error return: %v", err)
	}
	if reply.Kind != ReplyKindError {
		t.Fatalf("expected the limiter wait to time out into ReplyKindError, got %+v", reply)
	}
}
