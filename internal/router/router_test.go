package router

import (
	"context"
	"errors"
	"testing"

	"github.com/homemesh/orchestrator/internal/cache"
	kvinmem "github.com/homemesh/orchestrator/internal/kv/inmem"
	"github.com/homemesh/orchestrator/internal/model"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/registry/memory"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

type fakeModel struct {
	replies []string
	calls   int
	err     error
}

func (f *fakeModel) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	f.calls++
	return &model.Response{Content: []model.Part{model.TextPart{Text: f.replies[idx]}}}, nil
}

func (f *fakeModel) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, errors.New("not implemented")
}

func newRegistry(t *testing.T) registry.Store {
	t.Helper()
	regs := memory.New()
	for _, d := range []registry.AgentDescriptor{
		{Name: "light", Description: "controls lighting"},
		{Name: "music", Description: "controls music playback"},
		{Name: "fallback", Description: "general assistant"},
	} {
		if err := regs.Register(context.Background(), d); err != nil {
			t.Fatalf("register %q: %v", d.Name, err)
		}
	}
	return regs
}

func TestRoute_HighConfidenceDecision(t *testing.T) {
	m := &fakeModel{replies: []string{`{"agentId":"light","reasoning":"turn on the lights","confidence":0.95}`}}
	e, err := New(m, nil, newRegistry(t), telemetry.NewNoopLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := e.Route(context.Background(), "turn on the kitchen lights")
	if d.AgentID != "light" {
		t.Fatalf("expected agentId light, got %q", d.AgentID)
	}
	if d.Clarification {
		t.Fatal("did not expect a clarification")
	}
	if d.CacheSourced {
		t.Fatal("did not expect a cache-sourced decision on first call")
	}
}

func TestRoute_UnknownAgentDowngradesToFallback(t *testing.T) {
	m := &fakeModel{replies: []string{`{"agentId":"garage-door","reasoning":"not actually registered","confidence":0.9}`}}
	e, err := New(m, nil, newRegistry(t), telemetry.NewNoopLogger(), Options{FallbackAgent: "fallback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := e.Route(context.Background(), "open the garage door")
	if d.AgentID != "fallback" {
		t.Fatalf("expected downgraded to fallback, got %q", d.AgentID)
	}
	if d.Confidence != 0 {
		t.Fatalf("expected confidence reset to 0, got %f", d.Confidence)
	}
}

func TestRoute_LowConfidenceAmbiguousReasoningRequestsClarification(t *testing.T) {
	m := &fakeModel{replies: []string{`{"agentId":"light","reasoning":"this request is ambiguous between light and music","confidence":0.3}`}}
	e, err := New(m, nil, newRegistry(t), telemetry.NewNoopLogger(), Options{ConfidenceFloor: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := e.Route(context.Background(), "turn it on")
	if !d.Clarification {
		t.Fatal("expected a clarification request")
	}
}

func TestRoute_RegistryFailureFallsBack(t *testing.T) {
	m := &fakeModel{replies: []string{`{"agentId":"light","reasoning":"ok","confidence":0.9}`}}
	e, err := New(m, nil, failingRegistry{}, telemetry.NewNoopLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := e.Route(context.Background(), "turn on the lights")
	if d.AgentID != "fallback" {
		t.Fatalf("expected fallback on registry failure, got %q", d.AgentID)
	}
}

func TestRoute_CacheHitSkipsModelCall(t *testing.T) {
	exact := kvinmem.New()
	promptCache, err := cache.New(exact, nil, telemetry.NewNoopLogger(), cache.Options{})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	m := &fakeModel{replies: []string{`{"agentId":"music","reasoning":"play jazz","confidence":0.9}`}}
	e, err := New(m, promptCache, newRegistry(t), telemetry.NewNoopLogger(), Options{CacheAdmissionConfidence: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	first := e.Route(ctx, "play some jazz")
	if first.CacheSourced {
		t.Fatal("first call should not be cache-sourced")
	}
	if m.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", m.calls)
	}

	second := e.Route(ctx, "play some jazz")
	if !second.CacheSourced {
		t.Fatal("expected second identical request to be served from cache")
	}
	if m.calls != 1 {
		t.Fatalf("expected no additional model call on cache hit, got %d total calls", m.calls)
	}
	if second.AgentID != "music" {
		t.Fatalf("expected cached agentId music, got %q", second.AgentID)
	}
}

func TestRoute_MalformedModelReplyFallsBack(t *testing.T) {
	m := &fakeModel{replies: []string{`not json at all`}}
	e, err := New(m, nil, newRegistry(t), telemetry.NewNoopLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := e.Route(context.Background(), "do something")
	if d.AgentID != "fallback" {
		t.Fatalf("expected fallback on malformed reply, got %q", d.AgentID)
	}
}

type failingRegistry struct{}

func (failingRegistry) Register(context.Context, registry.AgentDescriptor) error { return nil }
func (failingRegistry) Unregister(context.Context, string) error                 { return nil }
func (failingRegistry) Get(context.Context, string) (*registry.AgentDescriptor, error) {
	return nil, registry.ErrNotFound
}
func (failingRegistry) List(context.Context) ([]*registry.AgentDescriptor, error) {
	return nil, errors.New("registry unavailable")
}
func (failingRegistry) Query(context.Context, registry.QueryFilter) ([]*registry.AgentDescriptor, error) {
	return nil, errors.New("registry unavailable")
}
