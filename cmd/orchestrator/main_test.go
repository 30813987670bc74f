package main

import (
	"context"
	"os"
	"testing"

	"github.com/homemesh/orchestrator/internal/config"
	"github.com/homemesh/orchestrator/internal/engine"
	"github.com/homemesh/orchestrator/internal/registry/memory"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

func TestFirstNonEmpty_ReturnsFirstNonEmptyValue(t *testing.T) {
	if got := firstNonEmpty("", "", "b", "c"); got != "b" {
		t.Fatalf("expected %q, got %q", "b", got)
	}
}

func TestFirstNonEmpty_AllEmptyReturnsEmpty(t *testing.T) {
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected an empty string, got %q", got)
	}
}

func TestMustModelClient_BedrockProviderIsUnsupportedWithoutARuntimeClient(t *testing.T) {
	cfg := config.Config{}
	cfg.Router.Model.Provider = "bedrock"
	if _, err := mustModelClient(cfg); err == nil {
		t.Fatal("expected an error for the bedrock provider, which needs an externally-bootstrapped runtime client")
	}
}

func TestMustModelClient_AnthropicRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Config{}
	cfg.Router.Model.Provider = "anthropic"
	if _, err := mustModelClient(cfg); err == nil {
		t.Fatal("expected an error when ANTHROPIC_API_KEY is unset")
	}
}

func TestMustModelClient_OpenAIRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := config.Config{}
	cfg.Router.Model.Provider = "openai"
	if _, err := mustModelClient(cfg); err == nil {
		t.Fatal("expected an error when OPENAI_API_KEY is unset")
	}
}

func TestMustModelClient_DefaultsToAnthropicWhenProviderUnset(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")
	cfg := config.Config{}
	_, err := mustModelClient(cfg)
	if err == nil || err.Error() != "api key is required" {
		t.Fatalf("expected the anthropic client's own api-key error, got %v", err)
	}
}

func TestMustEmbeddingProvider_DefaultsToNilWhenProviderUnset(t *testing.T) {
	cfg := config.Config{}
	if got := mustEmbeddingProvider(cfg); got != nil {
		t.Fatalf("expected a nil embedding provider by default, got %+v", got)
	}
}

func TestMustEmbeddingProvider_OllamaProviderReturnsAConfiguredEmbedder(t *testing.T) {
	cfg := config.Config{}
	cfg.Cache.Embedding.Provider = "ollama"
	cfg.Cache.Embedding.Model = "nomic-embed-text"
	if got := mustEmbeddingProvider(cfg); got == nil {
		t.Fatal("expected a non-nil embedding provider for the ollama provider")
	}
}

func TestMustEngine_DefaultsToInMemoryEngine(t *testing.T) {
	cfg := config.Config{}
	eng, err := mustEngine(cfg, telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), telemetry.NewNoopTracer())
	if err != nil {
		t.Fatalf("mustEngine: %v", err)
	}
	if err := eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name:    "w",
		Handler: func(engine.WorkflowContext, any) (any, error) { return nil, nil },
	}); err != nil {
		t.Fatalf("expected a working in-memory engine, got error registering a workflow: %v", err)
	}
}

func TestMustRegisterStubAgents_RegistersAllFiveAgents(t *testing.T) {
	regs := memory.New()
	mustRegisterStubAgents(context.Background(), regs)

	all, err := regs.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 registered stub agents, got %d", len(all))
	}

	names := map[string]bool{}
	for _, d := range all {
		names[d.Name] = true
	}
	for _, want := range []string{"light", "music", "climate", "timer", "fallback"} {
		if !names[want] {
			t.Fatalf("expected %q to be registered, got %v", want, names)
		}
	}

	timer, err := regs.Get(context.Background(), "timer")
	if err != nil {
		t.Fatalf("get timer: %v", err)
	}
	if !timer.Capabilities.LongRunning {
		t.Fatal("expected the timer agent to be marked long-running")
	}
}
