package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Request.TimeoutMs != 5000 {
		t.Fatalf("expected default request timeout 5000, got %d", cfg.Request.TimeoutMs)
	}
	if cfg.Router.ConfidenceFloor != 0.5 {
		t.Fatalf("expected default confidence floor 0.5, got %f", cfg.Router.ConfidenceFloor)
	}
	if cfg.Backend.SessionStore != "inmem" {
		t.Fatalf("expected default session store inmem, got %q", cfg.Backend.SessionStore)
	}
	if cfg.Fallback.AgentID != "" {
		t.Fatalf("expected no default fallback agent id, got %q", cfg.Fallback.AgentID)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Engine != "inmem" {
		t.Fatalf("expected default engine inmem, got %q", cfg.Backend.Engine)
	}
}

func TestLoad_UnreadableFileIsAnError(t *testing.T) {
	_, err := Load("ignored.yaml", WithFileReader(func(string) ([]byte, error) {
		return nil, errors.New("permission denied")
	}))
	if err == nil {
		t.Fatal("expected an error from an unreadable config file")
	}
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	yamlBody := `
request:
  timeoutMs: 9000
router:
  confidenceFloor: 0.6
cache:
  enabled: true
  maxEntries: 250
fallback:
  agentId: fallback
backend:
  sessionStore: redis
  redis:
    addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Request.TimeoutMs != 9000 {
		t.Fatalf("expected request timeout 9000, got %d", cfg.Request.TimeoutMs)
	}
	if cfg.Router.ConfidenceFloor != 0.6 {
		t.Fatalf("expected confidence floor 0.6, got %f", cfg.Router.ConfidenceFloor)
	}
	if !cfg.Cache.Enabled || cfg.Cache.MaxEntries != 250 {
		t.Fatalf("expected cache overrides to apply, got %+v", cfg.Cache)
	}
	if cfg.Backend.SessionStore != "redis" || cfg.Backend.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis backend overrides to apply, got %+v", cfg.Backend)
	}
	// Unset fields still receive their default.
	if cfg.Router.TimeoutMs != 1000 {
		t.Fatalf("expected router timeout default 1000, got %d", cfg.Router.TimeoutMs)
	}
}

func TestLoad_EmbeddingProviderUnsetDisablesSemanticFallback(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Embedding.Provider != "" {
		t.Fatalf("expected no default embedding provider, got %q", cfg.Cache.Embedding.Provider)
	}
}

func TestLoad_OllamaEmbeddingProviderDefaultsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	yamlBody := `
cache:
  embedding:
    provider: ollama
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Embedding.Model != "nomic-embed-text" {
		t.Fatalf("expected a default ollama embedding model, got %q", cfg.Cache.Embedding.Model)
	}
}

func TestLoad_EmbeddingModelOverrideIsNotClobbered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	yamlBody := `
cache:
  embedding:
    provider: ollama
    model: custom-embed-model
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Embedding.Model != "custom-embed-model" {
		t.Fatalf("expected the configured embedding model to be kept, got %q", cfg.Cache.Embedding.Model)
	}
}

func TestLoad_EnvInterpolationAppliesToSecretBearingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	yamlBody := `
backend:
  sessionStore: redis
  redis:
    addr: ${REDIS_ADDR}
    password: ${REDIS_PASSWORD}
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	env := map[string]string{
		"REDIS_ADDR":     "prod-redis:6379",
		"REDIS_PASSWORD": "hunter2",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := Load(path, WithEnv(lookup))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Redis.Addr != "prod-redis:6379" {
		t.Fatalf("expected interpolated redis addr, got %q", cfg.Backend.Redis.Addr)
	}
	if cfg.Backend.Redis.Password != "hunter2" {
		t.Fatalf("expected interpolated redis password, got %q", cfg.Backend.Redis.Password)
	}
}

func TestLoad_UnresolvedEnvVarInterpolatesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  mongo:\n    uri: ${MONGO_URI}\n"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path, WithEnv(func(string) (string, bool) { return "", false }))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Mongo.URI != "" {
		t.Fatalf("expected unresolved env var to interpolate to empty, got %q", cfg.Backend.Mongo.URI)
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := Config{
		Request: RequestConfig{TimeoutMs: 5000},
		Router:  RouterConfig{TimeoutMs: 1000},
		Session: SessionConfig{TTLSeconds: 3600},
		Task:    TaskConfig{TTLSeconds: 7200},
		Cache:   CacheConfig{TTLSeconds: 600},
	}
	if got := cfg.RequestTimeout(); got != 5*time.Second {
		t.Fatalf("RequestTimeout: got %v", got)
	}
	if got := cfg.RouterTimeout(); got != time.Second {
		t.Fatalf("RouterTimeout: got %v", got)
	}
	if got := cfg.SessionTTL(); got != time.Hour {
		t.Fatalf("SessionTTL: got %v", got)
	}
	if got := cfg.TaskTTL(); got != 2*time.Hour {
		t.Fatalf("TaskTTL: got %v", got)
	}
	if got := cfg.CacheTTL(); got != 10*time.Minute {
		t.Fatalf("CacheTTL: got %v", got)
	}
}

func TestConfig_AgentTimeoutFallsBackWhenUnset(t *testing.T) {
	cfg := Config{Agent: map[string]AgentConfig{
		"light": {TimeoutMs: 3000},
	}}
	if got := cfg.AgentTimeout("light", 2*time.Second); got != 3*time.Second {
		t.Fatalf("expected configured override, got %v", got)
	}
	if got := cfg.AgentTimeout("music", 2*time.Second); got != 2*time.Second {
		t.Fatalf("expected fallback for unconfigured agent, got %v", got)
	}
}

func TestConfig_AgentPriorityOrdersAscendingThenByName(t *testing.T) {
	cfg := Config{Agent: map[string]AgentConfig{
		"music":   {Priority: 2},
		"light":   {Priority: 1},
		"climate": {Priority: 1},
		"timer":   {Priority: 3},
	}}

	got := cfg.AgentPriority()
	want := []string{"climate", "light", "music", "timer"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestConfig_AgentPriorityIsDeterministicAcrossCalls(t *testing.T) {
	cfg := Config{Agent: map[string]AgentConfig{
		"a": {Priority: 1}, "b": {Priority: 1}, "c": {Priority: 1}, "d": {Priority: 1},
	}}
	first := cfg.AgentPriority()
	for i := 0; i < 10; i++ {
		if got := cfg.AgentPriority(); !equalStrings(got, first) {
			t.Fatalf("expected deterministic ordering, got %v then %v", first, got)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
