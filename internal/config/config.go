// Package config loads the typed configuration for the orchestrator core,
// following the defaults-then-file-then-env-overlay loading idiom of
// cklxx-elephant.ai/internal/config/loader.go, adapted from a CLI tool's
// config surface to a long-running service's.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// AgentConfig is the per-agent override block under `agent.<name>`.
	AgentConfig struct {
		TimeoutMs   int  `yaml:"timeoutMs"`
		Priority    int  `yaml:"priority"`
		LongRunning bool `yaml:"longRunning"`
	}

	// RedisConfig configures a Redis connection shared by the session
	// store backend and the cluster coordination backend.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	}

	// MongoConfig configures the optional document-store backend.
	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// TemporalConfig configures the optional Temporal-backed workflow
	// engine backend.
	TemporalConfig struct {
		HostPort  string `yaml:"hostPort"`
		Namespace string `yaml:"namespace"`
		TaskQueue string `yaml:"taskQueue"`
	}

	// BackendConfig selects which concrete implementation backs each
	// pluggable abstraction.
	BackendConfig struct {
		SessionStore  string         `yaml:"sessionStore"`
		DocumentStore string         `yaml:"documentStore"`
		Engine        string         `yaml:"engine"`
		Redis         RedisConfig    `yaml:"redis"`
		Mongo         MongoConfig    `yaml:"mongo"`
		Temporal      TemporalConfig `yaml:"temporal"`
	}

	// RateLimitConfig is a token-bucket rate limit expressed in the unit
	// natural to its caller.
	RateLimitConfig struct {
		TokensPerMinute   float64 `yaml:"tokensPerMinute"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	}

	// RouterModelConfig selects the router's model provider and tiers.
	RouterModelConfig struct {
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model"`
		HighModel  string `yaml:"highModel"`
		SmallModel string `yaml:"smallModel"`
	}

	// RouterConfig configures the Router Executor.
	RouterConfig struct {
		TimeoutMs                int               `yaml:"timeoutMs"`
		ConfidenceFloor          float64           `yaml:"confidenceFloor"`
		CacheAdmissionConfidence float64           `yaml:"cacheAdmissionConfidence"`
		Model                    RouterModelConfig `yaml:"model"`
		RateLimit                RateLimitConfig   `yaml:"rateLimit"`
	}

	// CacheConfig configures the Prompt Cache.
	CacheConfig struct {
		Enabled             bool            `yaml:"enabled"`
		MaxEntries           int             `yaml:"maxEntries"`
		SimilarityThreshold float32         `yaml:"similarityThreshold"`
		TTLSeconds           int             `yaml:"ttlSeconds"`
		Embedding           EmbeddingConfig `yaml:"embedding"`
	}

	// EmbeddingConfig selects the semantic-similarity fallback's embedding
	// backend. Provider == "" disables the semantic fallback entirely,
	// leaving the cache on exact-hash matching only.
	EmbeddingConfig struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"baseUrl"`
	}

	// SessionConfig configures session-snapshot retention.
	SessionConfig struct {
		TTLSeconds int `yaml:"ttlSeconds"`
	}

	// TaskConfig configures task-snapshot retention.
	TaskConfig struct {
		TTLSeconds int `yaml:"ttlSeconds"`
	}

	// FallbackConfig names the agent the router targets when it cannot
	// confidently match a request to any other registered agent.
	FallbackConfig struct {
		AgentID string `yaml:"agentId"`
	}

	// ClusterConfig enables cross-process coordination (per-context
	// request queueing, cache replication) via Pulse rmap.
	ClusterConfig struct {
		Enabled bool        `yaml:"enabled"`
		Redis   RedisConfig `yaml:"redis"`
	}

	// TelemetryConfig configures logging and tracing export.
	TelemetryConfig struct {
		LogFormat    string `yaml:"logFormat"`
		OTLPEndpoint string `yaml:"otlpEndpoint"`
	}

	// InvokerConfig configures the Agent Executor Wrapper.
	InvokerConfig struct {
		RateLimit RateLimitConfig `yaml:"rateLimit"`
	}

	// RequestConfig bounds overall per-request processing.
	RequestConfig struct {
		TimeoutMs int `yaml:"timeoutMs"`
	}

	// Config is the complete, typed orchestrator configuration.
	Config struct {
		Request   RequestConfig           `yaml:"request"`
		Router    RouterConfig            `yaml:"router"`
		Cache     CacheConfig             `yaml:"cache"`
		Agent     map[string]AgentConfig  `yaml:"agent"`
		Session   SessionConfig           `yaml:"session"`
		Task      TaskConfig              `yaml:"task"`
		Fallback  FallbackConfig          `yaml:"fallback"`
		Backend   BackendConfig           `yaml:"backend"`
		Invoker   InvokerConfig           `yaml:"invoker"`
		Cluster   ClusterConfig           `yaml:"cluster"`
		Telemetry TelemetryConfig         `yaml:"telemetry"`
	}

	// EnvLookup resolves an environment variable by name, mirroring the
	// pack's config-loader seam so tests can substitute a fake
	// environment instead of touching process-global state.
	EnvLookup func(string) (string, bool)

	// Option customizes Load.
	Option func(*loadOptions)

	loadOptions struct {
		envLookup EnvLookup
		readFile  func(string) ([]byte, error)
	}
)

// DefaultEnvLookup resolves against the process environment.
func DefaultEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

// WithEnv supplies a custom environment lookup, e.g. for tests.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader supplies a custom file reader, e.g. for tests.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// Load reads the YAML file at path (if non-empty and it exists), applies
// `${VAR}` environment interpolation to every string field, then fills in
// defaults for anything left unset. path == "" returns pure defaults.
func Load(path string, opts ...Option) (Config, error) {
	options := loadOptions{envLookup: DefaultEnvLookup, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(&options)
	}

	var cfg Config
	if path != "" {
		data, err := options.readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyDefaults(cfg), nil
			}
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	expandEnv(&cfg, options.envLookup)
	return applyDefaults(cfg), nil
}

func expandEnv(cfg *Config, lookup EnvLookup) {
	expand := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return v
		}
		return os.Expand(v, func(key string) string {
			if resolved, ok := lookup(key); ok {
				return resolved
			}
			return ""
		})
	}
	cfg.Backend.Redis.Addr = expand(cfg.Backend.Redis.Addr)
	cfg.Backend.Redis.Username = expand(cfg.Backend.Redis.Username)
	cfg.Backend.Redis.Password = expand(cfg.Backend.Redis.Password)
	cfg.Backend.Mongo.URI = expand(cfg.Backend.Mongo.URI)
	cfg.Backend.Mongo.Database = expand(cfg.Backend.Mongo.Database)
	cfg.Backend.Temporal.HostPort = expand(cfg.Backend.Temporal.HostPort)
	cfg.Backend.Temporal.Namespace = expand(cfg.Backend.Temporal.Namespace)
	cfg.Backend.Temporal.TaskQueue = expand(cfg.Backend.Temporal.TaskQueue)
	cfg.Cluster.Redis.Addr = expand(cfg.Cluster.Redis.Addr)
	cfg.Cluster.Redis.Username = expand(cfg.Cluster.Redis.Username)
	cfg.Cluster.Redis.Password = expand(cfg.Cluster.Redis.Password)
	cfg.Telemetry.OTLPEndpoint = expand(cfg.Telemetry.OTLPEndpoint)
	cfg.Router.Model.Provider = expand(cfg.Router.Model.Provider)
	cfg.Router.Model.Model = expand(cfg.Router.Model.Model)
	cfg.Router.Model.HighModel = expand(cfg.Router.Model.HighModel)
	cfg.Router.Model.SmallModel = expand(cfg.Router.Model.SmallModel)
	cfg.Fallback.AgentID = expand(cfg.Fallback.AgentID)
	cfg.Cache.Embedding.Provider = expand(cfg.Cache.Embedding.Provider)
	cfg.Cache.Embedding.Model = expand(cfg.Cache.Embedding.Model)
	cfg.Cache.Embedding.BaseURL = expand(cfg.Cache.Embedding.BaseURL)
}

// applyDefaults fills in every zero-valued field with the default named in
// SPEC_FULL.md §6 / §9.
func applyDefaults(cfg Config) Config {
	if cfg.Request.TimeoutMs == 0 {
		cfg.Request.TimeoutMs = 5000
	}
	if cfg.Router.TimeoutMs == 0 {
		cfg.Router.TimeoutMs = 1000
	}
	if cfg.Router.ConfidenceFloor == 0 {
		cfg.Router.ConfidenceFloor = 0.5
	}
	if cfg.Router.CacheAdmissionConfidence == 0 {
		cfg.Router.CacheAdmissionConfidence = 0.7
	}
	if cfg.Router.Model.Provider == "" {
		cfg.Router.Model.Provider = "anthropic"
	}
	if cfg.Router.RateLimit.TokensPerMinute == 0 {
		cfg.Router.RateLimit.TokensPerMinute = 60000
	}
	if cfg.Invoker.RateLimit.RequestsPerSecond == 0 {
		cfg.Invoker.RateLimit.RequestsPerSecond = 50
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 500
	}
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = 0.92
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 0 // indefinite, subject to the LRU bound
	}
	if cfg.Cache.Embedding.Provider == "ollama" && cfg.Cache.Embedding.Model == "" {
		cfg.Cache.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = 24 * 3600
	}
	if cfg.Task.TTLSeconds == 0 {
		cfg.Task.TTLSeconds = 48 * 3600
	}
	if cfg.Backend.SessionStore == "" {
		cfg.Backend.SessionStore = "inmem"
	}
	if cfg.Backend.DocumentStore == "" {
		cfg.Backend.DocumentStore = "none"
	}
	if cfg.Backend.Engine == "" {
		cfg.Backend.Engine = "inmem"
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = "text"
	}
	return cfg
}

// RequestTimeout returns the configured overall request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Request.TimeoutMs) * time.Millisecond
}

// RouterTimeout returns the configured router-call deadline.
func (c Config) RouterTimeout() time.Duration {
	return time.Duration(c.Router.TimeoutMs) * time.Millisecond
}

// SessionTTL returns the configured session-snapshot retention.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// TaskTTL returns the configured task-snapshot retention.
func (c Config) TaskTTL() time.Duration {
	return time.Duration(c.Task.TTLSeconds) * time.Second
}

// CacheTTL returns the configured prompt-cache entry retention. Zero means
// indefinite (subject to the MaxEntries LRU bound, which applies only when
// the semantic index is enabled).
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// AgentTimeout returns the configured per-agent invocation timeout, or
// fallback if the agent has no override.
func (c Config) AgentTimeout(name string, fallback time.Duration) time.Duration {
	if a, ok := c.Agent[name]; ok && a.TimeoutMs > 0 {
		return time.Duration(a.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// AgentPriority orders the configured agent names by their `priority`
// field ascending (lower sorts first), for building the aggregator's
// Priority list. Agents without an explicit entry are omitted; callers
// append the registry's remaining agent names after this list.
func (c Config) AgentPriority() []string {
	type named struct {
		name     string
		priority int
	}
	named2 := make([]named, 0, len(c.Agent))
	for name, a := range c.Agent {
		named2 = append(named2, named{name: name, priority: a.Priority})
	}
	// stable insertion sort: the map is small (one entry per known agent)
	// and SPEC_FULL.md does not define tie-breaking beyond "stable among
	// themselves", which a map iteration order cannot give us on its own,
	// so break ties by name for determinism.
	for i := 1; i < len(named2); i++ {
		for j := i; j > 0 && (named2[j].priority < named2[j-1].priority ||
			(named2[j].priority == named2[j-1].priority && named2[j].name < named2[j-1].name)); j-- {
			named2[j], named2[j-1] = named2[j-1], named2[j]
		}
	}
	out := make([]string, len(named2))
	for i, n := range named2 {
		out[i] = n.name
	}
	return out
}
