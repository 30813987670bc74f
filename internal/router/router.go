// Package router implements the Router Executor: it consults the Prompt
// Cache, otherwise asks a model.Client for a structured routing decision
// validated against a JSON Schema, with fallback and clarification paths.
// Adapted from the retry-and-fallback idiom of runtime/a2a/retry/retry.go
// and the cache-then-compute idiom of runtime/registry/manager.go.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/homemesh/orchestrator/internal/a2a/retry"
	"github.com/homemesh/orchestrator/internal/cache"
	"github.com/homemesh/orchestrator/internal/model"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

type (
	// Decision is the routing outcome for one request.
	Decision struct {
		AgentID          string
		AdditionalAgents []string
		Reasoning        string
		Confidence       float64
		CacheSourced     bool
		Clarification    bool
	}

	// Options configures the Router Executor.
	Options struct {
		FallbackAgent          string
		ConfidenceFloor        float64
		CacheAdmissionConfidence float64
		SingleAgent            bool
		Timeout                time.Duration
		RetryConfig            retry.Config
	}

	// Executor implements the routing algorithm.
	Executor struct {
		model  model.Client
		cache  *cache.Cache
		regs   registry.Store
		log    telemetry.Logger
		opts   Options
		schema *jsonschema.Schema
	}

	rawDecision struct {
		AgentID          string   `json:"agentId"`
		Reasoning        string   `json:"reasoning"`
		Confidence       json.Number `json:"confidence"`
		AdditionalAgents []string `json:"additionalAgents"`
	}
)

// decisionSchemaJSON is the JSON Schema the model's structured routing
// reply must validate against before the decision is trusted.
const decisionSchemaJSON = `{
  "type": "object",
  "properties": {
    "agentId": {"type": "string"},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "additionalAgents": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["agentId", "reasoning", "confidence"]
}`

// New constructs an Executor. cache may be nil to disable the Prompt Cache.
func New(modelClient model.Client, promptCache *cache.Cache, regs registry.Store, log telemetry.Logger, opts Options) (*Executor, error) {
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = 0.5
	}
	if opts.CacheAdmissionConfidence <= 0 {
		opts.CacheAdmissionConfidence = 0.7
	}
	if opts.FallbackAgent == "" {
		opts.FallbackAgent = "fallback"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.RetryConfig.MaxAttempts <= 0 {
		opts.RetryConfig = retry.DefaultConfig()
		opts.RetryConfig.MaxAttempts = 2
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("routing-decision.json", strings.NewReader(decisionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("router: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("routing-decision.json")
	if err != nil {
		return nil, fmt.Errorf("router: compile schema: %w", err)
	}
	return &Executor{model: modelClient, cache: promptCache, regs: regs, log: log, opts: opts, schema: schema}, nil
}

// Route produces a Decision for the given request text.
func (e *Executor) Route(ctx context.Context, requestText string) Decision {
	if e.cache != nil {
		if entry, ok, err := e.cache.Lookup(ctx, requestText); err == nil && ok {
			var cached rawDecision
			if err := json.Unmarshal(entry.Decision, &cached); err == nil {
				d := toDecision(cached)
				d.CacheSourced = true
				return d
			}
		} else if err != nil {
			e.log.Warn(ctx, "prompt cache lookup failed", "error", err)
		}
	}

	descs, err := e.regs.List(ctx)
	if err != nil {
		e.log.Warn(ctx, "registry list failed, falling back", "error", err)
		return e.fallback("agent registry unavailable: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var decision Decision
	err = retry.Do(ctx, e.opts.RetryConfig, func(ctx context.Context) error {
		raw, rerr := e.askModel(ctx, requestText, descs)
		if rerr != nil {
			return rerr
		}
		decision = toDecision(raw)
		return nil
	})
	if err != nil {
		e.log.Warn(ctx, "router model call failed, falling back", "error", err)
		return e.fallback("routing model unavailable: " + err.Error())
	}

	decision = e.validate(decision, descs)
	if decision.Confidence >= e.opts.CacheAdmissionConfidence && e.cache != nil && !decision.Clarification {
		payload, merr := json.Marshal(rawDecision{
			AgentID: decision.AgentID, Reasoning: decision.Reasoning,
			Confidence: json.Number(fmt.Sprintf("%.4f", decision.Confidence)), AdditionalAgents: decision.AdditionalAgents,
		})
		if merr == nil {
			if serr := e.cache.Store(ctx, requestText, payload); serr != nil {
				e.log.Warn(ctx, "prompt cache store failed", "error", serr)
			}
		}
	}
	return decision
}

func (e *Executor) askModel(ctx context.Context, requestText string, descs []*registry.AgentDescriptor) (rawDecision, error) {
	system := buildSystemPrompt(descs)
	req := &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: system}}},
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: requestText}}},
		},
		ModelClass: model.ModelClassSmall,
		MaxTokens:  512,
	}
	resp, err := e.model.Complete(ctx, req)
	if err != nil {
		return rawDecision{}, err
	}
	text := concatText(resp.Content)
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return rawDecision{}, fmt.Errorf("router: model reply is not valid JSON: %w", err)
	}
	if err := e.schema.Validate(decoded); err != nil {
		return rawDecision{}, fmt.Errorf("router: model reply failed schema validation: %w", err)
	}
	var raw rawDecision
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return rawDecision{}, fmt.Errorf("router: decode routing decision: %w", err)
	}
	return raw, nil
}

func (e *Executor) validate(d Decision, descs []*registry.AgentDescriptor) Decision {
	known := make(map[string]bool, len(descs))
	for _, desc := range descs {
		known[desc.Name] = true
	}
	if d.AgentID == "" || !known[d.AgentID] {
		d.AgentID = e.opts.FallbackAgent
		d.Confidence = 0
		d.Reasoning = "downgraded to fallback agent: routed agent not recognized"
	}
	if e.opts.SingleAgent {
		d.AdditionalAgents = nil
	}
	if d.Confidence < e.opts.ConfidenceFloor && looksAmbiguous(d.Reasoning) {
		d.Clarification = true
	}
	return d
}

func (e *Executor) fallback(reason string) Decision {
	return Decision{AgentID: e.opts.FallbackAgent, Reasoning: reason, Confidence: 0}
}

func toDecision(raw rawDecision) Decision {
	conf, err := raw.Confidence.Float64()
	if err != nil {
		// Malformed confidence: treat as fallback-worthy rather than
		// guessing a numeric value.
		return Decision{AgentID: "", Reasoning: "malformed confidence value", Confidence: 0}
	}
	return Decision{
		AgentID:          raw.AgentID,
		AdditionalAgents: raw.AdditionalAgents,
		Reasoning:        raw.Reasoning,
		Confidence:       conf,
	}
}

func looksAmbiguous(reasoning string) bool {
	lower := strings.ToLower(reasoning)
	return strings.Contains(lower, "ambiguous") || strings.Contains(lower, "unclear") || strings.Contains(lower, "could mean")
}

func buildSystemPrompt(descs []*registry.AgentDescriptor) string {
	var b strings.Builder
	b.WriteString("You route home-automation requests to the single best-suited agent. ")
	b.WriteString("Respond with a JSON object: {\"agentId\": string, \"reasoning\": string, \"confidence\": number between 0 and 1, \"additionalAgents\": [string] (optional)}. ")
	b.WriteString("Available agents:\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

func concatText(parts []model.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if v, ok := p.(model.TextPart); ok {
			b.WriteString(v.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
