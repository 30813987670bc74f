package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/aggregator"
	"github.com/homemesh/orchestrator/internal/engine"
	"github.com/homemesh/orchestrator/internal/invoker"
	"github.com/homemesh/orchestrator/internal/router"
	"github.com/homemesh/orchestrator/internal/wrapper"
)

const (
	workflowName      = "orchestrator.handleRequest"
	routeActivityName = "orchestrator.route"
	invokeActivityName = "orchestrator.invokeAgent"
)

type (
	// workflowInput is what the Workflow Driver hands the engine for one
	// request. Fields are exported so a durable engine (Temporal) can
	// serialize them across the workflow/activity boundary.
	workflowInput struct {
		ContextID string
		Text      string
		Message   a2a.Message
		Metadata  map[string]any
	}

	// workflowOutput is the deterministic workflow body's result: either a
	// clarification decision or an aggregated multi-branch result.
	workflowOutput struct {
		Decision router.Decision
		Result   aggregator.Result
	}

	routeActivityInput struct {
		Text string
	}

	invokeActivityInput struct {
		AgentName string
		Message   a2a.Message
		Metadata  map[string]any
		TimeoutMs int64
	}
)

// registerWorkflow binds the fan-out/fan-in workflow body and its two
// activities (route, invoke-agent) to d.engine. Router calls and agent
// invocations run as activities since both perform I/O; the dispatch/
// aggregation control flow is the deterministic workflow body, per
// SPEC_FULL.md §4.7's "Engine abstraction" note.
func (d *Driver) registerWorkflow(ctx context.Context) error {
	if err := d.engine.RegisterActivity(ctx, engine.ActivityDefinition{
		Name:    routeActivityName,
		Handler: d.routeActivity,
		Options: engine.ActivityOptions{Timeout: d.opts.RouterActivityTimeout},
	}); err != nil {
		return fmt.Errorf("driver: register route activity: %w", err)
	}
	if err := d.engine.RegisterActivity(ctx, engine.ActivityDefinition{
		Name:    invokeActivityName,
		Handler: d.invokeActivity,
		Options: engine.ActivityOptions{Timeout: d.opts.DefaultAgentTimeout},
	}); err != nil {
		return fmt.Errorf("driver: register invoke activity: %w", err)
	}
	return d.engine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      workflowName,
		TaskQueue: d.opts.TaskQueue,
		Handler:   d.runWorkflow,
	})
}

func (d *Driver) routeActivity(ctx context.Context, input any) (any, error) {
	in, ok := input.(routeActivityInput)
	if !ok {
		return nil, fmt.Errorf("driver: route activity received unexpected input type %T", input)
	}
	return d.router.Route(ctx, in.Text), nil
}

func (d *Driver) invokeActivity(ctx context.Context, input any) (any, error) {
	in, ok := input.(invokeActivityInput)
	if !ok {
		return nil, fmt.Errorf("driver: invoke activity received unexpected input type %T", input)
	}
	req := a2a.SendMessageRequest{Message: in.Message, Metadata: in.Metadata}
	timeout := time.Duration(in.TimeoutMs) * time.Millisecond
	return d.wrapper.Run(ctx, in.AgentName, req, timeout), nil
}

// runWorkflow is the deterministic workflow body: it schedules one route
// activity, then one invoke activity per branch (dispatched in parallel via
// ExecuteActivityAsync), and aggregates the responses. Ambiguous routing
// short-circuits the fan-out entirely and returns the clarification
// decision instead.
func (d *Driver) runWorkflow(wctx engine.WorkflowContext, rawInput any) (any, error) {
	in, ok := rawInput.(workflowInput)
	if !ok {
		return nil, fmt.Errorf("driver: workflow received unexpected input type %T", rawInput)
	}

	var decision router.Decision
	err := wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{
		Name:    routeActivityName,
		Input:   routeActivityInput{Text: in.Text},
		Timeout: d.opts.RouterActivityTimeout,
	}, &decision)
	if err != nil {
		decision = router.Decision{AgentID: d.opts.FallbackAgent, Reasoning: "router activity failed: " + err.Error()}
	}

	if decision.Clarification {
		return workflowOutput{Decision: decision}, nil
	}

	agents := dedupe(append([]string{decision.AgentID}, decision.AdditionalAgents...))
	futures := make([]engine.Future, len(agents))
	for i, name := range agents {
		f, ferr := wctx.ExecuteActivityAsync(wctx.Context(), engine.ActivityRequest{
			Name: invokeActivityName,
			Input: invokeActivityInput{
				AgentName: name,
				Message:   in.Message,
				Metadata:  in.Metadata,
				TimeoutMs: d.agentTimeout(name).Milliseconds(),
			},
			Timeout: d.agentTimeout(name),
		})
		if ferr != nil {
			futures[i] = nil
		} else {
			futures[i] = f
		}
	}

	responses := make([]wrapper.Response, 0, len(agents))
	for i, f := range futures {
		var resp wrapper.Response
		if f == nil {
			resp = wrapper.Response{AgentName: agents[i], Kind: invoker.ReplyKindError, Err: "activity scheduling failed"}
		} else if err := f.Get(wctx.Context(), &resp); err != nil {
			resp = wrapper.Response{AgentName: agents[i], Kind: invoker.ReplyKindError, Err: err.Error()}
		}
		responses = append(responses, resp)
	}

	result := aggregator.Aggregate(responses, aggregator.Options{Priority: d.opts.Priority})
	return workflowOutput{Decision: decision, Result: result}, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
