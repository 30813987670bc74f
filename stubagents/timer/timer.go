// Package timer implements a stub long-running domain agent: setting a
// timer is modeled as a task that immediately enters the "working" state
// rather than completing synchronously, per SPEC_FULL.md §8 scenario 6.
// Its registry.AgentDescriptor must declare Capabilities.LongRunning so the
// invoker classifies this reply as a performed long-running action rather
// than a contract violation.
package timer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/invoker"
)

var durationPattern = regexp.MustCompile(`(\d+)\s*-?\s*(minute|min|second|sec|hour)`)

// Agent is a stub timer agent.
type Agent struct{}

var _ invoker.LocalHandle = (*Agent)(nil)

// New constructs a timer Agent.
func New() *Agent { return &Agent{} }

// HandleMessage always replies with a task in the "working" state: setting
// a timer is, by definition, not finished the instant it's acknowledged.
func (a *Agent) HandleMessage(_ context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	text := strings.ToLower(textOf(req.Message))

	label := "a timer"
	if m := durationPattern.FindStringSubmatch(text); len(m) == 3 {
		n, _ := strconv.Atoi(m[1])
		label = fmt.Sprintf("a %d-%s timer", n, pluralUnit(m[2]))
	}
	if subject := extractSubject(text); subject != "" {
		label += " for " + subject
	}

	taskID := uuid.NewString()
	msg := a2a.Message{
		Role:      "agent",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: "I've started " + label + "."}},
		ContextID: req.Message.ContextID,
		MessageID: uuid.NewString(),
		Kind:      "message",
	}
	return a2a.SendMessageResult{Task: &a2a.Task{
		ID:        taskID,
		ContextID: req.Message.ContextID,
		Status:    a2a.NewTaskStatus(a2a.TaskStateWorking, &msg),
		History:   []a2a.Message{req.Message, msg},
	}}, nil
}

func pluralUnit(unit string) string {
	switch unit {
	case "min":
		return "minute"
	case "sec":
		return "second"
	default:
		return unit
	}
}

func extractSubject(text string) string {
	idx := strings.Index(text, "for ")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len("for "):])
}

func textOf(msg a2a.Message) string {
	for _, p := range msg.Parts {
		if p.Kind == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
