// Package fallback implements the configured fallback agent the Router
// Executor routes to when it cannot confidently match a request to a
// registered domain agent (SPEC_FULL.md §4.4, §8 scenario 4).
package fallback

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/invoker"
)

// Agent is the fallback general-assistant agent.
type Agent struct{}

var _ invoker.LocalHandle = (*Agent)(nil)

// New constructs a fallback Agent.
func New() *Agent { return &Agent{} }

// HandleMessage always replies with a polite degrade, referencing the
// capability it could not find.
func (a *Agent) HandleMessage(_ context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	text := strings.TrimSpace(textOf(req.Message))
	reply := "I'm not able to help with that yet — none of my connected devices cover that request."
	if text != "" {
		reply = "I'm not able to help with \"" + text + "\" yet — none of my connected devices cover that request."
	}

	return a2a.SendMessageResult{Message: &a2a.Message{
		Role:      "agent",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: reply}},
		ContextID: req.Message.ContextID,
		MessageID: uuid.NewString(),
		Kind:      "message",
	}}, nil
}

func textOf(msg a2a.Message) string {
	for _, p := range msg.Parts {
		if p.Kind == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
