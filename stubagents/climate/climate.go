// Package climate implements a stub thermostat/HVAC domain agent, mirroring
// stubagents/light's shape.
package climate

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

var degreePattern = regexp.MustCompile(`(\d{2,3})\s*(?:°|degrees)?`)

// Agent is a stub thermostat agent.
type Agent struct{}

var _ invoker.LocalHandle = (*Agent)(nil)

// New constructs a climate Agent.
func New() *Agent { return &Agent{} }

// HandleMessage inspects the request text for a target temperature or a
// warmer/cooler instruction and replies with a short confirmation sentence.
func (a *Agent) HandleMessage(_ context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	text := strings.ToLower(textOf(req.Message))

	var reply string
	switch m := degreePattern.FindStringSubmatch(text); {
	case len(m) == 2:
		deg, _ := strconv.Atoi(m[1])
		reply = fmt.Sprintf("I've set the thermostat to %d degrees.", deg)
	case strings.Contains(text, "warmer") || strings.Contains(text, "heat"):
		reply = "I've raised the heating by a few degrees."
	case strings.Contains(text, "cooler") || strings.Contains(text, "cold"):
		reply = "I've lowered the temperature by a few degrees."
	default:
		reply = "I've adjusted the thermostat."
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
