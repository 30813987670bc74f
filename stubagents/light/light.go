// Package light implements a stub lighting-control domain agent: a cheap,
// deterministic in-process stand-in for the seed scenarios in
// SPEC_FULL.md §8, exercising the same invoker.LocalHandle path a real
// agent would use. Adapted from
// integration_tests/fixtures/a2a_agent/test_agent.go's simple
// keyword/regex-driven handler style.
package light

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

var percentPattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// Agent is a stub lighting-control agent.
type Agent struct{}

var _ invoker.LocalHandle = (*Agent)(nil)

// New constructs a light Agent.
func New() *Agent { return &Agent{} }

// HandleMessage inspects the request text for an on/off/dim instruction and
// replies with a short confirmation sentence.
func (a *Agent) HandleMessage(_ context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	text := strings.ToLower(textOf(req.Message))
	room := extractRoom(text)

	var reply string
	switch m := percentPattern.FindStringSubmatch(text); {
	case len(m) == 2:
		level, _ := strconv.Atoi(m[1])
		reply = fmt.Sprintf("I've dimmed the %s lights to %d%%.", room, level)
	case strings.Contains(text, "off"):
		reply = fmt.Sprintf("I've turned off the %s lights.", room)
	case strings.Contains(text, "on"):
		reply = fmt.Sprintf("I've turned on the %s lights.", room)
	default:
		reply = fmt.Sprintf("I've adjusted the %s lights.", room)
	}

	return a2a.SendMessageResult{Message: &a2a.Message{
		Role:      "agent",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: reply}},
		ContextID: req.Message.ContextID,
		MessageID: uuid.NewString(),
		Kind:      "message",
	}}, nil
}

func extractRoom(text string) string {
	for _, room := range []string{"kitchen", "living room", "bedroom", "bathroom", "hallway"} {
		if strings.Contains(text, room) {
			return room
		}
	}
	return "the"
}

func textOf(msg a2a.Message) string {
	for _, p := range msg.Parts {
		if p.Kind == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
