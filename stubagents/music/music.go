// Package music implements a stub media-control domain agent, mirroring
// stubagents/light's shape.
package music

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/invoker"
)

// Agent is a stub media-control agent.
type Agent struct{}

var _ invoker.LocalHandle = (*Agent)(nil)

// New constructs a music Agent.
func New() *Agent { return &Agent{} }

// HandleMessage inspects the request text for a genre/mood/artist and
// replies with a short confirmation sentence.
func (a *Agent) HandleMessage(_ context.Context, req a2a.SendMessageRequest) (a2a.SendMessageResult, error) {
	text := strings.ToLower(textOf(req.Message))

	var reply string
	switch {
	case strings.Contains(text, "stop") || strings.Contains(text, "pause"):
		reply = "I've stopped the music."
	case strings.Contains(text, "jazz"):
		reply = "I've started playing relaxing jazz."
	case strings.Contains(text, "play"):
		reply = "I've started playing music."
	default:
		reply = "I've adjusted the music."
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
