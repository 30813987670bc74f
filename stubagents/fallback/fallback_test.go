package fallback

import (
	"context"
	"strings"
	"testing"

	"github.com/homemesh/orchestrator/internal/a2a"
)

func TestHandleMessage_ReferencesTheOriginalRequest(t *testing.T) {
	res, err := New().HandleMessage(context.Background(), a2a.SendMessageRequest{Message: a2a.Message{
		ContextID: "ctx-1",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: "unlock the garage door"}},
	}})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Message == nil {
		t.Fatal("expected a plain message reply")
	}
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "unlock the garage door") {
		t.Fatalf("expected the degrade message to reference the request, got %q", text)
	}
	if res.Message.ContextID != "ctx-1" {
		t.Fatalf("expected context id to propagate, got %q", res.Message.ContextID)
	}
}

func TestHandleMessage_EmptyTextStillRepliesPolitely(t *testing.T) {
	res, err := New().HandleMessage(context.Background(), a2a.SendMessageRequest{Message: a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: "   "}},
	}})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "not able to help") {
		t.Fatalf("unexpected reply: %q", text)
	}
}
