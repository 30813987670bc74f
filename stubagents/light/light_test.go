package light

import (
	"context"
	"strings"
	"testing"

	"github.com/homemesh/orchestrator/internal/a2a"
)

func send(t *testing.T, text string) a2a.SendMessageResult {
	t.Helper()
	res, err := New().HandleMessage(context.Background(), a2a.SendMessageRequest{Message: a2a.Message{
		ContextID: "ctx-1",
		Parts:     []a2a.MessagePart{{Kind: "text", Text: text}},
	}})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Message == nil {
		t.Fatal("expected a plain message reply")
	}
	return res
}

func TestHandleMessage_TurnOnMentionsRoom(t *testing.T) {
	res := send(t, "turn on the kitchen lights")
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "kitchen") || !strings.Contains(text, "turned on") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_TurnOffMentionsRoom(t *testing.T) {
	res := send(t, "turn off the bedroom lights")
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "bedroom") || !strings.Contains(text, "turned off") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_DimPercentage(t *testing.T) {
	res := send(t, "dim the living room lights to 40%")
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "living room") || !strings.Contains(text, "40%") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_NoRoomMentionedFallsBackToGeneric(t *testing.T) {
	res := send(t, "turn the lights on")
	text := res.Message.Parts[0].Text
	if !strings.Contains(text, "turned on") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_PreservesContextID(t *testing.T) {
	res := send(t, "turn on the lights")
	if res.Message.ContextID != "ctx-1" {
		t.Fatalf("expected context id to propagate, got %q", res.Message.ContextID)
	}
}
