package climate

import (
	"context"
	"strings"
	"testing"

	"github.com/homemesh/orchestrator/internal/a2a"
)

func send(t *testing.T, text string) string {
	t.Helper()
	res, err := New().HandleMessage(context.Background(), a2a.SendMessageRequest{Message: a2a.Message{
		Parts: []a2a.MessagePart{{Kind: "text", Text: text}},
	}})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Message == nil {
		t.Fatal("expected a plain message reply")
	}
	return res.Message.Parts[0].Text
}

func TestHandleMessage_ExplicitDegrees(t *testing.T) {
	if got := send(t, "set the thermostat to 68 degrees"); !strings.Contains(got, "68 degrees") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleMessage_Warmer(t *testing.T) {
	if got := send(t, "make it warmer in here"); !strings.Contains(got, "raised the heating") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleMessage_Cooler(t *testing.T) {
	if got := send(t, "it's too cold, make it cooler"); !strings.Contains(got, "lowered the temperature") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleMessage_NoSignalFallsBackToGeneric(t *testing.T) {
	if got := send(t, "fix the thermostat"); got != "I've adjusted the thermostat." {
		t.Fatalf("unexpected reply: %q", got)
	}
}
