package timer

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
	return res
}

func TestHandleMessage_ReturnsWorkingTask(t *testing.T) {
	res := send(t, "set a 10 minute timer")
	if res.Task == nil {
		t.Fatal("expected a task result, not a plain message")
	}
	if res.Task.Status.State != a2a.TaskStateWorking {
		t.Fatalf("expected working state, got %q", res.Task.Status.State)
	}
}

func TestHandleMessage_ParsesDurationAndUnit(t *testing.T) {
	res := send(t, "set a 5 minute timer")
	text := res.Task.Status.Message.Parts[0].Text
	if !strings.Contains(text, "5-minute timer") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_ParsesAbbreviatedUnit(t *testing.T) {
	res := send(t, "set a 30 sec timer")
	text := res.Task.Status.Message.Parts[0].Text
	if !strings.Contains(text, "30-second timer") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_ExtractsSubject(t *testing.T) {
	res := send(t, "set a 10 minute timer for the pasta")
	text := res.Task.Status.Message.Parts[0].Text
	if !strings.Contains(text, "for the pasta") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_NoDurationFallsBackToGeneric(t *testing.T) {
	res := send(t, "set a timer")
	text := res.Task.Status.Message.Parts[0].Text
	if !strings.Contains(text, "a timer") {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestHandleMessage_HistoryIncludesBothTurns(t *testing.T) {
	res := send(t, "set a timer")
	if len(res.Task.History) != 2 {
		t.Fatalf("expected user+agent history, got %d entries", len(res.Task.History))
	}
}
