package aggregator

import (
	"strings"
	"testing"

	"github.com/homemesh/orchestrator/internal/invoker"
	"github.com/homemesh/orchestrator/internal/wrapper"
)

func TestAggregate_SingleSuccessReturnsItsText(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindPerformed, Text: "Turned on the kitchen lights."},
	}, Options{})

	if r.Text != "Turned on the kitchen lights." {
		t.Fatalf("unexpected text: %q", r.Text)
	}
	if r.NeedsInput || r.PerformedLong || r.AllFailed {
		t.Fatalf("unexpected flags: %+v", r)
	}
}

func TestAggregate_MultipleSuccessesAreJoinedWithConnectives(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindPerformed, Text: "Turned on the kitchen lights."},
		{AgentName: "music", Kind: invoker.ReplyKindPerformed, Text: "Started playing jazz."},
	}, Options{})

	if !strings.Contains(r.Text, "Turned on the kitchen lights.") {
		t.Fatalf("expected first agent's text present: %q", r.Text)
	}
	if !strings.Contains(r.Text, "Started playing jazz.") {
		t.Fatalf("expected second agent's text present: %q", r.Text)
	}
	if !strings.Contains(r.Text, "And, ") && !strings.Contains(r.Text, "Also, ") {
		t.Fatalf("expected a connective sentence, got: %q", r.Text)
	}
}

func TestAggregate_PriorityOrdersOutputRegardlessOfArrival(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "music", Kind: invoker.ReplyKindPerformed, Text: "Started playing jazz."},
		{AgentName: "light", Kind: invoker.ReplyKindPerformed, Text: "Turned on the kitchen lights."},
	}, Options{Priority: []string{"light", "music"}})

	lightIdx := strings.Index(r.Text, "Turned on")
	musicIdx := strings.Index(r.Text, "Started playing")
	if lightIdx < 0 || musicIdx < 0 || lightIdx > musicIdx {
		t.Fatalf("expected light's sentence before music's, got: %q", r.Text)
	}
}

func TestAggregate_PartialFailureAppendsTrailingClause(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindPerformed, Text: "Turned on the kitchen lights."},
		{AgentName: "music", Kind: invoker.ReplyKindError, Err: "agent unreachable"},
	}, Options{})

	if !strings.Contains(r.Text, "Turned on the kitchen lights.") {
		t.Fatalf("expected surviving agent's text present: %q", r.Text)
	}
	if !strings.Contains(r.Text, "However, I wasn't able to") {
		t.Fatalf("expected a trailing failure clause, got: %q", r.Text)
	}
	if r.AllFailed {
		t.Fatal("did not expect AllFailed when one agent succeeded")
	}
}

func TestAggregate_AllFailedSetsFlagAndApologyText(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindError, Err: "agent unreachable"},
	}, Options{})

	if !r.AllFailed {
		t.Fatal("expected AllFailed to be set")
	}
	if !strings.Contains(r.Text, "I'm sorry") {
		t.Fatalf("expected an apology, got: %q", r.Text)
	}
}

func TestAggregate_NeedsInputAndLongRunningFlagsPropagate(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "timer", Kind: invoker.ReplyKindPerformed, Text: "Started a 5-minute timer.", LongRunning: true, TaskID: "task-1"},
	}, Options{})
	if !r.PerformedLong {
		t.Fatal("expected PerformedLong to propagate")
	}
	if r.TaskID != "task-1" {
		t.Fatalf("expected task id to propagate, got %q", r.TaskID)
	}

	r2 := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindNeedsInput, Text: "Which room did you mean?"},
	}, Options{})
	if !r2.NeedsInput {
		t.Fatal("expected NeedsInput to propagate")
	}
}

func TestAggregate_EmptyTextResponseIsSkipped(t *testing.T) {
	r := Aggregate([]wrapper.Response{
		{AgentName: "light", Kind: invoker.ReplyKindPerformed, Text: "   "},
		{AgentName: "music", Kind: invoker.ReplyKindPerformed, Text: "Started playing jazz."},
	}, Options{})

	if r.Text != "Started playing jazz." {
		t.Fatalf("expected only the non-empty response's text, got: %q", r.Text)
	}
}
