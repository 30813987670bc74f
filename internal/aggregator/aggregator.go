// Package aggregator implements the Result Aggregator: it composes the
// Agent Executor Wrapper responses for one request into a single reply,
// in priority order, with connective sentences and a trailing failure
// clause. Pure text composition; no third-party library in the retrieved
// pack offers a natural-language connective-sentence composer, so this
// stays on the standard library (see DESIGN.md).
package aggregator

import (
	"fmt"
	"strings"

	"github.com/homemesh/orchestrator/internal/invoker"
	"github.com/homemesh/orchestrator/internal/wrapper"
)

// Result is the composed outcome of one request's fan-out.
type Result struct {
	Text          string
	NeedsInput    bool
	PerformedLong bool
	TaskID        string
	AllFailed     bool
}

// Options configures composition.
type Options struct {
	// Priority lists agent names in the order their output should appear.
	// Agents not listed sort after listed ones, stable by arrival order.
	Priority []string
}

// Aggregate composes responses per the priority order and connective rules.
func Aggregate(responses []wrapper.Response, opts Options) Result {
	ordered := order(responses, opts.Priority)

	var sentences []string
	var failures []string
	needsInput := false
	performedLong := false
	taskID := ""

	for _, r := range ordered {
		switch r.Kind {
		case invoker.ReplyKindError:
			failures = append(failures, fmt.Sprintf("%s (%s)", r.AgentName, r.Err))
			continue
		case invoker.ReplyKindNeedsInput:
			needsInput = true
		case invoker.ReplyKindPerformed:
			if r.LongRunning {
				performedLong = true
			}
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if taskID == "" && r.TaskID != "" {
			taskID = r.TaskID
		}
		if len(sentences) > 0 {
			text = connective(len(sentences)) + text
		}
		sentences = append(sentences, text)
	}

	if len(sentences) == 0 && len(failures) > 0 {
		return Result{
			Text:      "I'm sorry, I wasn't able to help with that because " + failures[0] + ".",
			AllFailed: true,
		}
	}

	body := strings.Join(sentences, " ")
	if len(failures) > 0 {
		if body != "" {
			body += " "
		}
		body += "However, I wasn't able to " + joinFailureList(failures) + "."
	}

	return Result{Text: body, NeedsInput: needsInput, PerformedLong: performedLong, TaskID: taskID}
}

// order stable-sorts responses by priority, unlisted agents after listed
// ones, preserving arrival order within each tier.
func order(responses []wrapper.Response, priority []string) []wrapper.Response {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}
	indexed := make([]struct {
		r    wrapper.Response
		rank int
		seq  int
	}, len(responses))
	for i, r := range responses {
		rk, ok := rank[r.AgentName]
		if !ok {
			rk = len(priority)
		}
		indexed[i] = struct {
			r    wrapper.Response
			rank int
			seq  int
		}{r: r, rank: rk, seq: i}
	}
	for i := 1; i < len(indexed); i++ {
		for j := i; j > 0 && less(indexed[j], indexed[j-1]); j-- {
			indexed[j], indexed[j-1] = indexed[j-1], indexed[j]
		}
	}
	out := make([]wrapper.Response, len(indexed))
	for i, e := range indexed {
		out[i] = e.r
	}
	return out
}

func less(a, b struct {
	r    wrapper.Response
	rank int
	seq  int
}) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.seq < b.seq
}

// connective picks a sentence connector varying with position so repeated
// joins don't read as monotonous.
func connective(position int) string {
	switch position % 2 {
	case 0:
		return "Also, "
	default:
		return "And, "
	}
}

func joinFailureList(failures []string) string {
	switch len(failures) {
	case 0:
		return ""
	case 1:
		return "complete everything because " + failures[0]
	default:
		return "complete everything: " + strings.Join(failures, "; ")
	}
}
