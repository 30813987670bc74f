package inmem

import (
	"context"
	"errors"
	"testing"

	"github.com/homemesh/orchestrator/internal/lifecycle"
)

func TestCreateSession_IsIdempotentWhileActive(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := s.CreateSession(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("CreateSession (repeat): %v", err)
	}
	if first.CreatedAt != second.CreatedAt {
		t.Fatalf("expected the same session to be returned, got distinct CreatedAt values")
	}
}

func TestCreateSession_AfterEndedReturnsErrSessionEnded(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "ctx-1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.EndSession(ctx, "ctx-1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := s.CreateSession(ctx, "ctx-1"); !errors.Is(err, lifecycle.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestLoadSession_UnknownIDReturnsErrSessionNotFound(t *testing.T) {
	s := New()
	if _, err := s.LoadSession(context.Background(), "ghost"); !errors.Is(err, lifecycle.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndSession_IsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateSession(ctx, "ctx-1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.EndSession(ctx, "ctx-1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := s.EndSession(ctx, "ctx-1"); err != nil {
		t.Fatalf("EndSession (repeat) should not error: %v", err)
	}

	sess, err := s.LoadSession(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if sess.Status != lifecycle.SessionEnded || sess.EndedAt == nil {
		t.Fatalf("expected an ended session with EndedAt set, got %+v", sess)
	}
}

func TestEndSession_UnknownIDReturnsErrSessionNotFound(t *testing.T) {
	s := New()
	if err := s.EndSession(context.Background(), "ghost"); !errors.Is(err, lifecycle.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpsertRun_CreatesOnFirstCall(t *testing.T) {
	s := New()
	ctx := context.Background()
	meta := &lifecycle.RunMeta{RunID: "run-1", SessionID: "ctx-1", Status: lifecycle.RunPending}
	if err := s.UpsertRun(ctx, meta); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}

	got, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Status != lifecycle.RunPending {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be stamped on first upsert")
	}
}

func TestUpsertRun_StartedAtIsImmutableAcrossUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.UpsertRun(ctx, &lifecycle.RunMeta{RunID: "run-1", Status: lifecycle.RunPending}); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	first, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}

	if err := s.UpsertRun(ctx, &lifecycle.RunMeta{RunID: "run-1", Status: lifecycle.RunCompleted}); err != nil {
		t.Fatalf("UpsertRun (update): %v", err)
	}
	second, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if second.Status != lifecycle.RunCompleted {
		t.Fatalf("expected status to update, got %q", second.Status)
	}
	if second.StartedAt != first.StartedAt {
		t.Fatalf("expected StartedAt to remain immutable across upserts")
	}
}

func TestLoadRun_UnknownIDReturnsErrRunNotFound(t *testing.T) {
	s := New()
	if _, err := s.LoadRun(context.Background(), "ghost"); !errors.Is(err, lifecycle.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsBySession_FiltersBySessionAndStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	runs := []*lifecycle.RunMeta{
		{RunID: "run-1", SessionID: "ctx-1", Status: lifecycle.RunCompleted},
		{RunID: "run-2", SessionID: "ctx-1", Status: lifecycle.RunRunning},
		{RunID: "run-3", SessionID: "ctx-2", Status: lifecycle.RunCompleted},
	}
	for _, r := range runs {
		if err := s.UpsertRun(ctx, r); err != nil {
			t.Fatalf("UpsertRun %q: %v", r.RunID, err)
		}
	}

	all, err := s.ListRunsBySession(ctx, "ctx-1", "")
	if err != nil {
		t.Fatalf("ListRunsBySession: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 runs for ctx-1, got %d", len(all))
	}

	completed, err := s.ListRunsBySession(ctx, "ctx-1", lifecycle.RunCompleted)
	if err != nil {
		t.Fatalf("ListRunsBySession (filtered): %v", err)
	}
	if len(completed) != 1 || completed[0].RunID != "run-1" {
		t.Fatalf("expected only run-1 to match the completed filter, got %+v", completed)
	}
}

func TestUpsertRun_LabelsAreClonedNotAliased(t *testing.T) {
	s := New()
	ctx := context.Background()
	labels := map[string]string{"room": "kitchen"}
	if err := s.UpsertRun(ctx, &lifecycle.RunMeta{RunID: "run-1", Labels: labels}); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	labels["room"] = "mutated"

	got, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Labels["room"] != "kitchen" {
		t.Fatalf("expected stored labels to be unaffected by caller mutation, got %q", got.Labels["room"])
	}
}
