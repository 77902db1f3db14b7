package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordSubmittedAndGet(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	sub := Submission{
		ID:           "task-1",
		Prompt:       "hello",
		PromptDigest: "abc123",
		SubmittedAt:  time.Now(),
	}
	if err := j.RecordSubmitted(ctx, sub); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}

	e, err := j.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Status != StatusRunning {
		t.Errorf("status = %q, want running", e.Status)
	}
	if e.Prompt != "hello" || e.PromptDigest != "abc123" {
		t.Errorf("entry = %+v", e)
	}
	if e.CompletedAt != nil {
		t.Error("completed_at should be nil for a running task")
	}
}

func TestRecordOutcome(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.RecordSubmitted(ctx, Submission{ID: "task-1", Prompt: "p", SubmittedAt: time.Now()}); err != nil {
		t.Fatalf("RecordSubmitted() error = %v", err)
	}

	c := Completion{
		ID:          "task-1",
		Status:      StatusFailed,
		Reason:      "worker exited without result",
		Stderr:      "boom",
		CompletedAt: time.Now(),
	}
	if err := j.RecordOutcome(ctx, c); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	e, err := j.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Status != StatusFailed {
		t.Errorf("status = %q, want failed", e.Status)
	}
	if e.Reason == nil || *e.Reason != "worker exited without result" {
		t.Errorf("reason = %v", e.Reason)
	}
	if e.Stderr == nil || *e.Stderr != "boom" {
		t.Errorf("stderr = %v", e.Stderr)
	}
	if e.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
}

func TestRecordOutcomeUnknownTask(t *testing.T) {
	j := openTestJournal(t)
	err := j.RecordOutcome(context.Background(), Completion{
		ID:          "ghost",
		Status:      StatusSucceeded,
		CompletedAt: time.Now(),
	})
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestRecordOutcomeRejectsNonTerminal(t *testing.T) {
	j := openTestJournal(t)
	err := j.RecordOutcome(context.Background(), Completion{
		ID:          "task-1",
		Status:      StatusRunning,
		CompletedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("RecordOutcome() should reject a non-terminal status")
	}
}

func TestGetMissing(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.Get(context.Background(), "nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		sub := Submission{ID: id, Prompt: id, SubmittedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := j.RecordSubmitted(ctx, sub); err != nil {
			t.Fatalf("RecordSubmitted(%s) error = %v", id, err)
		}
	}

	entries, err := j.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].ID != "new" || entries[1].ID != "mid" {
		t.Fatalf("List() order = %s, %s; want new, mid", entries[0].ID, entries[1].ID)
	}
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := j.RecordSubmitted(ctx, Submission{ID: "old-done", Prompt: "p", SubmittedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordOutcome(ctx, Completion{ID: "old-done", Status: StatusSucceeded, CompletedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordSubmitted(ctx, Submission{ID: "still-running", Prompt: "p", SubmittedAt: old}); err != nil {
		t.Fatal(err)
	}

	n, err := j.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Prune() removed %d rows, want 1", n)
	}

	// Running tasks survive pruning regardless of age
	if _, err := j.Get(ctx, "still-running"); err != nil {
		t.Fatalf("running entry should survive prune: %v", err)
	}
	if _, err := j.Get(ctx, "old-done"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("old terminal entry should be pruned, err = %v", err)
	}
}
