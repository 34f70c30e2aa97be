package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/docstream/internal/assembler"
	"github.com/dgallion1/docstream/internal/session"
)

func TestNewJob_Defaults(t *testing.T) {
	job := NewJob(JobLoadSection, "e1", "s1")
	if job.ID == "" {
		t.Fatal("expected a job ID")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Kind != JobLoadSection {
		t.Errorf("expected kind %q, got %q", JobLoadSection, job.Kind)
	}
	if other := NewJob(JobLoadSection, "e1", "s1"); other.ID == job.ID {
		t.Error("expected distinct job IDs")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob(JobLoadDocument, "e1", "s1")

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusStreaming, "streaming"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusQueued, false},
		{StatusStreaming, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusRejected, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("expected %q terminal=%v, got %v", tt.status, tt.want, got)
		}
	}
}

func TestJob_WaitReleasedByTerminalStatus(t *testing.T) {
	job := NewJob(JobLoadDocument, "e1", "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := job.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while queued, got %v", err)
	}

	job.SetStatus(StatusStreaming, "streaming")
	go job.SetStatus(StatusRejected, "guard")
	if err := job.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A second terminal status must not panic on the closed channel.
	job.SetStatus(StatusFailed, "again")
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("stream ended: EOF")
	job.AddError("queue full")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "stream ended: EOF" {
		t.Errorf("expected first error %q, got %q", "stream ended: EOF", snap.Progress.Errors[0])
	}
}

func TestJob_SetOutcomeAccumulates(t *testing.T) {
	job := &Job{ID: "outcome-test", UpdatedAt: time.Now()}
	job.SetOutcome(assembler.Outcome{Mode: session.ModeGeneration, Sections: 4, Skipped: 1, Injected: 2})
	job.SetOutcome(assembler.Outcome{Mode: session.ModeGeneration, Sections: 2})

	snap := job.Snapshot()
	if snap.Progress.Mode != "generation" {
		t.Errorf("expected mode generation, got %q", snap.Progress.Mode)
	}
	if snap.Progress.Sections != 6 {
		t.Errorf("expected 6 sections, got %d", snap.Progress.Sections)
	}
	if snap.Progress.Skipped != 1 || snap.Progress.Injected != 2 {
		t.Errorf("expected skipped=1 injected=2, got %+v", snap.Progress)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	finished := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "running", Status: StatusStreaming, UpdatedAt: time.Now()}
	store.Put(finished)
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
