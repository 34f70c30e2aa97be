package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgallion1/docstream/internal/assembler"
	"github.com/google/uuid"
)

// JobKind names the load a job runs.
type JobKind string

const (
	JobLoadDocument JobKind = "load_document"
	JobLoadSection  JobKind = "load_section"
	JobActivate     JobKind = "activate_page"
)

// JobStatus represents the state of a load job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusStreaming JobStatus = "streaming"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusRejected  JobStatus = "rejected"
)

// Terminal reports whether no further transitions follow.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// Job tracks one load against a session.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	EntryID   string `json:"entry_id"`
	SessionID string `json:"session_id"`

	Kind      JobKind `json:"kind"`
	PageIndex int     `json:"page_index"`
	SectionID string  `json:"section_id,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	errors []string
	done   chan struct{}
	once   sync.Once
}

// Progress counts what the load did.
type Progress struct {
	Mode     string   `json:"mode"`
	Sections int      `json:"sections"`
	Skipped  int      `json:"skipped"`
	Injected int      `json:"injected"`
	Errors   []string `json:"errors"`
}

// NewJob creates a queued job.
func NewJob(kind JobKind, entryID, sessionID string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		EntryID:   entryID,
		SessionID: sessionID,
		Kind:      kind,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs that have finished.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically. Terminal statuses release
// waiters.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
	j.mu.Unlock()

	if status.Terminal() {
		j.finish()
	}
}

func (j *Job) finish() {
	if j.done == nil {
		return
	}
	j.once.Do(func() { close(j.done) })
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetOutcome copies a load outcome into the job's progress.
func (j *Job) SetOutcome(out assembler.Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Mode = out.Mode.String()
	j.Progress.Sections += out.Sections
	j.Progress.Skipped += out.Skipped
	j.Progress.Injected += out.Injected
	j.UpdatedAt = time.Now()
}

// Wait blocks until the job reaches a terminal status or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	if j.done == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	Kind      JobKind   `json:"kind"`
	PageIndex int       `json:"page_index"`
	SectionID string    `json:"section_id,omitempty"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	return JobSnapshot{
		ID:        j.ID,
		EntryID:   j.EntryID,
		SessionID: j.SessionID,
		Kind:      j.Kind,
		PageIndex: j.PageIndex,
		SectionID: j.SectionID,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress: Progress{
			Mode:     j.Progress.Mode,
			Sections: j.Progress.Sections,
			Skipped:  j.Progress.Skipped,
			Injected: j.Progress.Injected,
			Errors:   errs,
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
