// Package pipeline keeps the open sessions and runs their loads on a
// bounded worker pool.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docstream/internal/assembler"
	"github.com/dgallion1/docstream/internal/chat"
	"github.com/dgallion1/docstream/internal/config"
	"github.com/dgallion1/docstream/internal/interstitial"
	"github.com/dgallion1/docstream/internal/render"
	"github.com/dgallion1/docstream/internal/session"
	"github.com/dgallion1/docstream/internal/upstream"
)

// ErrNoSession is returned when a job targets an entry with no open
// session.
var ErrNoSession = errors.New("no open session for entry")

// Upstream is everything the pipeline needs from the entry server.
type Upstream interface {
	assembler.Collaborators
	EntryPage(ctx context.Context, entryID string) ([]byte, error)
}

// Orchestrator manages sessions and their load jobs.
type Orchestrator struct {
	jobs     *JobStore
	sessions *Store
	queue    chan *Job
	up       Upstream
	inject   *interstitial.Injector
	stats    *StreamStats
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. inject may be nil.
func NewOrchestrator(cfg config.Config, up Upstream, inject *interstitial.Injector, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.SessionTTL),
		sessions: NewStore(cfg.SessionTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		up:       up,
		inject:   inject,
		stats:    NewStreamStats(time.Hour),
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.sessions, o.stats, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Evict idle sessions and finished jobs.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
				if n := o.sessions.Cleanup(); n > 0 {
					o.log.Info("closed idle sessions", "count", n)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Open starts a fresh session for entryID, replacing any open one, and
// queues activation of the first page. Activation loads the document when
// the entry page carried no pages, or the first page when it is empty.
func (o *Orchestrator) Open(ctx context.Context, entryID string) (*Entry, *Job, error) {
	if entryID == "" {
		return nil, nil, errors.New("entry id is required")
	}

	ch := chat.New(upstream.EntryPath(entryID, "chat", "make"), o.up, o.log)
	sess := session.New(entryID, ch, o.log)
	if err := o.seed(ctx, sess); err != nil {
		sess.Close()
		return nil, nil, err
	}

	e := &Entry{Session: sess, Assembler: assembler.New(sess, o.up, o.inject)}
	o.sessions.Put(e)
	sess.Log().Info("session opened")

	job := NewJob(JobActivate, entryID, sess.ID)
	job.PageIndex = 0
	if err := o.Submit(job); err != nil {
		return e, job, err
	}
	return e, job, nil
}

// seed fills the session from the entry page the server already renders.
// An entry the server does not know is an error; any other failure leaves
// the session empty.
func (o *Orchestrator) seed(ctx context.Context, sess *session.Session) error {
	page, err := o.up.EntryPage(ctx, sess.EntryID)
	if errors.Is(err, upstream.ErrUnknownEntry) {
		return fmt.Errorf("open %s: %w", sess.EntryID, err)
	}
	if err != nil {
		sess.Log().Warn("entry page unavailable, starting empty", "error", err)
		return nil
	}

	seed, err := render.Parse(bytes.NewReader(page))
	if err != nil {
		sess.Log().Warn("entry page unreadable, starting empty", "error", err)
		return nil
	}

	sess.Update(func(st *session.State) {
		st.Title = seed.Title
		st.Summary = seed.Summary
		st.Document.Pages = seed.Pages
		st.Working = seed.TopLevel()
		st.TOC = seed.TOC
		st.TOCBuilt = len(seed.TOC) > 0
		st.Related = seed.Related
		st.Affordances.RelatedTopics = len(seed.Related) > 0
		if len(seed.Pages) > 0 {
			st.Mode = session.ModeMaterialized
		}
	})
	return nil
}

// Close destroys the entry's session. It reports whether one was open.
func (o *Orchestrator) Close(entryID string) bool {
	return o.sessions.Delete(entryID)
}

// Entry returns the open session for entryID, or nil.
func (o *Orchestrator) Entry(entryID string) *Entry {
	return o.sessions.Get(entryID)
}

// Enqueue queues a job of kind against the entry's open session.
func (o *Orchestrator) Enqueue(kind JobKind, entryID string, pageIndex int, sectionID string) (*Job, error) {
	e := o.sessions.Get(entryID)
	if e == nil {
		return nil, ErrNoSession
	}
	job := NewJob(kind, entryID, e.Session.ID)
	job.PageIndex = pageIndex
	job.SectionID = sectionID
	if err := o.Submit(job); err != nil {
		return job, err
	}
	return job, nil
}

// Submit queues a job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Sessions returns the number of open sessions.
func (o *Orchestrator) Sessions() int {
	return o.sessions.Len()
}

// Stats returns recent stream durations.
func (o *Orchestrator) Stats() StatsSnapshot {
	return o.stats.Snapshot()
}
