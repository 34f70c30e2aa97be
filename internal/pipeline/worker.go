package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docstream/internal/assembler"
)

// Worker runs load jobs against their sessions.
type Worker struct {
	sessions *Store
	stats    *StreamStats
	log      *slog.Logger
}

func NewWorker(sessions *Store, stats *StreamStats, log *slog.Logger) *Worker {
	return &Worker{sessions: sessions, stats: stats, log: log}
}

// Process runs one job to a terminal status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "entry_id", job.EntryID, "session_id", job.SessionID, "kind", job.Kind)

	e := w.sessions.Get(job.EntryID)
	if e == nil || e.Session.ID != job.SessionID || e.Session.Closed() {
		log.Info("session gone before job ran")
		job.AddError("session closed")
		job.SetStatus(StatusFailed, "lookup")
		return
	}

	job.SetStatus(StatusStreaming, "streaming")
	start := time.Now()

	var (
		out assembler.Outcome
		err error
	)
	switch job.Kind {
	case JobLoadDocument:
		out, err = e.Assembler.LoadDocument(ctx)
	case JobLoadSection:
		out, err = e.Assembler.LoadSection(ctx, job.SectionID)
	case JobActivate:
		out, err = e.Assembler.ActivatePage(ctx, job.PageIndex)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		job.AddError(err.Error())
		if errors.Is(err, assembler.ErrLoadInFlight) {
			log.Info("load rejected", "error", err)
			job.SetStatus(StatusRejected, "guard")
			return
		}
		log.Warn("job failed", "error", err)
		job.SetStatus(StatusFailed, string(job.Kind))
		return
	}

	elapsed := time.Since(start)
	w.stats.Record(elapsed.Milliseconds(), out.Err != nil)
	job.SetOutcome(out)

	if out.Err != nil {
		job.AddError(out.Err.Error())
		log.Warn("stream ended with error", "error", out.Err, "elapsed_ms", elapsed.Milliseconds())
		job.SetStatus(StatusFailed, "stream")
		return
	}

	log.Info("job complete",
		"mode", out.Mode.String(),
		"sections", out.Sections,
		"skipped", out.Skipped,
		"injected", out.Injected,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	job.SetStatus(StatusCompleted, "done")
}
