// Package assembler builds an entry's page and section tree from the
// fragment streams the entry server emits.
package assembler

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/url"
	"sync"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/interstitial"
	"github.com/dgallion1/docstream/internal/session"
	"github.com/dgallion1/docstream/internal/stream"
	"github.com/dgallion1/docstream/internal/toc"
	"github.com/dgallion1/docstream/internal/upstream"
)

// CodeAlreadyExists is the payload error code the server sends first when
// the entry was generated earlier.
const CodeAlreadyExists = 12

var (
	// ErrLoadInFlight is returned when a document or section load is
	// already running for the session.
	ErrLoadInFlight = errors.New("a load is already in progress for this entry")
	// ErrNoSuchPage is returned when activating a page that does not exist.
	ErrNoSuchPage = errors.New("no such page")
)

// Collaborators are the entry server calls the assembler depends on.
type Collaborators interface {
	OpenStream(ctx context.Context, path string, query url.Values) (*stream.Stream, error)
	CoverImage(ctx context.Context, entryID string) (*doctree.CoverImage, error)
	RelatedTopics(ctx context.Context, entryID string, fn func(doctree.RelatedTopic)) error
}

// Outcome summarizes one load.
type Outcome struct {
	Mode     session.Mode `json:"mode"`
	Err      error        `json:"-"`
	Sections int          `json:"sections"`
	Skipped  int          `json:"skipped"`
	Injected int          `json:"injected"`
}

// Assembler drives loads for one session.
type Assembler struct {
	sess   *session.Session
	up     Collaborators
	inject *interstitial.Injector
	log    *slog.Logger

	wg sync.WaitGroup // cover image and related topics lookups
}

// New binds an assembler to sess. inject may be nil.
func New(sess *session.Session, up Collaborators, inject *interstitial.Injector) *Assembler {
	return &Assembler{
		sess:   sess,
		up:     up,
		inject: inject,
		log:    sess.Log(),
	}
}

// Wait blocks until background lookups started by loads have finished.
func (a *Assembler) Wait() {
	a.wg.Wait()
}

// open subscribes to path. A failed connect becomes a sequence holding a
// single end event, so it is handled like any other stream end.
func (a *Assembler) open(ctx context.Context, path string) iter.Seq[stream.Event] {
	s, err := a.up.OpenStream(ctx, path, nil)
	if err != nil {
		return stream.Failed(err)
	}
	return s.Events()
}

// acquire sets the loading guard. It reports false when a load is running.
func (a *Assembler) acquire(section bool) bool {
	acquired := false
	a.sess.Update(func(st *session.State) {
		if st.Loading {
			return
		}
		st.Loading = true
		if section {
			st.Affordances.TOCLoading = true
		}
		acquired = true
	})
	return acquired
}

// LoadDocument bootstraps the whole entry. The first item decides whether
// the entry is being generated or already exists.
func (a *Assembler) LoadDocument(ctx context.Context) (Outcome, error) {
	if !a.acquire(false) {
		return Outcome{}, ErrLoadInFlight
	}
	a.log.Info("loading document")

	l := &load{a: a, ctx: ctx, first: true}
	seq := a.open(ctx, upstream.EntryPath(a.sess.EntryID, "section", "make"))

	var out Outcome
	stream.Consume(seq, stream.Handler{
		OnItem: func(ev stream.Event) {
			a.sess.Update(func(st *session.State) { l.documentItem(st, ev) })
		},
		OnEnd: func(err error) {
			a.sess.Update(func(st *session.State) { out = l.documentEnd(st, err) })
		},
	})
	return out, nil
}

// LoadSection fills one page on demand, starting at its top-level section.
func (a *Assembler) LoadSection(ctx context.Context, sectionID string) (Outcome, error) {
	if !a.acquire(true) {
		return Outcome{}, ErrLoadInFlight
	}
	a.log.Info("loading section", "section_id", sectionID)

	l := &load{a: a, ctx: ctx}
	seq := a.open(ctx, upstream.EntryPath(a.sess.EntryID, "section", sectionID, "make"))

	var out Outcome
	stream.Consume(seq, stream.Handler{
		OnItem: func(ev stream.Event) {
			a.sess.Update(func(st *session.State) { l.sectionItem(st, ev) })
		},
		OnEnd: func(err error) {
			a.sess.Update(func(st *session.State) { out = l.sectionEnd(st, err) })
		},
	})
	return out, nil
}

type activation int

const (
	activateNone activation = iota
	activateDocument
	activateSection
)

// ActivatePage shows page index, loading the document or the page's
// sections first when they are missing.
func (a *Assembler) ActivatePage(ctx context.Context, index int) (Outcome, error) {
	var (
		next      activation
		sectionID string
		err       error
	)
	a.sess.Update(func(st *session.State) {
		for _, p := range st.Document.Pages {
			if p != nil {
				p.Hidden = true
			}
		}
		if len(st.TOC) > 0 {
			toc.Activate(st.TOC, index)
		}

		if len(st.Document.Pages) == 0 {
			next = activateDocument
			return
		}
		page := st.Document.Page(index)
		if page == nil || page.FirstSection() == nil {
			err = ErrNoSuchPage
			return
		}
		st.Document.Active = index

		first := page.FirstSection()
		if !first.HasContent() {
			st.Affordances.AccuracyNotice = false
			st.Affordances.RelatedTopics = false
			st.Affordances.Progress = true
			next, sectionID = activateSection, first.ID
			return
		}
		page.Hidden = false
		st.Affordances.AccuracyNotice = true
		st.Affordances.Progress = false
		st.Affordances.RelatedTopics = len(st.Related) > 0
	})
	if err != nil {
		return Outcome{}, err
	}

	switch next {
	case activateDocument:
		return a.LoadDocument(ctx)
	case activateSection:
		return a.LoadSection(ctx, sectionID)
	}
	var out Outcome
	a.sess.View(func(st *session.State) { out.Mode = st.Mode })
	return out, nil
}

// startCover looks up the cover image in the background.
func (a *Assembler) startCover(ctx context.Context, st *session.State) {
	st.Affordances.CoverImage = true
	st.Affordances.CoverProgress = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		img, err := a.up.CoverImage(ctx, a.sess.EntryID)
		if err != nil {
			a.log.Warn("cover image lookup failed", "error", err)
		}
		a.sess.Update(func(st *session.State) {
			st.Affordances.CoverProgress = false
			if img == nil {
				st.Affordances.CoverImage = false
				return
			}
			st.Cover = img
		})
	}()
}

// startRelated discovers related topics in the background. Its end reveals
// the accuracy notice and clears the progress indicator.
func (a *Assembler) startRelated(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.up.RelatedTopics(ctx, a.sess.EntryID, func(t doctree.RelatedTopic) {
			a.sess.Update(func(st *session.State) {
				st.Related = append(st.Related, t)
				st.Affordances.RelatedTopics = true
			})
		})
		if err != nil {
			a.log.Warn("related topics discovery ended with error", "error", err)
		}
		a.sess.Update(func(st *session.State) {
			st.Affordances.AccuracyNotice = true
			st.Affordances.Progress = false
		})
	}()
}
