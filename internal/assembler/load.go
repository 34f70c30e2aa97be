package assembler

import (
	"context"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/session"
	"github.com/dgallion1/docstream/internal/stream"
	"github.com/dgallion1/docstream/internal/toc"
)

// load is the per-stream state of one document or section load. Its
// methods run under the session lock.
type load struct {
	a     *Assembler
	ctx   context.Context
	first bool
	mode  session.Mode // set by the first item of a document load

	sections int
	skipped  int
}

func (l *load) documentItem(st *session.State, ev stream.Event) {
	log := l.a.log
	pe, isErr := ev.PayloadError()

	if l.first {
		l.first = false
		if isErr {
			log.Info("entry already materialized", "code", pe.Code, "already_exists", pe.Code == CodeAlreadyExists, "message", pe.Message)
			l.mode = session.ModeMaterialized
			st.Mode = l.mode
			st.Affordances.AccuracyNotice = true
			st.Affordances.Progress = false
			st.Affordances.RelatedTopics = len(st.Related) > 0
			return
		}
		log.Info("entry is being generated")
		l.mode = session.ModeGeneration
		st.Mode = l.mode
		st.Document.Clear()
		st.TOC = nil
		st.TOCBuilt = false
		st.Working = nil
		st.Affordances.AccuracyNotice = false
		st.Affordances.RelatedTopics = false
		st.Affordances.Progress = true
		l.a.startCover(context.WithoutCancel(l.ctx), st)
	}

	if l.mode != session.ModeGeneration {
		return
	}
	if isErr {
		log.Warn("error payload in fragment stream", "code", pe.Code, "message", pe.Message)
		l.skipped++
		return
	}

	f, ok := l.decode(ev)
	if !ok {
		return
	}
	if existing, _ := st.Document.FindSection(f.ID); existing != nil {
		l.refill(existing, f)
		return
	}

	if !f.Nested() {
		// Pages follow arrival order; the wire index is kept on the section.
		page := st.Document.AppendPage()
		page.Hidden = len(st.Working) > 0
		sec := doctree.NewSection(f)
		page.Append(sec)
		st.Working = append(st.Working, sec)
		l.sections++
		return
	}

	parent := st.WorkingSection(f.ParentID)
	if parent == nil {
		log.Warn("nested fragment with unknown parent", "section_id", f.ID, "parent_id", f.ParentID)
		l.skipped++
		return
	}
	l.appendNested(st, parent, f)
}

func (l *load) documentEnd(st *session.State, err error) Outcome {
	if err != nil {
		l.a.log.Warn("document stream ended with error", "error", err)
	}

	if l.mode == session.ModeGeneration {
		if st.TOCBuilt {
			l.a.log.Warn("skipping outline", "error", toc.ErrTOCBuilt)
		} else {
			st.TOC = toc.Build(st.Working)
			st.TOCBuilt = true
		}
		l.a.startRelated(context.WithoutCancel(l.ctx))
	} else {
		st.Affordances.AccuracyNotice = true
		st.Affordances.Progress = false
		st.Affordances.RelatedTopics = len(st.Related) > 0
	}

	out := l.finish(st, err)
	l.a.log.Info("document load finished", "mode", st.Mode.String(), "sections", out.Sections, "skipped", out.Skipped, "injected", out.Injected)
	return out
}

func (l *load) sectionItem(st *session.State, ev stream.Event) {
	if pe, isErr := ev.PayloadError(); isErr {
		l.a.log.Warn("error payload in section stream", "code", pe.Code, "message", pe.Message)
		l.skipped++
		return
	}
	f, ok := l.decode(ev)
	if !ok {
		return
	}

	if !f.Nested() {
		_, page := st.Document.FindSection(f.ID)
		if page == nil {
			l.a.log.Warn("section not on any page, appending", "section_id", f.ID, "index", f.Index)
			page = st.Document.AppendPage()
		}
		page.Reset()
		page.Hidden = false
		sec := doctree.NewSection(f)
		page.Append(sec)
		for i, w := range st.Working {
			if w.ID == sec.ID {
				st.Working[i] = sec
			}
		}
		l.sections++
		return
	}

	parent, _ := st.Document.FindSection(f.ParentID)
	if parent == nil {
		l.a.log.Warn("nested fragment with unknown parent", "section_id", f.ID, "parent_id", f.ParentID)
		l.skipped++
		return
	}
	if existing, _ := st.Document.FindSection(f.ID); existing != nil {
		l.refill(existing, f)
		return
	}
	l.appendNested(st, parent, f)
}

func (l *load) sectionEnd(st *session.State, err error) Outcome {
	if err != nil {
		l.a.log.Warn("section stream ended with error", "error", err)
	}
	out := l.finish(st, err)
	st.Affordances.AccuracyNotice = true
	st.Affordances.Progress = false
	st.Affordances.TOCLoading = false
	st.Affordances.RelatedTopics = len(st.Related) > 0
	l.a.log.Info("section load finished", "sections", out.Sections, "skipped", out.Skipped, "injected", out.Injected)
	return out
}

// finish runs the injector and releases the loading guard.
func (l *load) finish(st *session.State, err error) Outcome {
	out := Outcome{Mode: st.Mode, Err: err, Sections: l.sections, Skipped: l.skipped}
	if l.a.inject != nil {
		n, ierr := l.a.inject.Inject(context.WithoutCancel(l.ctx), st.Document.Pages)
		if ierr != nil {
			l.a.log.Warn("fact injection failed", "error", ierr)
		}
		out.Injected = n
	}
	st.Loading = false
	return out
}

func (l *load) decode(ev stream.Event) (doctree.Fragment, bool) {
	var f doctree.Fragment
	if err := ev.Decode(&f); err != nil || f.ID == "" {
		l.a.log.Warn("malformed fragment skipped", "payload", ev.Data, "error", err)
		l.skipped++
		return f, false
	}
	return f, true
}

// refill handles a repeated fragment. Content is written once per load.
func (l *load) refill(sec *doctree.Section, f doctree.Fragment) {
	if err := sec.SetContent(f.Content); err != nil {
		l.a.log.Warn("repeated fragment skipped", "section_id", f.ID, "error", err)
		l.skipped++
	}
}

func (l *load) appendNested(st *session.State, parent *doctree.Section, f doctree.Fragment) {
	_, page := st.Document.FindSection(parent.ID)
	if page == nil {
		l.a.log.Warn("parent section has no page", "section_id", f.ID, "parent_id", parent.ID)
		l.skipped++
		return
	}
	sec := doctree.NewSection(f)
	page.Append(sec)
	parent.Subsections = append(parent.Subsections, sec)
	l.sections++
}
