// Package session holds the state of one opened entry. Every mutation runs
// under the session mutex, so stream handlers never see each other's
// partial updates.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docstream/internal/chat"
	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/toc"
	"github.com/google/uuid"
)

// Mode records whether the entry is being generated or already existed.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeGeneration
	ModeMaterialized
)

func (m Mode) String() string {
	switch m {
	case ModeGeneration:
		return "generation"
	case ModeMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// State is the mutable part of a session.
type State struct {
	Title   string
	Summary string

	Document    *doctree.Document
	Affordances doctree.Affordances
	TOC         []*doctree.TOCNode
	TOCBuilt    bool
	Mode        Mode

	// Loading guards document and section loads; one at a time.
	Loading bool
	// Working holds top-level sections of the current generation in
	// arrival order.
	Working []*doctree.Section

	Cover   *doctree.CoverImage
	Related []doctree.RelatedTopic

	Selection *selection.Context
	Surface   selection.Surface
}

// WorkingSection finds a top-level section of the working set by ID.
func (st *State) WorkingSection(id string) *doctree.Section {
	for _, s := range st.Working {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Session is one reader's view of an entry, from page activation until
// navigation away.
type Session struct {
	ID        string
	EntryID   string
	CreatedAt time.Time
	Chat      *chat.Channel

	log *slog.Logger

	mu        sync.Mutex
	updatedAt time.Time
	closed    bool
	state     State
}

// New creates a session for entryID. chat may be nil.
func New(entryID string, ch *chat.Channel, log *slog.Logger) *Session {
	id := uuid.NewString()
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	return &Session{
		ID:        id,
		EntryID:   entryID,
		CreatedAt: now,
		Chat:      ch,
		log:       log.With("session_id", id, "entry_id", entryID),
		updatedAt: now,
		state: State{
			Document: &doctree.Document{ID: entryID},
		},
	}
}

// Log returns the session's logger.
func (s *Session) Log() *slog.Logger { return s.log }

// Update runs fn with exclusive access to the state.
func (s *Session) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.updatedAt = time.Now()
}

// View runs fn with exclusive read access to the state.
func (s *Session) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// UpdatedAt reports the last mutation time.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Close ends the session. Chat state is discarded; loads already in flight
// finish against the detached state.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.Chat != nil {
		s.Chat.Close()
	}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// BlockSnapshot is one block of a page.
type BlockSnapshot struct {
	Type     string              `json:"type"` // "section" or "item"
	ID       string              `json:"id"`
	ParentID string              `json:"parent_id,omitempty"`
	Kind     doctree.SectionKind `json:"kind,omitempty"`
	Title    string              `json:"title,omitempty"`
	Content  string              `json:"content"`
}

// PageSnapshot is one page.
type PageSnapshot struct {
	Index  int             `json:"index"`
	Hidden bool            `json:"hidden"`
	Loaded bool            `json:"loaded"`
	Blocks []BlockSnapshot `json:"blocks"`
}

// Snapshot is a read-only, JSON-safe copy of session state.
type Snapshot struct {
	ID          string                 `json:"session_id"`
	EntryID     string                 `json:"entry_id"`
	Title       string                 `json:"title"`
	Summary     string                 `json:"summary,omitempty"`
	Mode        Mode                   `json:"mode"`
	Loading     bool                   `json:"loading"`
	Active      int                    `json:"active_page"`
	Affordances doctree.Affordances    `json:"affordances"`
	TOC         []*doctree.TOCNode     `json:"toc"`
	Pages       []PageSnapshot         `json:"pages"`
	Cover       *doctree.CoverImage    `json:"cover,omitempty"`
	Related     []doctree.RelatedTopic `json:"related_topics"`
	Selection   *selection.Context     `json:"selection,omitempty"`
	Surface     selection.Surface      `json:"surface"`
	Chat        *chat.Snapshot         `json:"chat,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	st := &s.state
	snap := Snapshot{
		ID:          s.ID,
		EntryID:     s.EntryID,
		Title:       st.Title,
		Summary:     st.Summary,
		Mode:        st.Mode,
		Loading:     st.Loading,
		Active:      st.Document.Active,
		Affordances: st.Affordances,
		TOC:         toc.Clone(st.TOC),
		Pages:       snapshotPages(st.Document),
		Related:     append([]doctree.RelatedTopic{}, st.Related...),
		Surface:     st.Surface.Clone(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.updatedAt,
	}
	if st.Cover != nil {
		cover := *st.Cover
		snap.Cover = &cover
	}
	if st.Selection != nil {
		sel := *st.Selection
		snap.Selection = &sel
	}
	s.mu.Unlock()

	if s.Chat != nil {
		cs := s.Chat.Snapshot()
		snap.Chat = &cs
	}
	return snap
}

func snapshotPages(d *doctree.Document) []PageSnapshot {
	pages := make([]PageSnapshot, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p == nil {
			continue
		}
		ps := PageSnapshot{
			Index:  p.Index,
			Hidden: p.Hidden,
			Loaded: p.Loaded(),
			Blocks: make([]BlockSnapshot, 0, len(p.Blocks)),
		}
		for _, b := range p.Blocks {
			switch v := b.(type) {
			case *doctree.Section:
				ps.Blocks = append(ps.Blocks, BlockSnapshot{
					Type:     "section",
					ID:       v.ID,
					ParentID: v.ParentID,
					Kind:     v.Kind,
					Title:    v.Title,
					Content:  v.Content,
				})
			case *doctree.Item:
				ps.Blocks = append(ps.Blocks, BlockSnapshot{
					Type:    "item",
					ID:      v.ID,
					Title:   v.Title,
					Content: v.Content,
				})
			}
		}
		pages = append(pages, ps)
	}
	return pages
}
