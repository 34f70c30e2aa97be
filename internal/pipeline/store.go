package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/docstream/internal/assembler"
	"github.com/dgallion1/docstream/internal/session"
)

// Entry pairs an open session with the assembler that loads into it.
type Entry struct {
	Session   *session.Session
	Assembler *assembler.Assembler
}

// Store is the registry of open sessions, one per entry ID.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		ttl:     ttl,
	}
}

// Put registers e, closing any session it replaces.
func (s *Store) Put(e *Entry) {
	s.mu.Lock()
	old := s.entries[e.Session.EntryID]
	s.entries[e.Session.EntryID] = e
	s.mu.Unlock()

	if old != nil && old != e {
		old.Session.Close()
	}
}

func (s *Store) Get(entryID string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[entryID]
}

// Delete closes and forgets the entry's session. It reports whether one
// was open.
func (s *Store) Delete(entryID string) bool {
	s.mu.Lock()
	e, ok := s.entries[entryID]
	delete(s.entries, entryID)
	s.mu.Unlock()

	if ok {
		e.Session.Close()
	}
	return ok
}

// Cleanup closes sessions idle for longer than the TTL and returns how
// many were removed.
func (s *Store) Cleanup() int {
	now := time.Now()
	var expired []*Entry

	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.Session.UpdatedAt()) > s.ttl {
			expired = append(expired, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.Session.Close()
	}
	return len(expired)
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
