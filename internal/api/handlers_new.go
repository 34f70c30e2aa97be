package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/session"
	"github.com/dgallion1/docstream/internal/upstream"
)

type newEntryRequest struct {
	Topic       string `json:"topic"`
	Proficiency string `json:"proficiency,omitempty"`
}

func (s *Server) proficiency(raw string) upstream.Proficiency {
	if raw == "" {
		return upstream.Proficiency(s.cfg.DefaultProficiency)
	}
	return upstream.ParseProficiency(raw)
}

// handleNewEntry asks the entry server for a new entry on a topic.
func (s *Server) handleNewEntry(w http.ResponseWriter, r *http.Request) {
	var req newEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.createEntry(w, r, req.Topic, s.proficiency(req.Proficiency))
}

// handleLookup creates a new entry from the stored selection's text.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}

	var req newEntryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	var sel *selection.Context
	e.Session.Update(func(st *session.State) {
		if st.Selection != nil {
			c := *st.Selection
			sel = &c
		}
		st.Surface.Dismiss()
	})
	if sel == nil || !sel.Caps.Has(selection.LookUp) {
		jsonError(w, "selection cannot be looked up", http.StatusConflict)
		return
	}
	s.createEntry(w, r, sel.Text, s.proficiency(req.Proficiency))
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request, topic string, p upstream.Proficiency) {
	loc, err := s.entries.NewEntry(r.Context(), topic, p)
	if err != nil {
		s.log.Info("new entry refused", "topic", topic, "error", err)
		status := http.StatusBadGateway
		msg := upstream.UserMessage(err)
		switch {
		case errors.Is(err, upstream.ErrEmptyTopic):
			status, msg = http.StatusBadRequest, err.Error()
		case errors.Is(err, upstream.ErrUnknownTopic):
			status = http.StatusNotFound
		case errors.Is(err, upstream.ErrPolicyRejected):
			status = http.StatusUnprocessableEntity
		}
		jsonError(w, msg, status)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"location":    loc,
		"topic":       topic,
		"proficiency": int(p),
	})
}
