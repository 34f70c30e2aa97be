package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docstream/internal/chat"
	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/session"
)

// handleChatOpen starts a conversation about the stored selection.
func (s *Server) handleChatOpen(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}

	var sel *selection.Context
	e.Session.View(func(st *session.State) {
		if st.Selection != nil {
			c := *st.Selection
			sel = &c
		}
	})
	if sel == nil {
		jsonError(w, "no selection to discuss", http.StatusConflict)
		return
	}
	if !sel.Caps.Has(selection.AskAssistant) {
		jsonError(w, "selection cannot be discussed", http.StatusConflict)
		return
	}

	if err := e.Session.Chat.Open(*sel); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.Session.Update(func(st *session.State) { st.Surface.Dismiss() })
	writeJSON(w, http.StatusOK, e.Session.Chat.Snapshot())
}

type chatRequest struct {
	Query string `json:"query"`
}

// handleChatSubmit sends one question and answers once the reply stream
// has ended.
func (s *Server) handleChatSubmit(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := e.Session.Chat.Submit(r.Context(), req.Query)
	switch {
	case errors.Is(err, chat.ErrPending):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, chat.ErrEmptyQuery), errors.Is(err, chat.ErrContextTooLong):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		// A failed reply stream ends the exchange like a closed one.
		e.Session.Log().Warn("chat reply ended early", "error", err)
	}
	writeJSON(w, http.StatusOK, e.Session.Chat.Snapshot())
}

func (s *Server) handleChatClose(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	e.Session.Chat.Close()
	w.WriteHeader(http.StatusNoContent)
}
