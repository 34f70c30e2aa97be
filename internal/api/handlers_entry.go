package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dgallion1/docstream/internal/pipeline"
	"github.com/dgallion1/docstream/internal/render"
	"github.com/dgallion1/docstream/internal/upstream"
	"github.com/go-chi/chi/v5"
)

// entry looks up the open session named in the URL, writing a 404 when
// there is none.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (*pipeline.Entry, bool) {
	entryID := chi.URLParam(r, "entryID")
	e := s.orchestrator.Entry(entryID)
	if e == nil {
		jsonError(w, fmt.Sprintf("no open session for entry %s", entryID), http.StatusNotFound)
		return nil, false
	}
	return e, true
}

// handleOpen starts a session for the entry and queues its document load.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	e, job, err := s.orchestrator.Open(r.Context(), entryID)
	switch {
	case errors.Is(err, upstream.ErrUnknownEntry):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case e == nil && err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.accepted(w, r, e, job)
}

// handleClose destroys the session, as navigating away does.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	if !s.orchestrator.Close(entryID) {
		jsonError(w, fmt.Sprintf("no open session for entry %s", entryID), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		jsonError(w, "page index must be a non-negative integer", http.StatusBadRequest)
		return
	}
	e, ok := s.entry(w, r)
	if !ok {
		return
	}

	job, err := s.orchestrator.Enqueue(pipeline.JobActivate, e.Session.EntryID, index, "")
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.accepted(w, r, e, job)
}

// accepted answers a queued job. With ?wait=true it blocks until the job
// ends and includes the resulting state.
func (s *Server) accepted(w http.ResponseWriter, r *http.Request, e *pipeline.Entry, job *pipeline.Job) {
	resp := map[string]any{
		"session_id": e.Session.ID,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
	}
	status := http.StatusAccepted
	if r.URL.Query().Get("wait") == "true" {
		if err := job.Wait(r.Context()); err != nil {
			jsonError(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		resp["state"] = e.Session.Snapshot()
		status = http.StatusOK
	}
	resp["job"] = job.Snapshot()
	writeJSON(w, status, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Session.Snapshot())
}

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	snap := e.Session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"toc":     snap.TOC,
		"loading": snap.Affordances.TOCLoading,
	})
}

// handleEntryHTML renders the session as article markup.
func (s *Server) handleEntryHTML(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WriteHTML(&buf, render.Document(e.Session.Snapshot())); err != nil {
		jsonError(w, "render failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleExportDOCX(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	snap := e.Session.Snapshot()
	var buf bytes.Buffer
	if err := render.DOCX(&buf, snap); err != nil {
		jsonError(w, "export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.Filename(snap, ".docx")))
	w.Write(buf.Bytes())
}
