package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docstream/internal/render"
	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/session"
)

type selectionRequest struct {
	Text string `json:"text"`
	// AnchorID names the rendered element holding the selection. When
	// empty, Path is used as sent.
	AnchorID string             `json:"anchor_id,omitempty"`
	Path     selection.Path     `json:"path,omitempty"`
	Rect     selection.Rect     `json:"rect"`
	Viewport selection.Viewport `json:"viewport"`
}

// handleSelection classifies a selection change. Non-actionable selections
// leave the stored selection and surface untouched.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	path := req.Path
	if req.AnchorID != "" {
		root := render.Document(e.Session.Snapshot())
		anchor := render.FindByID(root, req.AnchorID)
		if anchor == nil {
			jsonError(w, "unknown anchor "+req.AnchorID, http.StatusBadRequest)
			return
		}
		path = selection.PathFromNode(anchor)
	}

	sel, place, actionable := s.resolver.Resolve(selection.Input{
		Text:     req.Text,
		Path:     path,
		Rect:     req.Rect,
		Viewport: req.Viewport,
	})

	var surface selection.Surface
	e.Session.Update(func(st *session.State) {
		if actionable {
			st.Selection = &sel
			st.Surface.Show(sel, place)
		}
		surface = st.Surface.Clone()
	})

	resp := map[string]any{
		"actionable": actionable,
		"surface":    surface,
	}
	if actionable {
		resp["selection"] = sel
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDismiss hides the surface, as a click outside it does.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	var surface selection.Surface
	e.Session.Update(func(st *session.State) {
		st.Surface.Dismiss()
		surface = st.Surface.Clone()
	})
	writeJSON(w, http.StatusOK, map[string]any{"surface": surface})
}
