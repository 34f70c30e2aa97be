package selection

import (
	"maps"
	"strings"
	"unicode/utf8"
)

const (
	// DisplayLimit caps the displayed selection text, in characters.
	DisplayLimit = 340
	// Margin keeps the surface off the viewport edges and below the selection.
	Margin = 10
	// DefaultSurfaceWidth is used when no width is configured.
	DefaultSurfaceWidth = 220
)

// Rect is a selection's bounding rectangle in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Viewport describes the visible window.
type Viewport struct {
	Width   float64 `json:"width"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
}

// Input is one selection-change signal.
type Input struct {
	Text     string
	Path     Path
	Rect     Rect
	Viewport Viewport
}

// Context is the stored selection.
type Context struct {
	Text      string       `json:"text"`
	Display   string       `json:"display"`
	SectionID string       `json:"section_id,omitempty"`
	Caps      Capabilities `json:"capabilities"`
}

// Placement is the surface position in document coordinates.
type Placement struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Resolver applies rules and computes placement for a fixed surface width.
type Resolver struct {
	Rules        []Rule
	SurfaceWidth float64
}

// NewResolver returns a resolver over DefaultRules.
func NewResolver(surfaceWidth float64) *Resolver {
	if surfaceWidth <= 0 {
		surfaceWidth = DefaultSurfaceWidth
	}
	return &Resolver{Rules: DefaultRules, SurfaceWidth: surfaceWidth}
}

// Resolve classifies in. ok is false for an empty or non-actionable
// selection, in which case nothing should change.
func (r *Resolver) Resolve(in Input) (Context, Placement, bool) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Context{}, Placement{}, false
	}
	owner, caps, ok := Classify(r.Rules, in.Path)
	if !ok {
		return Context{}, Placement{}, false
	}
	ctx := Context{
		Text:      text,
		Display:   Truncate(text),
		SectionID: owner,
		Caps:      caps,
	}
	return ctx, Place(in.Rect, in.Viewport, r.SurfaceWidth), true
}

// Truncate caps text at DisplayLimit characters, appending an ellipsis
// when anything was cut.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= DisplayLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:DisplayLimit]) + "…"
}

// Place centers a surface of the given width under rect, clamped to the
// viewport edges.
func Place(rect Rect, vp Viewport, width float64) Placement {
	left := rect.Left + rect.Width/2 - width/2 + vp.ScrollX
	if left < Margin {
		left = Margin
	}
	if left+width > vp.Width {
		left = vp.Width - width - Margin
	}
	return Placement{
		Left: left,
		Top:  rect.Bottom() + vp.ScrollY + Margin,
	}
}

// Surface is the floating action surface.
type Surface struct {
	Visible bool                `json:"visible"`
	Left    float64             `json:"left"`
	Top     float64             `json:"top"`
	Buttons map[Capability]bool `json:"buttons"`
}

// Show reveals the surface with only the applicable buttons visible.
func (s *Surface) Show(ctx Context, p Placement) {
	s.Buttons = map[Capability]bool{
		AskAssistant: false,
		LookUp:       false,
	}
	for _, c := range ctx.Caps {
		s.Buttons[c] = true
	}
	s.Left, s.Top = p.Left, p.Top
	s.Visible = true
}

// Dismiss hides the surface, as an outside click or touch does.
func (s *Surface) Dismiss() {
	s.Visible = false
}

// Clone returns a copy safe to hand to another goroutine.
func (s Surface) Clone() Surface {
	s.Buttons = maps.Clone(s.Buttons)
	return s
}
