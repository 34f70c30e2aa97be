// Package selection classifies a text selection by its position in the
// rendered document and places the contextual action surface.
package selection

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Capability is a contextual action offered for a selection.
type Capability string

const (
	AskAssistant Capability = "ask_assistant"
	LookUp       Capability = "look_up"
)

// Capabilities is an ordered capability set.
type Capabilities []Capability

// Has reports whether c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	return slices.Contains(cs, c)
}

// Element is one step of a structural path.
type Element struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// HasClass reports whether the element carries class.
func (e Element) HasClass(class string) bool {
	return slices.Contains(e.Classes, class)
}

// Is reports whether the element matches tag and, when non-empty, class.
func (e Element) Is(tag, class string) bool {
	if e.Tag != tag {
		return false
	}
	return class == "" || e.HasClass(class)
}

// Path runs from the selection's common ancestor (first) to the document
// root (last).
type Path []Element

// PathFromNode builds the path for n. Text nodes start at their parent.
func PathFromNode(n *html.Node) Path {
	if n != nil && n.Type == html.TextNode {
		n = n.Parent
	}
	var p Path
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		el := Element{Tag: strings.ToLower(n.Data)}
		for _, a := range n.Attr {
			switch a.Key {
			case "id":
				el.ID = a.Val
			case "class":
				el.Classes = strings.Fields(a.Val)
			}
		}
		p = append(p, el)
	}
	return p
}

// closest returns the index of the first element, starting at the
// selection, that satisfies match; -1 if none does.
func (p Path) closest(match func(Element) bool) int {
	return slices.IndexFunc(p, match)
}

// Rule maps a path predicate to a capability set. Match returns the ID of
// the owning context, which may be empty.
type Rule struct {
	Name  string
	Match func(Path) (owner string, ok bool)
	Caps  Capabilities
}

// SummaryRule matches the entry summary inside the page header.
var SummaryRule = Rule{
	Name: "summary",
	Match: func(p Path) (string, bool) {
		i := p.closest(func(e Element) bool { return e.ID == "summary" })
		if i < 0 {
			return "", false
		}
		return "", p[i+1:].closest(func(e Element) bool { return e.Tag == "header" }) >= 0
	},
	Caps: Capabilities{LookUp},
}

// ContentRule matches anything under the article's content container.
// The owner is the enclosing section, or the enclosing fact block.
var ContentRule = Rule{
	Name: "content",
	Match: func(p Path) (string, bool) {
		if p.closest(func(e Element) bool { return e.Is("div", "content") }) < 0 {
			return "", false
		}
		if i := p.closest(func(e Element) bool { return e.Tag == "section" }); i >= 0 {
			return p[i].ID, true
		}
		if i := p.closest(func(e Element) bool { return e.Is("div", "funFact") }); i >= 0 {
			return p[i].ID, true
		}
		return "", true
	},
	Caps: Capabilities{AskAssistant, LookUp},
}

// DefaultRules are evaluated top-down; the first match wins.
var DefaultRules = []Rule{SummaryRule, ContentRule}

// Classify evaluates rules in order against p.
func Classify(rules []Rule, p Path) (owner string, caps Capabilities, ok bool) {
	for _, r := range rules {
		if owner, ok := r.Match(p); ok {
			return owner, r.Caps, true
		}
	}
	return "", nil, false
}
