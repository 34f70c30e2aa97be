// Package toc builds the table of contents of a freshly generated entry.
package toc

import (
	"errors"

	"github.com/dgallion1/docstream/internal/doctree"
)

// ErrTOCBuilt is returned when a session tries to build its outline twice.
var ErrTOCBuilt = errors.New("table of contents already built")

// Build produces one node per top-level section, each with one child per
// subsection, in the order given. The first node is marked active.
func Build(sections []*doctree.Section) []*doctree.TOCNode {
	nodes := make([]*doctree.TOCNode, 0, len(sections))
	for _, s := range sections {
		node := &doctree.TOCNode{ID: s.ID, Title: s.Title}
		for _, sub := range s.Subsections {
			node.Children = append(node.Children, &doctree.TOCNode{ID: sub.ID, Title: sub.Title})
		}
		nodes = append(nodes, node)
	}
	if len(nodes) > 0 {
		nodes[0].Active = true
	}
	return nodes
}

// Activate marks the item at index as the only active one. Out of range
// indexes clear every item.
func Activate(nodes []*doctree.TOCNode, index int) {
	for i, n := range nodes {
		n.Active = i == index
	}
}

// Locate returns the index of the top-level item containing id, which may be
// a section or one of its subsections.
func Locate(nodes []*doctree.TOCNode, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
		for _, c := range n.Children {
			if c.ID == id {
				return i
			}
		}
	}
	return -1
}

// Clone deep-copies an outline.
func Clone(nodes []*doctree.TOCNode) []*doctree.TOCNode {
	if nodes == nil {
		return nil
	}
	out := make([]*doctree.TOCNode, len(nodes))
	for i, n := range nodes {
		cp := *n
		cp.Children = Clone(n.Children)
		out[i] = &cp
	}
	return out
}
