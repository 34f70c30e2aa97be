package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
	"golang.org/x/net/html"
)

// Seed is what an entry page already shows before any stream runs.
type Seed struct {
	EntryID string
	Title   string
	Summary string
	Pages   []*doctree.Page
	TOC     []*doctree.TOCNode
	Related []doctree.RelatedTopic
}

// TopLevel lists the seeded top-level sections in page order.
func (s *Seed) TopLevel() []*doctree.Section {
	d := doctree.Document{Pages: s.Pages}
	return d.TopLevel()
}

// Parse reads entry page markup as served by the entry server.
func Parse(r io.Reader) (*Seed, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse entry page: %w", err)
	}

	seed := &Seed{}
	if art := find(root, func(n *html.Node) bool { return n.Data == "article" }); art != nil {
		seed.EntryID = attr(art, "id")
		seed.Pages = parsePages(art)
	}
	if h := find(root, func(n *html.Node) bool { return n.Data == "header" }); h != nil {
		if h1 := find(h, func(n *html.Node) bool { return n.Data == "h1" }); h1 != nil {
			seed.Title = textOf(h1)
		}
		if sum := FindByID(h, "summary"); sum != nil {
			seed.Summary = textOf(sum)
		}
	}
	if toc := FindByID(root, "toc"); toc != nil {
		seed.TOC = parseTOC(toc)
	}
	if rel := FindByID(root, "relatedTopics"); rel != nil {
		walk(rel, func(n *html.Node) {
			if n.Data == "a" && hasClass(n, "topic") {
				seed.Related = append(seed.Related, doctree.RelatedTopic{ID: attr(n, "id"), Topic: textOf(n)})
			}
		})
	}
	return seed, nil
}

func parsePages(art *html.Node) []*doctree.Page {
	var pages []*doctree.Page
	walk(art, func(n *html.Node) {
		if n.Data != "div" || !hasClass(n, "page") {
			return
		}
		page := &doctree.Page{Index: len(pages), Hidden: hasClass(n, "hidden")}
		var parent *doctree.Section
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data != "section" {
				continue
			}
			sec := &doctree.Section{
				ID:    attr(c, "id"),
				Kind:  doctree.KindTopLevel,
				Index: len(page.Blocks),
			}
			if hasClass(c, "sub") {
				sec.Kind = doctree.KindNested
			}
			if t := find(c, func(e *html.Node) bool { return hasClass(e, "sectionTitle") }); t != nil {
				sec.Title = textOf(t)
			}
			if body := find(c, func(e *html.Node) bool { return hasClass(e, "sectionContent") }); body != nil {
				sec.Content = innerHTML(body)
			}
			switch {
			case sec.Kind == doctree.KindTopLevel:
				parent = sec
			case parent != nil:
				sec.ParentID = parent.ID
				parent.Subsections = append(parent.Subsections, sec)
			}
			page.Append(sec)
		}
		pages = append(pages, page)
	})
	return pages
}

func parseTOC(ol *html.Node) []*doctree.TOCNode {
	var nodes []*doctree.TOCNode
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		node := &doctree.TOCNode{Active: hasClass(li, "active")}
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "a":
				node.ID = attr(c, "data-section-id")
				node.Title = textOf(c)
			case "ol":
				for _, child := range parseTOC(c) {
					child.Active = false
					node.Children = append(node.Children, child)
				}
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// walk visits element nodes depth-first. It does not descend into a
// matched div.page, whose sections are read directly.
func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		fn(c)
		if c.Data == "div" && hasClass(c, "page") {
			continue
		}
		walk(c, fn)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&sb, c)
	}
	return strings.TrimSpace(sb.String())
}
