// Package render turns a session snapshot into the entry markup that
// selection rules run against, and exports it as DOCX.
package render

import (
	"io"
	"net/url"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/session"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func el(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i+1] == "" {
			continue
		}
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func appendAll(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}

func classes(base string, hidden bool, extra ...string) string {
	parts := []string{}
	if base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, extra...)
	if hidden {
		parts = append(parts, "hidden")
	}
	return strings.Join(parts, " ")
}

// Document renders snap as a complete HTML page.
func Document(snap session.Snapshot) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	root := el("html")
	doc.AppendChild(root)

	head := appendAll(el("head"),
		el("meta", "charset", "utf-8"),
		appendAll(el("title"), text(snap.Title)),
	)
	body := el("body")
	appendAll(root, head, body)

	appendAll(body,
		header(snap),
		outline(snap),
		article(snap),
		appendAll(el("div", "id", "accuracyNotice", "class", classes("notice", !snap.Affordances.AccuracyNotice)),
			text("This entry was generated and may contain inaccuracies."),
		),
		related(snap),
	)
	return doc
}

func header(snap session.Snapshot) *html.Node {
	h := el("header", "id", "mainHeader")
	appendAll(h, appendAll(el("h1", "id", "title"), text(snap.Title)))
	appendAll(h, appendAll(el("div", "id", "summary"), appendAll(el("p"), text(snap.Summary))))

	cover := el("a", "id", "coverImage", "class", classes("cover", !snap.Affordances.CoverImage))
	if snap.Cover != nil {
		cover.Attr = append(cover.Attr,
			html.Attribute{Key: "href", Val: snap.Cover.URL},
			html.Attribute{Key: "style", Val: "background-image: url('" + snap.Cover.URL + "')"},
		)
		if snap.Cover.Source != "" {
			appendAll(cover, appendAll(el("span", "id", "coverImageSource"), text("Source: "+snap.Cover.Source)))
		}
	}
	appendAll(cover, el("div", "id", "coverImageProgressIndicator", "class", classes("progress", !snap.Affordances.CoverProgress)))
	appendAll(h, cover)

	appendAll(h, el("div", "id", "entryProgressIndicator", "class", classes("progress", !snap.Affordances.Progress)))
	return h
}

func outline(snap session.Snapshot) *html.Node {
	tocClass := ""
	if snap.Affordances.TOCLoading {
		tocClass = "loading"
	}
	ol := el("ol", "id", "toc", "class", tocClass)
	for _, n := range snap.TOC {
		li := el("li")
		if n.Active {
			li.Attr = append(li.Attr, html.Attribute{Key: "class", Val: "active"})
		}
		appendAll(li, appendAll(el("a", "href", "#"+n.ID, "data-section-id", n.ID), text(n.Title)))
		if len(n.Children) > 0 {
			sub := el("ol")
			for _, c := range n.Children {
				appendAll(sub, appendAll(el("li"),
					appendAll(el("a", "class", "subsection", "href", "#"+c.ID, "data-section-id", c.ID), text(c.Title)),
				))
			}
			appendAll(li, sub)
		}
		appendAll(ol, li)
	}
	return appendAll(el("nav"), ol)
}

func article(snap session.Snapshot) *html.Node {
	content := el("div", "class", "content")
	for _, p := range snap.Pages {
		page := el("div", "class", classes("page", p.Hidden))
		for _, b := range p.Blocks {
			switch b.Type {
			case "section":
				appendAll(page, section(b))
			case "item":
				appendAll(page, fact(b))
			}
		}
		appendAll(content, page)
	}
	return appendAll(el("article", "id", snap.EntryID), content)
}

func section(b session.BlockSnapshot) *html.Node {
	kind := string(b.Kind)
	if kind == "" {
		kind = string(doctree.KindTopLevel)
	}
	s := el("section", "id", b.ID, "class", kind, "data-section-id", "s-"+b.ID)
	appendAll(s, appendAll(el("h2", "class", "sectionTitle"), text(b.Title)))
	body := el("div", "class", "sectionContent")
	if b.Content != "" {
		nodes, err := html.ParseFragment(strings.NewReader(b.Content), el("div"))
		if err != nil {
			appendAll(body, text(b.Content))
		} else {
			appendAll(body, nodes...)
		}
	}
	return appendAll(s, body)
}

func fact(b session.BlockSnapshot) *html.Node {
	title := b.Title
	if title == "" {
		title = "Fact"
	}
	return appendAll(el("div", "class", "funFact", "id", b.ID),
		el("div", "class", "icon"),
		appendAll(el("div", "class", "wrapper"),
			appendAll(el("h4", "class", "title"), text(title)),
			appendAll(el("p"), text(b.Content)),
		),
	)
}

func related(snap session.Snapshot) *html.Node {
	list := el("ul", "id", "relatedTopics")
	for _, t := range snap.Related {
		href := "/e/new?" + url.Values{"topic": {t.Topic}}.Encode()
		appendAll(list, appendAll(el("li"),
			appendAll(el("a", "class", "topic", "id", t.ID, "href", href), text(t.Topic)),
		))
	}
	return appendAll(el("div", "id", "relatedTopicsContainer", "class", classes("", !snap.Affordances.RelatedTopics)), list)
}

// WriteHTML renders n to w.
func WriteHTML(w io.Writer, n *html.Node) error {
	return html.Render(w, n)
}

// FindByID returns the first element under root with the given id.
func FindByID(root *html.Node, id string) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && attr(root, "id") == id {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
