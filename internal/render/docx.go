package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docstream/internal/session"
	"github.com/fumiama/go-docx"
	"github.com/gosimple/slug"
	"golang.org/x/net/html"
)

// Filename returns the export file name for an entry.
func Filename(snap session.Snapshot, ext string) string {
	name := slug.Make(snap.Title)
	if name == "" {
		name = slug.Make(snap.EntryID)
	}
	if name == "" {
		name = "entry"
	}
	return name + ext
}

// DOCX writes the loaded sections and facts of snap as a Word document.
func DOCX(w io.Writer, snap session.Snapshot) error {
	doc := docx.New().WithDefaultTheme()

	doc.AddParagraph().AddText(snap.Title).Bold().Size("40")
	if snap.Summary != "" {
		doc.AddParagraph().AddText(snap.Summary).Italic()
	}

	for _, p := range snap.Pages {
		for _, b := range p.Blocks {
			switch b.Type {
			case "section":
				size := "32"
				if b.Kind == "sub" {
					size = "28"
				}
				doc.AddParagraph().AddText(b.Title).Bold().Size(size)
				for _, para := range paragraphs(b.Content) {
					doc.AddParagraph().AddText(para)
				}
			case "item":
				title := b.Title
				if title == "" {
					title = "Fact"
				}
				para := doc.AddParagraph()
				para.AddText(title + ": ").Bold()
				para.AddText(b.Content).Italic()
			}
		}
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

var blockTags = map[string]bool{
	"p": true, "li": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "pre": true, "blockquote": true, "td": true,
}

// paragraphs flattens section HTML into plain-text paragraphs.
func paragraphs(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), el("div"))
	if err != nil {
		return []string{content}
	}
	var out []string
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode && blockTags[n.Data] {
			if t := textOf(n); t != "" {
				out = append(out, t)
			}
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, strings.Join(strings.Fields(t), " "))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	for _, n := range nodes {
		rec(n)
	}
	return out
}
