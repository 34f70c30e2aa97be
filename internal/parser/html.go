package parser

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser reads div.funFact blocks, as rendered on entry pages. Pages
// without them fall back to one item per li or p element.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) ([]doctree.Item, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	c := newCollector(filename)

	var facts func(*html.Node)
	facts = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "funFact") {
			title := ""
			if h := findElement(n, func(e *html.Node) bool { return e.Data == "h4" }); h != nil {
				title = textContent(h)
			}
			body := n
			if para := findElement(n, func(e *html.Node) bool { return e.Data == "p" }); para != nil {
				body = para
			}
			c.add(title, textContent(body))
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			facts(ch)
		}
	}
	facts(doc)
	if len(c.items) > 0 {
		return c.items, nil
	}

	root := findElement(doc, func(e *html.Node) bool { return e.Data == "body" })
	if root == nil {
		root = doc
	}
	heading := ""
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				heading = textContent(n)
				return
			case "p", "li":
				c.add(heading, textContent(n))
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	return c.items, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && slices.Contains(strings.Fields(a.Val), class) {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && match(ch) {
			return ch
		}
		if found := findElement(ch, match); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}
