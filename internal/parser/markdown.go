package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser turns every list item and paragraph into one item. The
// nearest preceding heading becomes the item's title.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) ([]doctree.Item, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	c := newCollector(filename)
	heading := ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			heading = blockText(node, src)
		case *ast.List:
			for li := node.FirstChild(); li != nil; li = li.NextSibling() {
				c.add(heading, blockText(li, src))
			}
		case *ast.ThematicBreak:
			heading = ""
		default:
			c.add(heading, blockText(n, src))
		}
	}
	return c.items, nil
}

// blockText returns the source text of a block node, descending into
// container blocks such as list items and block quotes.
func blockText(n ast.Node, src []byte) string {
	if n.Type() != ast.TypeBlock {
		return ""
	}
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		var buf bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
