package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
)

// TextParser treats each blank-line separated paragraph as one item.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) ([]doctree.Item, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	c := newCollector(filename)
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			c.add("", current.String())
			current.Reset()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	c.add("", current.String())

	return c.items, nil
}
