package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
)

// CSVParser reads one item per row. The header row names the columns; a
// "content" column is preferred, otherwise the first column is used. An
// optional "title" column supplies titles.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) ([]doctree.Item, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	c := newCollector(filename)
	if len(records) == 0 {
		return c.items, nil
	}

	contentCol, titleCol := 0, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "content", "content_md", "fact":
			contentCol = i
		case "title":
			titleCol = i
		}
	}

	for _, row := range records[1:] {
		if contentCol >= len(row) {
			continue
		}
		title := ""
		if titleCol >= 0 && titleCol < len(row) {
			title = row[titleCol]
		}
		c.add(title, row[contentCol])
	}
	return c.items, nil
}
