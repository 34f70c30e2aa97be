package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser reads paragraphs from every page of a PDF.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, filename string) ([]doctree.Item, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docstream-facts-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	c := newCollector(filename)
	for i, page := range pages {
		title := fmt.Sprintf("Page %d", i+1)
		for _, para := range strings.Split(page, "\n\n") {
			c.add(title, strings.Join(strings.Fields(para), " "))
		}
	}
	return c.items, nil
}

func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
