// Package parser reads supplementary-item ("fact") files into items that
// the interstitial injector can place between sections.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docstream/internal/doctree"
)

// Parser converts a facts file into items.
type Parser interface {
	Parse(r io.Reader, filename string) ([]doctree.Item, error)
}

// SupportedExtensions lists file extensions this package can read.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ParseFile opens path and parses it with the parser for its extension.
func ParseFile(path string) ([]doctree.Item, error) {
	p, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open facts file: %w", err)
	}
	defer f.Close()
	return p.Parse(f, filepath.Base(path))
}

// collector numbers items as they are found.
type collector struct {
	prefix string
	items  []doctree.Item
}

func newCollector(filename string) *collector {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" {
		base = "fact"
	}
	return &collector{prefix: base}
}

func (c *collector) add(title, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	c.items = append(c.items, doctree.Item{
		ID:      fmt.Sprintf("%s-%d", c.prefix, len(c.items)+1),
		Title:   strings.TrimSpace(title),
		Content: content,
	})
}
