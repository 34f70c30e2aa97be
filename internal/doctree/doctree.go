package doctree

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrContentSet is returned when a section's content would be overwritten
// within the same load.
var ErrContentSet = errors.New("section content already set")

// SectionKind distinguishes top-level sections from nested subsections.
type SectionKind string

const (
	KindTopLevel SectionKind = "super"
	KindNested   SectionKind = "sub"
)

// Document is the root of an entry being assembled.
type Document struct {
	ID     string  // Entry ID
	Pages  []*Page // One page per top-level section
	Active int     // Index of the visible page
}

// Page is an ordered container of sections and interstitial items.
type Page struct {
	Index  int
	Hidden bool
	Blocks []Block
}

// Block is either a *Section or an *Item.
type Block interface {
	BlockID() string
}

// Section is a server-assigned unit of the document.
type Section struct {
	ID          string
	ParentID    string // Empty for top-level sections
	Kind        SectionKind
	Title       string
	Content     string // Rendered HTML; empty until its fragment arrives
	Index       int
	Subsections []*Section // Top-level sections only
}

func (s *Section) BlockID() string { return s.ID }

// SetContent fills in the section body once per load.
func (s *Section) SetContent(content string) error {
	if strings.TrimSpace(s.Content) != "" && s.Content != content {
		return ErrContentSet
	}
	s.Content = content
	return nil
}

// HasContent reports whether the section's fragment has arrived.
func (s *Section) HasContent() bool {
	return strings.TrimSpace(s.Content) != ""
}

// Item is a supplementary block injected between sections.
type Item struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content_md"`
}

func (it *Item) BlockID() string { return it.ID }

// TOCNode mirrors a top-level section in the table of contents.
type TOCNode struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Active   bool       `json:"active,omitempty"`
	Children []*TOCNode `json:"children,omitempty"`
}

// CoverImage describes the optional image shown above the entry.
type CoverImage struct {
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// RelatedTopic is a suggestion that can be turned into a new entry.
type RelatedTopic struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// Affordances are the presentation flags around the document body.
type Affordances struct {
	Progress       bool `json:"progress"`
	AccuracyNotice bool `json:"accuracy_notice"`
	RelatedTopics  bool `json:"related_topics"`
	TOCLoading     bool `json:"toc_loading"`
	CoverImage     bool `json:"cover_image"`
	CoverProgress  bool `json:"cover_progress"`
}

// Fragment is the wire shape of one streamed section.
type Fragment struct {
	ID        string `json:"id"`
	EntryID   string `json:"entry_id,omitempty"`
	Title     string `json:"title"`
	Content   string `json:"content_html,omitempty"`
	ContentMD string `json:"content_md,omitempty"`
	Index     int    `json:"index"`
	ParentID  string `json:"parent_id,omitempty"`
}

// UnmarshalJSON accepts "content" as an alias of "content_html".
func (f *Fragment) UnmarshalJSON(data []byte) error {
	type plain Fragment
	var aux struct {
		plain
		Alias string `json:"content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = Fragment(aux.plain)
	if f.Content == "" {
		f.Content = aux.Alias
	}
	return nil
}

// Nested reports whether the fragment belongs under a parent section.
func (f Fragment) Nested() bool { return f.ParentID != "" }

// NewSection builds a section from a fragment.
func NewSection(f Fragment) *Section {
	kind := KindTopLevel
	if f.Nested() {
		kind = KindNested
	}
	return &Section{
		ID:       f.ID,
		ParentID: f.ParentID,
		Kind:     kind,
		Title:    f.Title,
		Content:  f.Content,
		Index:    f.Index,
	}
}

// Sections lists the page's sections in block order.
func (p *Page) Sections() []*Section {
	var out []*Section
	for _, b := range p.Blocks {
		if s, ok := b.(*Section); ok {
			out = append(out, s)
		}
	}
	return out
}

// FirstSection returns the first section of the page, or nil.
func (p *Page) FirstSection() *Section {
	for _, b := range p.Blocks {
		if s, ok := b.(*Section); ok {
			return s
		}
	}
	return nil
}

// Loaded reports whether the page's first section has content.
func (p *Page) Loaded() bool {
	first := p.FirstSection()
	return first != nil && first.HasContent()
}

// Items lists interstitial items on the page.
func (p *Page) Items() []*Item {
	var out []*Item
	for _, b := range p.Blocks {
		if it, ok := b.(*Item); ok {
			out = append(out, it)
		}
	}
	return out
}

// Append adds a block at the end of the page.
func (p *Page) Append(b Block) {
	p.Blocks = append(p.Blocks, b)
}

// InsertBefore places b immediately before the given section. If the
// section is not on the page, b is appended.
func (p *Page) InsertBefore(b Block, before *Section) {
	for i, existing := range p.Blocks {
		if existing == Block(before) {
			p.Blocks = append(p.Blocks, nil)
			copy(p.Blocks[i+1:], p.Blocks[i:])
			p.Blocks[i] = b
			return
		}
	}
	p.Append(b)
}

// Reset empties the page.
func (p *Page) Reset() {
	p.Blocks = nil
}

// Clear drops every page.
func (d *Document) Clear() {
	d.Pages = nil
	d.Active = 0
}

// AddPage returns the page at index, creating it when missing. An index
// past the end of the page list appends a single page instead, so the list
// never grows by more than one page per call.
func (d *Document) AddPage(index int) *Page {
	if index < 0 || index >= len(d.Pages) {
		return d.AppendPage()
	}
	if d.Pages[index] == nil {
		d.Pages[index] = &Page{Index: index}
	}
	return d.Pages[index]
}

// AppendPage adds an empty page after the last one.
func (d *Document) AppendPage() *Page {
	p := &Page{Index: len(d.Pages)}
	d.Pages = append(d.Pages, p)
	return p
}

// Page returns the page at index, or nil.
func (d *Document) Page(index int) *Page {
	if index < 0 || index >= len(d.Pages) {
		return nil
	}
	return d.Pages[index]
}

// ActivePage returns the visible page, or nil.
func (d *Document) ActivePage() *Page {
	return d.Page(d.Active)
}

// FindSection looks a section up by ID across every page.
func (d *Document) FindSection(id string) (*Section, *Page) {
	for _, p := range d.Pages {
		if p == nil {
			continue
		}
		for _, s := range p.Sections() {
			if s.ID == id {
				return s, p
			}
		}
	}
	return nil, nil
}

// TopLevel lists top-level sections in page order.
func (d *Document) TopLevel() []*Section {
	var out []*Section
	for _, p := range d.Pages {
		if p == nil {
			continue
		}
		for _, s := range p.Sections() {
			if s.Kind == KindTopLevel {
				out = append(out, s)
			}
		}
	}
	return out
}
