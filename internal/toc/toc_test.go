package toc

import (
	"testing"

	"github.com/dgallion1/docstream/internal/doctree"
)

func sampleSections() []*doctree.Section {
	intro := &doctree.Section{ID: "a", Title: "Introduction", Kind: doctree.KindTopLevel}
	history := &doctree.Section{ID: "b", Title: "History", Kind: doctree.KindTopLevel}
	history.Subsections = []*doctree.Section{
		{ID: "b1", ParentID: "b", Title: "Origins", Kind: doctree.KindNested},
		{ID: "b2", ParentID: "b", Title: "Modern Era", Kind: doctree.KindNested},
	}
	usage := &doctree.Section{ID: "c", Title: "Usage", Kind: doctree.KindTopLevel}
	return []*doctree.Section{intro, history, usage}
}

func TestBuild_MirrorsSectionOrder(t *testing.T) {
	nodes := Build(sampleSections())

	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, id := range wantIDs {
		if nodes[i].ID != id {
			t.Errorf("node %d: expected id %q, got %q", i, id, nodes[i].ID)
		}
	}
	if len(nodes[1].Children) != 2 {
		t.Fatalf("expected 2 children under History, got %d", len(nodes[1].Children))
	}
	if nodes[1].Children[0].Title != "Origins" || nodes[1].Children[1].Title != "Modern Era" {
		t.Errorf("unexpected child order: %q, %q", nodes[1].Children[0].Title, nodes[1].Children[1].Title)
	}
	if len(nodes[0].Children) != 0 {
		t.Errorf("expected no children under Introduction, got %d", len(nodes[0].Children))
	}
}

func TestBuild_FirstNodeActive(t *testing.T) {
	nodes := Build(sampleSections())
	for i, n := range nodes {
		if n.Active != (i == 0) {
			t.Errorf("node %d: expected active=%v, got %v", i, i == 0, n.Active)
		}
	}
}

func TestBuild_Empty(t *testing.T) {
	if nodes := Build(nil); len(nodes) != 0 {
		t.Errorf("expected empty outline, got %d nodes", len(nodes))
	}
}

func TestActivate(t *testing.T) {
	nodes := Build(sampleSections())
	Activate(nodes, 2)
	for i, n := range nodes {
		if n.Active != (i == 2) {
			t.Errorf("node %d: expected active=%v, got %v", i, i == 2, n.Active)
		}
	}
}

func TestLocate(t *testing.T) {
	nodes := Build(sampleSections())
	tests := []struct {
		id   string
		want int
	}{
		{"a", 0},
		{"b2", 1},
		{"c", 2},
		{"missing", -1},
	}
	for _, tt := range tests {
		if got := Locate(nodes, tt.id); got != tt.want {
			t.Errorf("Locate(%q): expected %d, got %d", tt.id, tt.want, got)
		}
	}
}

func TestClone_Independent(t *testing.T) {
	nodes := Build(sampleSections())
	cp := Clone(nodes)
	cp[1].Children[0].Title = "changed"
	if nodes[1].Children[0].Title != "Origins" {
		t.Error("expected clone to be independent of the original")
	}
}
