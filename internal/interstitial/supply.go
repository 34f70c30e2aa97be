// Package interstitial places supplementary items between the sections of
// loaded pages, drawing from a finite shared supply.
package interstitial

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/parser"
)

// Supply is a finite LIFO stack of items shared by every session.
type Supply interface {
	// Pop removes the most recently pushed item. ok is false once the
	// supply is empty.
	Pop(ctx context.Context) (item doctree.Item, ok bool, err error)
	Push(ctx context.Context, items ...doctree.Item) error
	Len(ctx context.Context) (int, error)
}

// MemorySupply is a process-wide in-memory Supply.
type MemorySupply struct {
	mu    sync.Mutex
	items []doctree.Item
}

func NewMemorySupply(items ...doctree.Item) *MemorySupply {
	return &MemorySupply{items: append([]doctree.Item(nil), items...)}
}

func (s *MemorySupply) Pop(_ context.Context) (doctree.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return doctree.Item{}, false, nil
	}
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return last, true, nil
}

func (s *MemorySupply) Push(_ context.Context, items ...doctree.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return nil
}

func (s *MemorySupply) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

// LoadFile reads a facts file and pushes its valid items onto supply. It
// returns the number of items loaded.
func LoadFile(ctx context.Context, supply Supply, path string) (int, error) {
	parsed, err := parser.ParseFile(path)
	if err != nil {
		return 0, fmt.Errorf("load facts %s: %w", path, err)
	}
	items := parsed[:0]
	for _, it := range parsed {
		if Valid(&it) {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := supply.Push(ctx, items...); err != nil {
		return 0, fmt.Errorf("push facts: %w", err)
	}
	return len(items), nil
}
