package interstitial

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/dgallion1/docstream/internal/doctree"
)

// Injector inserts at most one item per loaded page per pass.
type Injector struct {
	supply Supply
	log    *slog.Logger

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

// New builds an injector over supply. A nil src uses a randomly seeded
// source; tests pass a seeded one.
func New(supply Supply, src rand.Source, log *slog.Logger) *Injector {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Injector{supply: supply, log: log, rnd: rand.New(src)}
}

// Inject runs one pass over pages in order and returns how many items were
// inserted. Unloaded pages are skipped. The pass stops as soon as the
// supply runs dry.
func (in *Injector) Inject(ctx context.Context, pages []*doctree.Page) (int, error) {
	if in == nil || in.supply == nil {
		return 0, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	inserted := 0
	for _, page := range pages {
		if page == nil || !page.Loaded() {
			continue
		}
		if in.rnd.Float64() >= 0.5 {
			continue
		}
		item, ok, err := in.supply.Pop(ctx)
		if err != nil {
			return inserted, err
		}
		if !ok {
			in.log.Debug("fact supply exhausted", "page", page.Index)
			break
		}

		sections := page.Sections()
		n := len(sections)
		r := int(in.rnd.Float64()*float64(n-1)) + 1
		it := item
		if r >= n {
			page.Append(&it)
		} else {
			page.InsertBefore(&it, sections[r])
		}
		inserted++
	}
	return inserted, nil
}
