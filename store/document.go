package store

import (
	"context"
	"sync"

	"github.com/legamerdc/todostore/internal/resync"
)

// Document caches the lines of one location and drops the cache when the
// Store reports an external change to it. Resetting twice for one change
// costs one extra reload at most.
type Document struct {
	store *Store
	loc   Location

	once  resync.Once
	mu    sync.RWMutex
	lines []string
}

func NewDocument(s *Store, loc Location) *Document {
	d := &Document{store: s, loc: loc}
	s.OnExternalChange(func(path string) {
		if loc.Path == "" || canonical(loc.Path) == path {
			d.Reset()
		}
	})
	return d
}

func (d *Document) Location() Location {
	return d.loc
}

// Lines returns the cached lines, loading them on first use or after a
// reset. The returned slice must not be modified.
func (d *Document) Lines(ctx context.Context) []string {
	d.once.Do(func() {
		lines := d.store.Load(ctx, d.loc)
		d.mu.Lock()
		d.lines = lines
		d.mu.Unlock()
	})
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lines
}

func (d *Document) Reset() {
	d.once.Reset()
}

// Refresh resets the cache when the stored document no longer matches the
// last load or save, and reports whether it did.
func (d *Document) Refresh(ctx context.Context) bool {
	if !d.store.NeedSync(ctx, d.loc) {
		return false
	}
	d.Reset()
	return true
}

// Save writes lines through the Store and caches them. When the save
// fails the cache is dropped so the next Lines reloads what is stored.
func (d *Document) Save(ctx context.Context, lines []string, eol string) bool {
	if _, ok := d.store.Save(ctx, d.loc, lines, eol); !ok {
		d.Reset()
		return false
	}
	d.mu.Lock()
	d.lines = append([]string(nil), lines...)
	d.mu.Unlock()
	return true
}
