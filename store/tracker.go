package store

import "sync"

// Tracker remembers the marker of the last successful load or save.
type Tracker struct {
	mu   sync.Mutex
	last Marker
}

func NewTracker(last Marker) *Tracker {
	return &Tracker{last: last}
}

// NeedSync reports whether current differs from the last observed marker.
// It is always true before the first Observe.
func (t *Tracker) NeedSync(current Marker) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last == NoMarker || current != t.last
}

func (t *Tracker) Observe(m Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = m
}

// Invalidate forgets the last marker, so the next NeedSync reports true.
func (t *Tracker) Invalidate() {
	t.Observe(NoMarker)
}

func (t *Tracker) Last() Marker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
