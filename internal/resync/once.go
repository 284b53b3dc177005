// Package resync provides a sync.Once that can be reset.
package resync

import (
	"sync"
	"sync/atomic"
)

// Once runs a function once until Reset is called.
type Once struct {
	m    sync.Mutex
	done atomic.Bool
}

// Do calls f if it has not been called since creation or the last Reset.
// Concurrent callers wait for the running f to return.
func (o *Once) Do(f func()) {
	if o.done.Load() {
		return
	}
	o.m.Lock()
	defer o.m.Unlock()
	if !o.done.Load() {
		defer o.done.Store(true)
		f()
	}
}

// Reset makes the next Do call f again.
func (o *Once) Reset() {
	o.m.Lock()
	defer o.m.Unlock()
	o.done.Store(false)
}
