package store

import (
	"os"
	"sync"
	"time"
)

// PollNotifier detects changes by comparing size and modification time at
// a fixed interval. It serves filesystems without native notifications.
type PollNotifier struct {
	interval time.Duration
}

func NewPollNotifier(interval time.Duration) *PollNotifier {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollNotifier{interval: interval}
}

func (n *PollNotifier) Subscribe(path string) (Subscription, error) {
	path = canonical(path)
	sub := &pollSubscription{
		path:   path,
		events: make(chan Event, 4),
		done:   make(chan struct{}),
		last:   statFile(path),
	}
	go sub.loop(n.interval)
	return sub, nil
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}

type pollSubscription struct {
	path   string
	events chan Event
	done   chan struct{}
	once   sync.Once
	last   fileState
}

func (s *pollSubscription) Events() <-chan Event {
	return s.events
}

func (s *pollSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *pollSubscription) loop(interval time.Duration) {
	defer close(s.events)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cur := statFile(s.path)
			kind, changed := diffState(s.last, cur)
			s.last = cur
			if !changed {
				continue
			}
			select {
			case s.events <- Event{Kind: kind, Path: s.path}:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func diffState(prev, cur fileState) (EventKind, bool) {
	switch {
	case prev.exists && !cur.exists:
		return EventDelete, true
	case !prev.exists && cur.exists:
		return EventMovedTo, true
	case !cur.exists:
		return 0, false
	case prev.size != cur.size || !prev.modTime.Equal(cur.modTime):
		return EventModify, true
	}
	return 0, false
}
