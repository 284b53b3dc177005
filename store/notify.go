package store

import "path/filepath"

//go:generate stringer -type=EventKind -trimprefix=Event
type EventKind uint32

const (
	EventAccess EventKind = iota
	EventModify
	EventAttrib
	EventCloseWrite
	EventCloseNoWrite
	EventOpen
	EventMovedFrom
	EventMovedTo
	EventCreate
	EventDelete
)

// ContentChanged reports whether the event means new content became
// readable at the path.
func (k EventKind) ContentChanged() bool {
	return k == EventCloseWrite || k == EventModify || k == EventMovedTo
}

// Event is one OS change notification.
type Event struct {
	Kind EventKind
	Path string
}

// Subscription delivers events for one path until closed. Events is closed
// after Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Notifier registers OS change notifications for a file.
type Notifier interface {
	Subscribe(path string) (Subscription, error)
}

func canonical(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	dir, base := filepath.Split(p)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return filepath.Clean(p)
}
