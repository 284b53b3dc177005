package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifier subscribes through fsnotify. It watches the parent directory
// and filters by name, so documents replaced by rename are still seen.
type FSNotifier struct {
	log *slog.Logger
}

func NewFSNotifier(log *slog.Logger) *FSNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &FSNotifier{log: log}
}

func (n *FSNotifier) Subscribe(path string) (Subscription, error) {
	path = canonical(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	sub := &fsSubscription{
		watcher: watcher,
		path:    path,
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
		log:     n.log,
	}
	go sub.loop()
	return sub, nil
}

type fsSubscription struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan Event
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger
}

func (s *fsSubscription) Events() <-chan Event {
	return s.events
}

func (s *fsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *fsSubscription) loop() {
	defer close(s.events)
	watcher := s.watcher
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			select {
			case s.events <- Event{Kind: kindOf(event.Op), Path: s.path}:
			case <-s.done:
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("fsnotify watch", slog.String("path", s.path), slog.Any("err", err))
		case <-s.done:
			return
		}
	}
}

// kindOf maps fsnotify ops onto event kinds. fsnotify has no close-write
// op; a rename into the watched name is reported as Create.
func kindOf(op fsnotify.Op) EventKind {
	switch {
	case op.Has(fsnotify.Create):
		return EventMovedTo
	case op.Has(fsnotify.Write):
		return EventModify
	case op.Has(fsnotify.Remove):
		return EventDelete
	case op.Has(fsnotify.Rename):
		return EventMovedFrom
	default:
		return EventAttrib
	}
}
