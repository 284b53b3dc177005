// Package store keeps a todo.txt style document in sync with its storage.
//
// A Store reads and writes the document through one Backend: DirectPath
// for plain filesystem paths, ScopedDocument for handle-addressed documents
// reached through a Resolver. For DirectPath the Store watches the loaded
// file and reports changes made by other processes, ignoring the
// notifications caused by its own saves.
//
// Store operations never return errors. Unauthorized calls fire the
// auth-failed callbacks; backend failures are logged. Both yield the
// operation's empty result.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/legamerdc/todostore/internal"
	"github.com/legamerdc/todostore/internal/clock"
)

const textMime = "text/plain"

// Store is the facade over one backend, its change tracker and, for the
// direct backend, the file watch.
type Store struct {
	backend Backend
	gate    AuthGate
	tracker *Tracker
	watch   *Watch
	grace   time.Duration
	log     *slog.Logger

	// mu orders saves against loads so a save's suppress, write,
	// re-enable and observe steps are not interleaved with a watch move.
	mu sync.Mutex

	hookMu     sync.RWMutex
	authFailed []func()
	changed    []func(path string)
}

// New returns a Store over backend. gate is consulted before every
// operation.
func New(backend Backend, gate AuthGate, opts ...Option) *Store {
	cfg := config{
		clock: clock.Real{},
		log:   slog.Default(),
		grace: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if gate == nil {
		gate = AlwaysAuthorized
	}
	s := &Store{
		backend:    backend,
		gate:       gate,
		tracker:    NewTracker(cfg.lastSeen),
		grace:      cfg.grace,
		log:        cfg.log,
		authFailed: cfg.authFailed,
		changed:    cfg.changed,
	}
	if backend.Kind() == DirectPath {
		n := cfg.notifier
		if n == nil {
			n = NewFSNotifier(cfg.log)
		}
		s.watch = NewWatch(n, cfg.clock, cfg.log, s.externalChange)
	}
	return s
}

// Kind returns the kind of the configured backend.
func (s *Store) Kind() BackendKind {
	return s.backend.Kind()
}

// OnExternalChange registers another external change callback. Callbacks
// run on the watch goroutine and must not call Close.
func (s *Store) OnExternalChange(f func(path string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.changed = append(s.changed, f)
}

// OnAuthFailed registers another auth failure callback.
func (s *Store) OnAuthFailed(f func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.authFailed = append(s.authFailed, f)
}

func (s *Store) externalChange(path string) {
	s.hookMu.RLock()
	hooks := append([]func(string){}, s.changed...)
	s.hookMu.RUnlock()
	for _, f := range hooks {
		f(path)
	}
}

func (s *Store) authorized(ctx context.Context, op string) bool {
	if s.gate.Authorized(ctx) {
		return true
	}
	s.log.Warn("store: not authorized", slog.String("op", op))
	s.hookMu.RLock()
	hooks := append([]func(){}, s.authFailed...)
	s.hookMu.RUnlock()
	for _, f := range hooks {
		f()
	}
	return false
}

// DefaultLocation is todo.txt in the backend's default directory.
func (s *Store) DefaultLocation() Location {
	return s.backend.Default("todo.txt")
}

// Load reads the document as lines and records its marker. For the direct
// backend it also starts watching the file.
func (s *Store) Load(ctx context.Context, loc Location) []string {
	if !s.authorized(ctx, "load") {
		return []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend.Kind() == ScopedDocument {
		resolved, err := s.backend.EnsureExists(ctx, loc, textMime)
		if err != nil {
			s.log.Warn("store: document not found and could not be created",
				slog.String("loc", loc.String()), slog.Any("err", err))
			return []string{}
		}
		loc = resolved
	}

	// the marker is taken first: a write racing the read then shows up
	// as a pending change instead of being marked as seen
	marker, markerErr := s.currentMarker(ctx, loc)
	content, err := s.backend.Read(ctx, loc)
	if err != nil {
		s.log.Error("store: load", slog.String("loc", loc.String()), slog.Any("err", err))
		return []string{}
	}
	lines := internal.SplitLines(content)
	s.log.Info("store: loaded", slog.String("loc", loc.String()), slog.Int("lines", len(lines)))

	if markerErr != nil {
		s.log.Error("store: marker", slog.String("loc", loc.String()), slog.Any("err", markerErr))
	} else {
		s.tracker.Observe(marker)
	}
	if s.watch != nil {
		if err := s.watch.Start(loc.Path); err != nil {
			s.log.Error("store: watch", slog.String("path", loc.Path), slog.Any("err", err))
		}
	}
	return lines
}

// currentMarker maps an absent document to MissingMarker.
func (s *Store) currentMarker(ctx context.Context, loc Location) (Marker, error) {
	m, err := s.backend.LastModified(ctx, loc)
	if errors.Is(err, ErrNotExist) {
		return MissingMarker, nil
	}
	return m, err
}

func (s *Store) observe(ctx context.Context, loc Location) {
	m, err := s.currentMarker(ctx, loc)
	if err != nil {
		s.log.Error("store: marker", slog.String("loc", loc.String()), slog.Any("err", err))
		return
	}
	s.tracker.Observe(m)
}

// NeedSync reports whether the document changed since the last load or
// save. It reports true when unauthorized or when the marker cannot be
// read, so callers fall back to Load.
func (s *Store) NeedSync(ctx context.Context, loc Location) bool {
	if !s.authorized(ctx, "needSync") {
		return true
	}
	m, err := s.currentMarker(ctx, loc)
	if err != nil {
		s.log.Error("store: marker", slog.String("loc", loc.String()), slog.Any("err", err))
		return true
	}
	return s.tracker.NeedSync(m)
}

// LastSeen returns the marker of the last successful load or save.
func (s *Store) LastSeen() Marker {
	return s.tracker.Last()
}

// IdentityChanged forgets the last marker; call it when the configured
// document changes.
func (s *Store) IdentityChanged() {
	s.log.Info("store: document identity changed")
	s.tracker.Invalidate()
}

// Save replaces the document with lines, each terminated by eol. It
// returns the location written and whether the write succeeded.
func (s *Store) Save(ctx context.Context, loc Location, lines []string, eol string) (Location, bool) {
	if !s.authorized(ctx, "save") {
		return loc, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	content := internal.JoinLines(lines, eol)
	if s.backend.Kind() == ScopedDocument {
		resolved, err := s.backend.EnsureExists(ctx, loc, textMime)
		if err != nil {
			s.log.Warn("store: cannot save, document not available",
				slog.String("loc", loc.String()), slog.Any("err", err))
			return loc, false
		}
		s.log.Info("store: saving", slog.String("loc", resolved.String()), slog.Int("lines", len(lines)))
		if err := s.backend.Write(ctx, resolved, content, Truncate); err != nil {
			s.log.Error("store: save", slog.String("loc", resolved.String()), slog.Any("err", err))
			return loc, false
		}
		s.observe(ctx, resolved)
		return resolved, true
	}

	s.log.Info("store: saving", slog.String("loc", loc.String()), slog.Int("lines", len(lines)))
	s.watch.Suppress(true)
	err := s.backend.Write(ctx, loc, content, Truncate)
	s.watch.ScheduleReenable(s.grace)
	if err != nil {
		s.log.Error("store: save", slog.String("loc", loc.String()), slog.Any("err", err))
		return loc, false
	}
	s.observe(ctx, loc)
	return loc, true
}

// Append adds lines to a secondary document such as done.txt. The
// tracked document's marker is left untouched.
func (s *Store) Append(ctx context.Context, loc Location, lines []string, eol string) {
	if !s.authorized(ctx, "append") {
		return
	}
	if s.backend.Kind() == ScopedDocument {
		resolved, err := s.backend.EnsureExists(ctx, loc, textMime)
		if err != nil {
			s.log.Warn("store: cannot append, document not available",
				slog.String("loc", loc.String()), slog.Any("err", err))
			return
		}
		loc = resolved
	}
	s.log.Info("store: appending", slog.String("loc", loc.String()), slog.Int("lines", len(lines)))
	if err := s.backend.Write(ctx, loc, internal.JoinLines(lines, eol), Append); err != nil {
		s.log.Error("store: append", slog.String("loc", loc.String()), slog.Any("err", err))
	}
}

// ReadFile returns the raw content of loc without touching the tracker or
// the watch. ok is false when unauthorized or on failure.
func (s *Store) ReadFile(ctx context.Context, loc Location) (content string, ok bool) {
	if !s.authorized(ctx, "readFile") {
		return "", false
	}
	if s.backend.Kind() == ScopedDocument {
		resolved, err := s.backend.EnsureExists(ctx, loc, textMime)
		if err != nil {
			s.log.Warn("store: document not available", slog.String("loc", loc.String()), slog.Any("err", err))
			return "", false
		}
		loc = resolved
	}
	content, err := s.backend.Read(ctx, loc)
	if err != nil {
		s.log.Error("store: read", slog.String("loc", loc.String()), slog.Any("err", err))
		return "", false
	}
	return content, true
}

// WriteFile replaces the raw content of loc. Unlike Save it neither
// suppresses the watch nor records a marker.
func (s *Store) WriteFile(ctx context.Context, loc Location, content string) {
	if !s.authorized(ctx, "writeFile") {
		return
	}
	if s.backend.Kind() == ScopedDocument {
		resolved, err := s.backend.EnsureExists(ctx, loc, textMime)
		if err != nil {
			s.log.Warn("store: cannot write, document not available",
				slog.String("loc", loc.String()), slog.Any("err", err))
			return
		}
		loc = resolved
	}
	if err := s.backend.Write(ctx, loc, content, Truncate); err != nil {
		s.log.Error("store: write", slog.String("loc", loc.String()), slog.Any("err", err))
	}
}

// List returns the entries of dir for picking a document. The scoped
// backend always returns an empty list.
func (s *Store) List(ctx context.Context, dir string, txtOnly bool) []FileEntry {
	if !s.authorized(ctx, "list") {
		return []FileEntry{}
	}
	entries, err := s.backend.List(ctx, dir, txtOnly)
	if err != nil {
		s.log.Error("store: list", slog.String("dir", dir), slog.Any("err", err))
		return []FileEntry{}
	}
	return entries
}

// Watching returns the watched path, or "" when nothing is watched.
func (s *Store) Watching() string {
	if s.watch == nil {
		return ""
	}
	return s.watch.Path()
}

// Close stops the file watch and its pending timer.
func (s *Store) Close() error {
	if s.watch != nil {
		s.watch.Stop()
	}
	return nil
}
