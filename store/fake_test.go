package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNotifier records subscriptions and lets tests push events.
type fakeNotifier struct {
	mu   sync.Mutex
	subs []*fakeSub
	log  []string
}

func (n *fakeNotifier) Subscribe(path string) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := &fakeSub{n: n, path: path, events: make(chan Event, 16)}
	n.subs = append(n.subs, s)
	n.log = append(n.log, "subscribe "+path)
	return s, nil
}

func (n *fakeNotifier) subscriptions() []*fakeSub {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*fakeSub(nil), n.subs...)
}

func (n *fakeNotifier) history() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.log...)
}

func (n *fakeNotifier) last() *fakeSub {
	subs := n.subscriptions()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

type fakeSub struct {
	n      *fakeNotifier
	path   string
	events chan Event
	closed bool
}

func (s *fakeSub) Events() <-chan Event { return s.events }

func (s *fakeSub) Close() error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
		s.n.log = append(s.n.log, "close "+s.path)
	}
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return s.closed
}

// send reports false when the subscription is already closed.
func (s *fakeSub) send(kind EventKind) bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- Event{Kind: kind, Path: s.path}
	return true
}

// recorder collects external change notifications.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// spyBackend counts backend calls and can observe writes.
type spyBackend struct {
	Backend
	mu        sync.Mutex
	calls     int
	onWrite   func()
	afterRead func()
}

func (b *spyBackend) hit() {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
}

func (b *spyBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *spyBackend) Read(ctx context.Context, loc Location) (string, error) {
	b.hit()
	content, err := b.Backend.Read(ctx, loc)
	if b.afterRead != nil {
		b.afterRead()
	}
	return content, err
}

func (b *spyBackend) Write(ctx context.Context, loc Location, content string, mode Mode) error {
	b.hit()
	if b.onWrite != nil {
		b.onWrite()
	}
	return b.Backend.Write(ctx, loc, content, mode)
}

func (b *spyBackend) EnsureExists(ctx context.Context, loc Location, mime string) (Location, error) {
	b.hit()
	return b.Backend.EnsureExists(ctx, loc, mime)
}

func (b *spyBackend) List(ctx context.Context, dir string, txtOnly bool) ([]FileEntry, error) {
	b.hit()
	return b.Backend.List(ctx, dir, txtOnly)
}

func (b *spyBackend) LastModified(ctx context.Context, loc Location) (Marker, error) {
	b.hit()
	return b.Backend.LastModified(ctx, loc)
}

// memResolver is an in-memory Resolver.
type memResolver struct {
	mu         sync.Mutex
	docs       map[Handle]*memDoc
	seq        int
	tick       int64
	creates    int
	failCreate bool
}

type memDoc struct {
	parent   Handle
	name     string
	mime     string
	content  string
	modified time.Time
}

func newMemResolver() *memResolver {
	return &memResolver{docs: map[Handle]*memDoc{"root": {name: "root"}}}
}

func (r *memResolver) stamp() time.Time {
	r.tick++
	return time.Unix(0, r.tick)
}

func (r *memResolver) Find(_ context.Context, parent Handle, name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, d := range r.docs {
		if d.parent == parent && d.name == name {
			return h, nil
		}
	}
	return "", ErrNotExist
}

func (r *memResolver) Create(_ context.Context, parent Handle, name, mime string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return "", errors.New("create refused")
	}
	r.seq++
	r.creates++
	h := Handle("doc-" + string(rune('a'+r.seq)))
	r.docs[h] = &memDoc{parent: parent, name: name, mime: mime, modified: r.stamp()}
	return h, nil
}

func (r *memResolver) OpenRead(_ context.Context, h Handle) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[h]
	if !ok {
		return nil, ErrNotExist
	}
	return io.NopCloser(bytes.NewBufferString(d.content)), nil
}

func (r *memResolver) OpenWrite(_ context.Context, h Handle, mode Mode) (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[h]; !ok {
		return nil, ErrNotExist
	}
	return &memWriter{r: r, h: h, mode: mode}, nil
}

func (r *memResolver) Modified(_ context.Context, h Handle) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[h]
	if !ok {
		return time.Time{}, ErrNotExist
	}
	return d.modified, nil
}

func (r *memResolver) set(h Handle, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.docs[h]
	d.content = content
	d.modified = r.stamp()
}

func (r *memResolver) count(parent Handle, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.docs {
		if d.parent == parent && d.name == name {
			n++
		}
	}
	return n
}

type memWriter struct {
	r    *memResolver
	h    Handle
	mode Mode
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	d := w.r.docs[w.h]
	if w.mode == Append {
		d.content += w.buf.String()
	} else {
		d.content = w.buf.String()
	}
	d.modified = w.r.stamp()
	return nil
}
