package store

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/legamerdc/todostore/internal/clock"
)

// Watch follows external changes of a single file.
//
// Events are dropped while the watch is suppressed. The owner suppresses
// before writing the file itself and calls ScheduleReenable afterwards, so
// the notification caused by its own write is not reported as an external
// change. Each subscription is tagged with a generation; events that
// arrive from a cancelled subscription are discarded.
type Watch struct {
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
	onChange func(path string)

	suppressed atomic.Bool

	// deliverMu is held from the liveness check to the end of onChange.
	// Lock order: deliverMu before mu.
	deliverMu sync.Mutex

	mu       sync.Mutex
	path     string
	sub      Subscription
	gen      uint64
	timer    clock.Timer
	timerGen uint64
}

// NewWatch returns an idle watch. onChange is called once per qualifying
// event, from the notifier's goroutine. It must not call Stop.
func NewWatch(n Notifier, c clock.Clock, log *slog.Logger, onChange func(path string)) *Watch {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Watch{notifier: n, clock: c, log: log, onChange: onChange}
}

// Start watches path. It is a no-op when path is already watched and
// replaces the subscription when another path is.
func (w *Watch) Start(path string) error {
	path = canonical(path)
	w.mu.Lock()
	if w.sub != nil && w.path == path {
		w.mu.Unlock()
		w.log.Debug("watch: already watching", slog.String("path", path))
		return nil
	}
	old := w.cancelLocked()
	w.mu.Unlock()
	if old != nil {
		w.log.Info("watch: moving", slog.String("from", old.path), slog.String("to", path))
		_ = old.sub.Close()
	}

	sub, err := w.notifier.Subscribe(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.sub != nil {
		// A concurrent Start won; keep its subscription.
		w.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	w.gen++
	gen := w.gen
	w.sub = sub
	w.path = path
	w.suppressed.Store(false)
	w.mu.Unlock()

	w.log.Info("watch: started", slog.String("path", path))
	go w.pump(sub, gen)
	return nil
}

type cancelled struct {
	sub  Subscription
	path string
}

// cancelLocked detaches the live subscription and pending timer. The
// caller closes the returned subscription after releasing w.mu.
func (w *Watch) cancelLocked() *cancelled {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerGen++
	if w.sub == nil {
		return nil
	}
	c := &cancelled{sub: w.sub, path: w.path}
	w.gen++
	w.sub = nil
	w.path = ""
	return c
}

// Stop cancels the subscription and any pending re-enable. No change is
// reported for the old path after Stop returns: a delivery already past
// its liveness check finishes before Stop returns.
func (w *Watch) Stop() {
	w.mu.Lock()
	old := w.cancelLocked()
	w.mu.Unlock()
	if old != nil {
		w.log.Info("watch: stopped", slog.String("path", old.path))
		_ = old.sub.Close()
	}
	// wait out a running delivery
	w.deliverMu.Lock()
	w.deliverMu.Unlock()
}

func (w *Watch) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub != nil
}

// Path returns the watched path, or "" when idle.
func (w *Watch) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Suppress turns event suppression on or off. Turning it on also cancels a
// pending re-enable, so an earlier grace period cannot end a newer write's
// suppression.
func (w *Watch) Suppress(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.stopTimerLocked()
	}
	w.suppressed.Store(on)
	w.log.Debug("watch: suppress", slog.String("path", w.path), slog.Bool("on", on))
}

func (w *Watch) Suppressed() bool {
	return w.suppressed.Load()
}

// ScheduleReenable ends suppression after d. A later call replaces the
// pending one.
func (w *Watch) ScheduleReenable(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	gen := w.stopTimerLocked()
	w.timer = w.clock.AfterFunc(d, func() { w.reenable(gen) })
}

func (w *Watch) stopTimerLocked() uint64 {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerGen++
	return w.timerGen
}

func (w *Watch) reenable(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.timerGen {
		return
	}
	w.timer = nil
	w.suppressed.Store(false)
	w.log.Info("watch: events enabled", slog.String("path", w.path))
}

// OnEvent handles an event for the live subscription.
func (w *Watch) OnEvent(kind EventKind, path string) {
	w.mu.Lock()
	gen := w.gen
	w.mu.Unlock()
	w.deliver(gen, Event{Kind: kind, Path: canonical(path)})
}

func (w *Watch) pump(sub Subscription, gen uint64) {
	for ev := range sub.Events() {
		w.deliver(gen, ev)
	}
}

func (w *Watch) deliver(gen uint64, ev Event) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	w.mu.Lock()
	live := w.sub != nil && w.gen == gen
	path := w.path
	w.mu.Unlock()
	if !live {
		w.log.Debug("watch: late event dropped", slog.String("path", ev.Path))
		return
	}
	if ev.Path != path || !ev.Kind.ContentChanged() {
		return
	}
	if w.suppressed.Load() {
		w.log.Info("watch: ignored own change", slog.String("path", path), slog.String("event", ev.Kind.String()))
		return
	}
	w.log.Info("watch: file changed", slog.String("path", path), slog.String("event", ev.Kind.String()))
	w.onChange(path)
}
