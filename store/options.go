package store

import (
	"log/slog"
	"time"

	"github.com/legamerdc/todostore/internal/clock"
)

// DefaultGracePeriod is how long events stay suppressed after a save.
const DefaultGracePeriod = time.Second

type config struct {
	notifier   Notifier
	clock      clock.Clock
	log        *slog.Logger
	grace      time.Duration
	lastSeen   Marker
	authFailed []func()
	changed    []func(path string)
}

// Option configures a Store.
type Option func(*config)

// WithNotifier sets the change notification source of the direct backend.
// Defaults to fsnotify.
func WithNotifier(n Notifier) Option {
	return func(c *config) { c.notifier = n }
}

func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithGracePeriod sets how long after a save notifications are ignored.
// The right value depends on the filesystem's notification latency.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithLastSeen seeds the change tracker, e.g. with a marker persisted by a
// previous run.
func WithLastSeen(m Marker) Option {
	return func(c *config) { c.lastSeen = m }
}

// WithAuthFailed registers a callback fired whenever an operation is
// refused for lack of authorization.
func WithAuthFailed(f func()) Option {
	return func(c *config) {
		if f != nil {
			c.authFailed = append(c.authFailed, f)
		}
	}
}

// WithExternalChange registers a callback fired when the watched document
// is changed by someone else.
func WithExternalChange(f func(path string)) Option {
	return func(c *config) {
		if f != nil {
			c.changed = append(c.changed, f)
		}
	}
}
