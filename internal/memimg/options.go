package memimg

import (
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/memimg/internal/platform/id"
	"github.com/louisbranch/memimg/internal/platform/metrics"
)

// Option configures an Image.
type Option func(*options)

type options struct {
	logger               *zap.Logger
	metrics              *metrics.Collector
	lockTimeout          time.Duration
	panicOnInconsistency bool
	clock                func() time.Time
	newID                func() (string, error)
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		clock:  time.Now,
		newID:  id.NewID,
	}
}

// WithLogger sets the logger used for failures and replay progress.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records mutation, query, lock and replay metrics.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithLockTimeout bounds how long an operation waits for the lock. Zero
// waits as long as the caller's context allows.
func WithLockTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = timeout
	}
}

// WithPanicOnInconsistency panics when a rollback fails instead of only
// marking the image unusable.
func WithPanicOnInconsistency(enabled bool) Option {
	return func(o *options) {
		o.panicOnInconsistency = enabled
	}
}

// WithClock overrides the event timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}
