package meshgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/meshgo/blobstore"
	"github.com/hupe1980/meshgo/resource"
	"github.com/hupe1980/meshgo/store"
)

// DefaultStopDrainTimeout bounds how long Stop waits for queued writes
// to drain before giving up.
const DefaultStopDrainTimeout = 3 * time.Second

type options struct {
	outDir           string
	blobStore        blobstore.Store
	throttle         time.Duration
	compression      store.Compression
	stopDrainTimeout time.Duration
	resourceCfg      *resource.Config
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Scanner construction.
type Option func(*options)

// WithOutputDir sets the directory merged exports are written to.
// Defaults to the data directory.
func WithOutputDir(dir string) Option {
	return func(o *options) { o.outDir = dir }
}

// WithBlobStore overrides the fragment storage backend. When set, the
// data directory passed to New is ignored (it may be empty).
func WithBlobStore(bs blobstore.Store) Option {
	return func(o *options) { o.blobStore = bs }
}

// WithThrottleInterval sets the minimum time between accepted writes
// for the same fragment id. Zero disables throttling. Default 1s.
func WithThrottleInterval(d time.Duration) Option {
	return func(o *options) { o.throttle = d }
}

// WithCompression selects the fragment-file compression.
func WithCompression(c store.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithStopDrainTimeout bounds how long Stop waits for in-flight writes.
func WithStopDrainTimeout(d time.Duration) Option {
	return func(o *options) { o.stopDrainTimeout = d }
}

// WithResourceLimits bounds concurrent background export/load jobs and
// paces their IO so a large merge cannot starve the capture queue.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) { o.resourceCfg = &cfg }
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets
// it. Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		throttle:         store.DefaultThrottleInterval,
		stopDrainTimeout: DefaultStopDrainTimeout,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
