package engine

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for engine tuning.
const (
	DefaultBatchSize     = 500
	DefaultFetchTimeout  = 30 * time.Second
	DefaultCommitTimeout = 30 * time.Second
)

// Options holds engine and coordinator tuning. Zero durations disable the
// corresponding timeout.
type Options struct {
	// BatchSize is the maximum number of events cut into one batch.
	BatchSize int

	// LoadConcurrency bounds concurrently running load functions.
	// 0 uses GOMAXPROCS.
	LoadConcurrency int

	FetchTimeout  time.Duration
	CommitTimeout time.Duration

	Retry RetryPolicy

	// History appends every committed mutation to entity history.
	History bool

	IDs BatchIDGenerator

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// OnCommit is called by Engine.Run after each committed batch, from
	// the applier goroutine.
	OnCommit func(*BatchResult)
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		FetchTimeout:  DefaultFetchTimeout,
		CommitTimeout: DefaultCommitTimeout,
		Retry:         DefaultRetryPolicy(),
		IDs:           UUIDv7Generator{},
	}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Options)

// WithBatchSize sets the maximum events per batch.
func WithBatchSize(n int) EngineOption {
	return func(o *Options) {
		o.BatchSize = n
	}
}

// WithLoadConcurrency bounds concurrent load functions per batch.
func WithLoadConcurrency(n int) EngineOption {
	return func(o *Options) {
		o.LoadConcurrency = n
	}
}

// WithFetchTimeout bounds the merged fetch of one batch.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(o *Options) {
		o.FetchTimeout = d
	}
}

// WithCommitTimeout bounds the durable commit of one batch.
func WithCommitTimeout(d time.Duration) EngineOption {
	return func(o *Options) {
		o.CommitTimeout = d
	}
}

// WithRetryPolicy sets how Engine.Run retries failed batches.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(o *Options) {
		o.Retry = p
	}
}

// WithHistory enables entity history rows on commit.
func WithHistory(enabled bool) EngineOption {
	return func(o *Options) {
		o.History = enabled
	}
}

// WithBatchIDGenerator replaces the UUIDv7 batch id generator.
// Use SequentialGenerator for deterministic ids in tests.
func WithBatchIDGenerator(g BatchIDGenerator) EngineOption {
	return func(o *Options) {
		o.IDs = g
	}
}

// WithTracerProvider sets the provider for batch and phase spans.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithMeterProvider sets the provider for batch metrics.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(o *Options) {
		o.MeterProvider = mp
	}
}

// WithOnCommit registers a callback for every committed batch.
func WithOnCommit(fn func(*BatchResult)) EngineOption {
	return func(o *Options) {
		o.OnCommit = fn
	}
}

func buildOptions(opts []EngineOption) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	return o
}
