package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/gravindex/internal/ir"
)

const instrumentationName = "github.com/roach88/gravindex/internal/engine"

// BatchResult describes one processed batch.
type BatchResult struct {
	BatchID string

	// Seq numbers batches processed by this coordinator, starting at 1.
	Seq int64

	// Events is the number of events in the batch; Handled the number
	// dispatched to a handler.
	Events  int
	Handled int

	// Mutations in commit order.
	Mutations []ir.Mutation

	// Digest is ir.MutationsDigest(Mutations).
	Digest string

	// Checkpoints per chain; Checkpoint is the greatest of them.
	Checkpoints []ir.Provenance
	Checkpoint  ir.Provenance

	// Committed is false for dry runs.
	Committed bool
}

// Coordinator drives one batch at a time through
// Planning → Fetching → Executing → Committing.
//
// Thread-safety: methods may be called from any goroutine, but only one
// batch runs at a time; a concurrent call fails with ErrCoordinatorBusy.
type Coordinator struct {
	store    *EntityStore
	planner  *Planner
	executor Executor
	opts     Options
	clock    *Clock
	state    atomic.Int32

	tracer  trace.Tracer
	metrics coordinatorMetrics
}

type coordinatorMetrics struct {
	batches   metric.Int64Counter
	events    metric.Int64Counter
	mutations metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewCoordinator creates a coordinator over es, planning with planner.
func NewCoordinator(es *EntityStore, planner *Planner, opts ...EngineOption) *Coordinator {
	o := buildOptions(opts)
	c := &Coordinator{
		store:   es,
		planner: planner,
		opts:    o,
		clock:   NewClock(),
	}

	tp := o.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(instrumentationName)

	mp := o.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	c.metrics = newCoordinatorMetrics(mp.Meter(instrumentationName))
	return c
}

func newCoordinatorMetrics(m metric.Meter) coordinatorMetrics {
	var cm coordinatorMetrics
	var err error

	if cm.batches, err = m.Int64Counter("gravindex.batches",
		metric.WithDescription("Batches processed, by outcome"),
		metric.WithUnit("{batch}"),
	); err != nil {
		otel.Handle(err)
		cm.batches = noop.Int64Counter{}
	}
	if cm.events, err = m.Int64Counter("gravindex.events",
		metric.WithDescription("Events in committed batches"),
		metric.WithUnit("{event}"),
	); err != nil {
		otel.Handle(err)
		cm.events = noop.Int64Counter{}
	}
	if cm.mutations, err = m.Int64Counter("gravindex.mutations",
		metric.WithDescription("Entity mutations committed"),
		metric.WithUnit("{mutation}"),
	); err != nil {
		otel.Handle(err)
		cm.mutations = noop.Int64Counter{}
	}
	if cm.duration, err = m.Float64Histogram("gravindex.batch.duration",
		metric.WithDescription("Batch processing duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
		cm.duration = noop.Float64Histogram{}
	}
	return cm
}

// State returns the current phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Process runs a full cycle over events: load-phase collection, merged
// fetch, handlers in provenance order, and atomic commit.
func (c *Coordinator) Process(ctx context.Context, events []ir.Event) (*BatchResult, error) {
	if !c.begin() {
		return nil, ErrCoordinatorBusy
	}
	defer c.setState(StateIdle)

	plan, err := c.planner.Collect(ctx, events)
	if err != nil {
		c.recordOutcome(ctx, "failed")
		return nil, err
	}
	return c.run(ctx, plan, true)
}

// ProcessPlan runs a cycle over a plan already collected by the planner.
// Engine.Run uses it to overlap collection of the next batch with this
// one.
func (c *Coordinator) ProcessPlan(ctx context.Context, plan *Plan) (*BatchResult, error) {
	if !c.begin() {
		return nil, ErrCoordinatorBusy
	}
	defer c.setState(StateIdle)
	return c.run(ctx, plan, true)
}

// DryRun runs Planning → Fetching → Executing and returns the mutations
// and digest without committing. Running it twice against an unchanged
// store yields identical digests.
func (c *Coordinator) DryRun(ctx context.Context, plan *Plan) (*BatchResult, error) {
	if !c.begin() {
		return nil, ErrCoordinatorBusy
	}
	defer c.setState(StateIdle)
	return c.run(ctx, plan, false)
}

func (c *Coordinator) begin() bool {
	return c.state.CompareAndSwap(int32(StateIdle), int32(StatePlanning))
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Coordinator) run(ctx context.Context, plan *Plan, commit bool) (*BatchResult, error) {
	if plan.BatchID == "" {
		plan.BatchID = c.opts.IDs.Generate()
	}
	first, last := plan.Range()
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "gravindex.batch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.id", plan.BatchID),
			attribute.Int("batch.events", plan.Total),
			attribute.Int("batch.handled", len(plan.Events)),
			attribute.Bool("batch.dry_run", !commit),
		),
	)
	defer span.End()

	var b *Batch
	fail := func(phase State, err error) (*BatchResult, error) {
		if b != nil {
			b.Discard()
		}
		be := &BatchError{BatchID: plan.BatchID, Phase: phase, First: first, Last: last, Cause: err}
		span.RecordError(be)
		span.SetStatus(codes.Error, be.Error())
		c.recordOutcome(ctx, "failed")
		slog.Error("batch failed",
			"batch_id", plan.BatchID,
			"phase", phase.String(),
			"first", first.String(),
			"last", last.String(),
			"error", err,
		)
		return nil, be
	}

	// Planning: merge the collected requests.
	reqs := plan.Requests()
	span.SetAttributes(attribute.Int("batch.entity_types", len(reqs)))

	c.setState(StateFetching)
	err := c.phase(ctx, "fetch", c.opts.FetchTimeout, func(ctx context.Context) error {
		var err error
		b, err = c.planner.Fetch(ctx, c.store, plan)
		return err
	})
	if err != nil {
		return fail(StateFetching, err)
	}

	c.setState(StateExecuting)
	err = c.phase(ctx, "execute", 0, func(ctx context.Context) error {
		return c.executor.Execute(ctx, plan, b)
	})
	if err != nil {
		return fail(StateExecuting, err)
	}

	mutations := b.Overlay().Mutations()
	digest, err := ir.MutationsDigest(mutations)
	if err != nil {
		return fail(StateExecuting, err)
	}

	result := &BatchResult{
		BatchID:     plan.BatchID,
		Seq:         c.clock.Next(),
		Events:      plan.Total,
		Handled:     len(plan.Events),
		Mutations:   mutations,
		Digest:      digest,
		Checkpoints: plan.Checkpoints,
		Checkpoint:  maxProvenance(plan.Checkpoints),
	}

	if !commit {
		b.Discard()
		c.recordOutcome(ctx, "dry_run")
		return result, nil
	}

	c.setState(StateCommitting)
	set := ir.CommitSet{
		BatchID:     plan.BatchID,
		Mutations:   mutations,
		Checkpoints: plan.Checkpoints,
		EventCount:  plan.Total,
		Digest:      digest,
		History:     c.opts.History,
	}
	err = c.phase(ctx, "commit", c.opts.CommitTimeout, func(ctx context.Context) error {
		return c.store.Commit(ctx, set)
	})
	if err != nil {
		return fail(StateCommitting, err)
	}
	b.Discard()
	result.Committed = true

	c.recordOutcome(ctx, "committed")
	c.metrics.events.Add(ctx, int64(plan.Total))
	c.metrics.mutations.Add(ctx, int64(len(mutations)))
	c.metrics.duration.Record(ctx, time.Since(start).Seconds())

	slog.Debug("batch committed",
		"batch_id", plan.BatchID,
		"seq", result.Seq,
		"events", plan.Total,
		"handled", len(plan.Events),
		"mutations", len(mutations),
		"checkpoint", result.Checkpoint.String(),
	)
	return result, nil
}

// phase runs fn in a child span, under timeout when positive.
func (c *Coordinator) phase(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "gravindex.batch."+name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Coordinator) recordOutcome(ctx context.Context, outcome string) {
	c.metrics.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func maxProvenance(ps []ir.Provenance) ir.Provenance {
	var out ir.Provenance
	for _, p := range ps {
		if out.Less(p) {
			out = p
		}
	}
	return out
}
