package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gravindex/internal/ir"
)

// Stats summarizes an Engine.Run.
type Stats struct {
	Batches   int
	Events    int
	Skipped   int
	Mutations int

	// Resumed counts events dropped because a checkpoint already covered
	// them.
	Resumed int

	// Checkpoints is the last committed provenance per chain.
	Checkpoints map[uint64]ir.Provenance
}

// Engine consumes an event stream, cuts it into batches, and drives each
// batch through the coordinator.
//
// Run pipelines two goroutines: a collector that cuts batch N+1 and runs
// its load phases, and an applier that fetches, executes and commits batch
// N. The applier takes plans in order, so commits are serialized in
// provenance order, and batch N+1's fetch starts only after batch N has
// committed.
//
// Thread-safety model:
//   - Enqueue(), Close(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine, once
type Engine struct {
	registry *Registry
	store    *EntityStore
	planner  *Planner
	coord    *Coordinator
	opts     Options
	queue    *eventQueue

	mu    sync.Mutex
	stats Stats
}

// New creates an Engine over durable storage d, dispatching through r.
//
// Options can be passed to configure the engine (e.g., WithBatchSize).
func New(r *Registry, d Durable, opts ...EngineOption) *Engine {
	o := buildOptions(opts)
	es := NewEntityStore(d)
	planner := NewPlanner(r, o.LoadConcurrency)
	return &Engine{
		registry: r,
		store:    es,
		planner:  planner,
		coord:    NewCoordinator(es, planner, opts...),
		opts:     o,
		queue:    newEventQueue(),
	}
}

// Coordinator returns the engine's batch coordinator.
func (e *Engine) Coordinator() *Coordinator {
	return e.coord
}

// Planner returns the engine's load planner.
func (e *Engine) Planner() *Planner {
	return e.planner
}

// Enqueue submits events for processing by Run.
// Thread-safe: may be called from any goroutine.
//
// Returns ErrEngineClosed after Close.
func (e *Engine) Enqueue(evs ...ir.Event) error {
	if !e.queue.Enqueue(evs...) {
		return ErrEngineClosed
	}
	return nil
}

// Close signals the end of the event stream. Run drains what is queued and
// returns.
func (e *Engine) Close() {
	e.queue.Close()
}

// QueueLen returns the number of events waiting to be batched.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Stats returns a snapshot of what Run has committed so far.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Checkpoints = maps.Clone(e.stats.Checkpoints)
	return s
}

// Run processes events until the queue is closed and drained, the context
// is cancelled, or a batch fails permanently.
//
// On start Run reads the durable checkpoints and drops events at or before
// their chain's checkpoint. Batches failing on storage are retried with
// the configured RetryPolicy; any other failure stops Run with the
// *BatchError.
func (e *Engine) Run(ctx context.Context) error {
	cps, err := e.store.Checkpoints(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoints: %w", err)
	}
	e.mu.Lock()
	e.stats.Checkpoints = maps.Clone(cps)
	if e.stats.Checkpoints == nil {
		e.stats.Checkpoints = make(map[uint64]ir.Provenance)
	}
	e.mu.Unlock()

	slog.Info("engine starting",
		"batch_size", e.opts.BatchSize,
		"chains", len(cps),
	)

	g, gctx := errgroup.WithContext(ctx)
	plans := make(chan *Plan)

	// Collector: cut and plan batch N+1 while the applier works on N.
	g.Go(func() error {
		defer close(plans)
		for {
			events, ok, err := e.nextBatch(gctx, cps)
			if err != nil || !ok {
				return err
			}
			if len(events) == 0 {
				continue
			}
			plan, err := e.planner.Collect(gctx, events)
			if err != nil {
				return err
			}
			select {
			case plans <- plan:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// Applier: one batch at a time, in order.
	g.Go(func() error {
		for plan := range plans {
			if err := e.apply(gctx, plan); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		slog.Error("engine stopped", "error", err)
		return err
	}
	slog.Info("engine stopping: queue drained")
	return nil
}

// nextBatch waits for events and returns up to BatchSize of them, minus
// those already covered by a checkpoint. ok is false once the queue is
// closed and drained.
func (e *Engine) nextBatch(ctx context.Context, cps map[uint64]ir.Provenance) (events []ir.Event, ok bool, err error) {
	for {
		if evs := e.queue.TryDequeue(e.opts.BatchSize); len(evs) > 0 {
			return e.dropCommitted(evs, cps), true, nil
		}
		if e.queue.Drained() {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-e.queue.Wait():
			// Signal received or queue closed; loop back to TryDequeue.
		}
	}
}

// Uncommitted filters evs in place down to events after their chain's
// checkpoint, and returns them with the number dropped. Order is kept.
func Uncommitted(evs []ir.Event, cps map[uint64]ir.Provenance) ([]ir.Event, int) {
	if len(cps) == 0 {
		return evs, 0
	}
	kept := evs[:0]
	for _, ev := range evs {
		cp, ok := cps[ev.Provenance.ChainID]
		if ok && !cp.Less(ev.Provenance) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept, len(evs) - len(kept)
}

func (e *Engine) dropCommitted(evs []ir.Event, cps map[uint64]ir.Provenance) []ir.Event {
	kept, dropped := Uncommitted(evs, cps)
	if dropped > 0 {
		slog.Debug("skipping events covered by checkpoint", "count", dropped)
		e.mu.Lock()
		e.stats.Resumed += dropped
		e.mu.Unlock()
	}
	return kept
}

func (e *Engine) apply(ctx context.Context, plan *Plan) error {
	var result *BatchResult
	err := e.opts.Retry.Do(ctx, func(attempt int) error {
		var err error
		result, err = e.coord.ProcessPlan(ctx, plan)
		return err
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.stats.Batches++
	e.stats.Events += result.Events
	e.stats.Skipped += result.Events - result.Handled
	e.stats.Mutations += len(result.Mutations)
	for _, cp := range result.Checkpoints {
		e.stats.Checkpoints[cp.ChainID] = cp
	}
	e.mu.Unlock()

	if e.opts.OnCommit != nil {
		e.opts.OnCommit(result)
	}
	return nil
}

// ProcessAll runs events to completion in batches of BatchSize: it sorts
// them into provenance order, enqueues them, closes the stream, and runs.
// Intended for one-shot callers (CLI, harness); the engine cannot be
// reused afterwards.
func (e *Engine) ProcessAll(ctx context.Context, events []ir.Event) (Stats, error) {
	sorted := slices.Clone(events)
	ir.SortEvents(sorted)
	if err := e.Enqueue(sorted...); err != nil {
		return Stats{}, err
	}
	e.Close()
	err := e.Run(ctx)
	return e.Stats(), err
}
