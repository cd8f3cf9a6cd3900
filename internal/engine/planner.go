package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gravindex/internal/ir"
)

// PlannedEvent is one dispatched event with the entity refs its load phase
// declared.
type PlannedEvent struct {
	Event    ir.Event
	Requests []ir.EntityRef

	binding *binding
	params  any
}

// Plan is the load-phase result for one batch.
type Plan struct {
	// BatchID is assigned by the coordinator on the first attempt and kept
	// across retries, so a retried commit cannot apply the batch twice.
	BatchID string

	// Events holds the dispatched events in provenance order. Events of
	// unregistered kinds are not included.
	Events []PlannedEvent

	// Total counts every event of the batch, dispatched or skipped.
	Total int

	// Checkpoints holds, per chain in chain id order, the provenance of the
	// batch's last event on that chain. Skipped events count: the batch has
	// consumed them.
	Checkpoints []ir.Provenance

	first, last ir.Provenance
	requests    map[string][]string
}

// Skipped returns the number of events with no registered handler.
func (p *Plan) Skipped() int {
	return p.Total - len(p.Events)
}

// Range returns the provenance of the first and last event of the batch.
func (p *Plan) Range() (first, last ir.Provenance) {
	return p.first, p.last
}

// Requests merges every event's declared refs into a deduplicated
// entity type → sorted ids map. The result is computed once and shared;
// callers must not modify it.
func (p *Plan) Requests() map[string][]string {
	if p.requests != nil {
		return p.requests
	}
	seen := make(map[ir.EntityRef]struct{})
	out := make(map[string][]string)
	for _, pe := range p.Events {
		for _, ref := range pe.Requests {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			out[ref.Type] = append(out[ref.Type], ref.ID)
		}
	}
	for _, ids := range out {
		slices.Sort(ids)
	}
	p.requests = out
	return out
}

// Planner runs the load phase of a batch and turns the declared requests
// into bulk fetches.
type Planner struct {
	registry    *Registry
	concurrency int
}

// NewPlanner returns a planner dispatching through r. concurrency bounds
// the number of load functions running at once; values below 1 use
// GOMAXPROCS.
func NewPlanner(r *Registry, concurrency int) *Planner {
	if concurrency < 1 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Planner{registry: r, concurrency: concurrency}
}

// Collect sorts events into provenance order, dispatches each through the
// registry, and runs every load function with a recording LoadContext.
// Load functions run concurrently; each writes only its own event's
// request list.
//
// The input slice is not modified. A failing load function fails the whole
// collection with a *BatchError in the planning phase.
func (p *Planner) Collect(ctx context.Context, events []ir.Event) (*Plan, error) {
	sorted := slices.Clone(events)
	ir.SortEvents(sorted)

	plan := &Plan{
		Total:       len(sorted),
		Checkpoints: lastPerChain(sorted),
	}
	if len(sorted) > 0 {
		plan.first = sorted[0].Provenance
		plan.last = sorted[len(sorted)-1].Provenance
	}

	for _, ev := range sorted {
		b, ok := p.registry.lookup(ev.Contract, ev.Kind)
		if !ok {
			slog.Debug("skipping unregistered event",
				"contract", ev.Contract,
				"kind", ev.Kind,
				"provenance", ev.Provenance.String(),
			)
			continue
		}
		plan.Events = append(plan.Events, PlannedEvent{Event: ev, binding: b})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range plan.Events {
		pe := &plan.Events[i]
		g.Go(func() error {
			return runLoad(gctx, pe)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &BatchError{Phase: StatePlanning, First: plan.first, Last: plan.last, Cause: err}
	}
	return plan, nil
}

// Fetch issues the plan's merged requests, one FetchMany per entity type,
// and returns a batch whose preload cache holds every requested ref.
// Events that declared nothing proceed with nothing preloaded.
func (p *Planner) Fetch(ctx context.Context, es *EntityStore, plan *Plan) (*Batch, error) {
	b := NewBatch()
	if err := es.Fetch(ctx, b, plan.Requests()); err != nil {
		return nil, err
	}
	return b, nil
}

func runLoad(ctx context.Context, pe *PlannedEvent) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := &pe.Event

	params, err := pe.binding.decode(ev.Params)
	if err != nil {
		return fmt.Errorf("%s.%s at %s: %w", ev.Contract, ev.Kind, ev.Provenance, err)
	}
	pe.params = params
	if pe.binding.load == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanic{
				Contract:   ev.Contract,
				Kind:       ev.Kind,
				Provenance: ev.Provenance,
				Phase:      "load",
				Value:      r,
				Stack:      debug.Stack(),
			}
		}
	}()

	lc := &LoadContext{ctx: ctx, event: ev}
	if err := pe.binding.load(lc, params); err != nil {
		return fmt.Errorf("load %s.%s at %s: %w", ev.Contract, ev.Kind, ev.Provenance, err)
	}
	pe.Requests = lc.requests
	return nil
}

// lastPerChain returns the greatest provenance per chain, ordered by chain
// id. events must be sorted.
func lastPerChain(events []ir.Event) []ir.Provenance {
	var out []ir.Provenance
	for _, ev := range events {
		if n := len(out); n > 0 && out[n-1].ChainID == ev.Provenance.ChainID {
			out[n-1] = ev.Provenance
			continue
		}
		out = append(out, ev.Provenance)
	}
	return out
}
