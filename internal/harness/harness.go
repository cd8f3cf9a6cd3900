package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/gravindex/internal/config"
	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/indexers"
	"github.com/roach88/gravindex/internal/ir"
	"github.com/roach88/gravindex/internal/store"
)

// BatchIDPrefix prefixes the deterministic batch ids of scenario runs.
const BatchIDPrefix = "batch"

// Harness is the test execution engine for one scenario. It owns an
// isolated store and a deterministic batch id sequence.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	registry *engine.Registry
	resolver *config.Resolver
	opts     []engine.EngineOption
	ids      *engine.SequentialGenerator
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh in-memory SQLite store
//  2. Build the registry from the config or handler map
//  3. Commit setup events, then run the main events
//  4. Snapshot the committed state and evaluate assertions
//
// A returned error means the scenario could not be executed at all;
// engine failures are reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if len(scenario.Setup) > 0 {
		if err := h.process(ctx, scenario.Setup, true, result); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
	}

	runErr := h.process(ctx, scenario.Events, false, result)
	switch {
	case scenario.ExpectError != "" && runErr == nil:
		result.AddError(fmt.Sprintf("expected error containing %q, run succeeded", scenario.ExpectError))
	case scenario.ExpectError != "" && !strings.Contains(runErr.Error(), scenario.ExpectError):
		result.RunError = runErr.Error()
		result.AddError(fmt.Sprintf("expected error containing %q, got: %v", scenario.ExpectError, runErr))
	case runErr != nil:
		result.RunError = runErr.Error()
		if scenario.ExpectError == "" {
			result.AddError(fmt.Sprintf("run failed: %v", runErr))
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	h := &Harness{
		scenario: scenario,
		store:    st,
		ids:      engine.NewSequentialGenerator(BatchIDPrefix),
	}

	if scenario.Config != "" {
		cfg, err := config.Load(scenario.Config)
		if err != nil {
			return nil, err
		}
		h.registry, err = indexers.Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("build registry: %w", err)
		}
		h.resolver = cfg.Resolver()
		h.opts = cfg.EngineOptions()
	} else {
		h.registry = engine.NewRegistry()
		for contract, name := range scenario.Handlers {
			ix, ok := indexers.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("contract %s: unknown handler %q", contract, name)
			}
			ix(h.registry, contract)
		}
	}

	if scenario.BatchSize > 0 {
		h.opts = append(h.opts, engine.WithBatchSize(scenario.BatchSize))
	}
	// Scenarios observe failures directly; retrying would only repeat them.
	h.opts = append(h.opts,
		engine.WithRetryPolicy(engine.RetryPolicy{MaxAttempts: 1}),
		engine.WithBatchIDGenerator(h.ids),
	)
	return h, nil
}

// process runs events through a fresh engine over the shared store. Each
// call resumes from the checkpoints the previous one committed.
func (h *Harness) process(ctx context.Context, events []ir.Event, setup bool, result *Result) error {
	events = cloneEvents(events)
	if h.resolver != nil {
		var dropped int
		events, dropped = h.resolver.FilterEvents(events)
		if dropped > 0 {
			slog.Debug("scenario events outside config", "scenario", h.scenario.Name, "dropped", dropped)
		}
	}

	// OnCommit runs on the applier goroutine; ProcessAll returns only after
	// it has stopped.
	var traces []BatchTrace
	opts := append(append([]engine.EngineOption{}, h.opts...),
		engine.WithOnCommit(func(res *engine.BatchResult) {
			traces = append(traces, newBatchTrace(res, setup))
		}),
	)

	eng := engine.New(h.registry, h.store, opts...)
	_, err := eng.ProcessAll(ctx, events)
	result.Trace = append(result.Trace, traces...)
	return err
}

// snapshot records every committed entity and checkpoint.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	types, err := h.store.EntityTypes(ctx)
	if err != nil {
		return err
	}
	for _, t := range types {
		rows, err := h.store.ListEntities(ctx, t)
		if err != nil {
			return err
		}
		byID := make(map[string]ir.IRObject, len(rows))
		for _, m := range rows {
			byID[m.Ref.ID] = m.Data
		}
		result.State[t] = byID
	}

	cps, err := h.store.Checkpoints(ctx)
	if err != nil {
		return err
	}
	result.Checkpoints = cps
	return nil
}

func cloneEvents(events []ir.Event) []ir.Event {
	return append([]ir.Event(nil), events...)
}
