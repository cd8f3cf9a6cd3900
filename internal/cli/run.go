package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/config"
	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/indexers"
	"github.com/roach88/gravindex/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StoreOptions

	Config          string
	Events          string
	BatchSize       int
	LoadConcurrency int
	DryRun          bool

	// IDs overrides the batch id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	IDs engine.BatchIDGenerator
}

// RunSummary is what a run committed.
type RunSummary struct {
	Read        int                      `json:"read"`
	Filtered    int                      `json:"filtered"`
	Resumed     int                      `json:"resumed"`
	Batches     int                      `json:"batches"`
	Events      int                      `json:"events"`
	Skipped     int                      `json:"skipped"`
	Mutations   int                      `json:"mutations"`
	Checkpoints map[uint64]ir.Provenance `json:"checkpoints"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Read %d event(s), %d outside the config\n", s.Read, s.Filtered)
	fmt.Fprintf(&b, "Committed %d batch(es): %d event(s), %d skipped, %d resumed, %d mutation(s)\n",
		s.Batches, s.Events, s.Skipped, s.Resumed, s.Mutations)
	chains := make([]uint64, 0, len(s.Checkpoints))
	for c := range s.Checkpoints {
		chains = append(chains, c)
	}
	slices.Sort(chains)
	for _, c := range chains {
		fmt.Fprintf(&b, "  chain %d checkpoint %s\n", c, s.Checkpoints[c])
	}
	return b.String()
}

// DryRunSummary is the first pending batch, executed but not committed.
type DryRunSummary struct {
	BatchID   string        `json:"batch_id"`
	Events    int           `json:"events"`
	Handled   int           `json:"handled"`
	Digest    string        `json:"digest"`
	Mutations []ir.Mutation `json:"mutations"`
}

func (s DryRunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dry run of %d event(s), %d handled, digest %s\n", s.Events, s.Handled, s.Digest)
	for _, m := range s.Mutations {
		fmt.Fprintf(&b, "  %s %s @%s\n", m.Kind, m.Ref, m.Provenance)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index an event file",
		Long: `Index the events of a file into the store.

The config selects handlers, contract addresses and block ranges; events
outside it are dropped. Events at or before a chain's committed checkpoint
are skipped, so re-running the same file resumes where the last run
stopped.

Event files are YAML lists or, with a .json/.jsonl/.ndjson extension, one
JSON event per line.

Example:
  gravindex run --config gravatar.yaml --events events.ndjson --db ./index.db
  gravindex run --config gravatar.yaml --events events.yaml --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to indexer config (required)")
	cmd.Flags().StringVar(&opts.Events, "events", "", "path to event file (required)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "events per batch (overrides config)")
	cmd.Flags().IntVar(&opts.LoadConcurrency, "load-concurrency", 0, "concurrent load functions (overrides config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "execute the first pending batch without committing")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runIndex(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeConfig, "invalid config", err.Error())
	}
	reg, err := indexers.Build(cfg)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeConfig, "cannot build handlers", err.Error())
	}

	events, err := loadEvents(opts.Events)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeEvents, "failed to read events", err.Error())
	}
	read := len(events)
	events, filtered := cfg.Resolver().FilterEvents(events)
	f.VerboseLog("Read %d event(s), %d outside the config", read, filtered)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := opts.open(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err.Error())
	}
	defer closeStore(st)

	engOpts := cfg.EngineOptions()
	if opts.BatchSize > 0 {
		engOpts = append(engOpts, engine.WithBatchSize(opts.BatchSize))
	}
	if opts.LoadConcurrency > 0 {
		engOpts = append(engOpts, engine.WithLoadConcurrency(opts.LoadConcurrency))
	}
	if opts.IDs != nil {
		engOpts = append(engOpts, engine.WithBatchIDGenerator(opts.IDs))
	}

	if opts.DryRun {
		return dryRun(ctx, f, reg, st, events, engOpts)
	}

	engOpts = append(engOpts, engine.WithOnCommit(func(res *engine.BatchResult) {
		f.VerboseLog("Committed %s: %d event(s), %d mutation(s), checkpoint %s",
			res.BatchID, res.Events, len(res.Mutations), res.Checkpoint)
	}))

	eng := engine.New(reg, st, engOpts...)
	stats, err := eng.ProcessAll(ctx, events)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("run interrupted", "batches", stats.Batches)
		}
		code := ErrCodeBatch
		var be *engine.BatchError
		if !errors.As(err, &be) {
			code = ErrCodeStore
		}
		return f.Fail(ExitFailure, code, "indexing stopped", err.Error())
	}

	return f.Success(RunSummary{
		Read:        read,
		Filtered:    filtered,
		Resumed:     stats.Resumed,
		Batches:     stats.Batches,
		Events:      stats.Events,
		Skipped:     stats.Skipped,
		Mutations:   stats.Mutations,
		Checkpoints: stats.Checkpoints,
	})
}

// dryRun plans and executes the first batch the engine would commit next,
// against the current store, and reports its mutations.
func dryRun(ctx context.Context, f *OutputFormatter, reg *engine.Registry, d engine.Durable, events []ir.Event, engOpts []engine.EngineOption) error {
	o := engine.DefaultOptions()
	for _, opt := range engOpts {
		opt(&o)
	}

	es := engine.NewEntityStore(d)
	cps, err := es.Checkpoints(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read checkpoints", err.Error())
	}
	pending := pendingEvents(events, cps)
	if len(pending) > o.BatchSize {
		pending = pending[:o.BatchSize]
	}

	planner := engine.NewPlanner(reg, o.LoadConcurrency)
	plan, err := planner.Collect(ctx, pending)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBatch, "dry run failed", err.Error())
	}
	res, err := engine.NewCoordinator(es, planner, engOpts...).DryRun(ctx, plan)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBatch, "dry run failed", err.Error())
	}

	return f.Success(DryRunSummary{
		BatchID:   res.BatchID,
		Events:    res.Events,
		Handled:   res.Handled,
		Digest:    res.Digest,
		Mutations: res.Mutations,
	})
}

// pendingEvents returns events after their chain's checkpoint, in
// provenance order.
func pendingEvents(events []ir.Event, cps map[uint64]ir.Provenance) []ir.Event {
	sorted := slices.Clone(events)
	ir.SortEvents(sorted)
	out, _ := engine.Uncommitted(sorted, cps)
	return out
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
