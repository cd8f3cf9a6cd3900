package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/config"
	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/indexers"
	"github.com/roach88/gravindex/internal/ir"
	"github.com/roach88/gravindex/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	StoreOptions

	Config    string
	Events    string
	BatchSize int
	Compare   bool // compare the rebuilt state with --db/--postgres
}

// ReplayResult reports two rebuilds of the same event file.
type ReplayResult struct {
	Batches       int      `json:"batches"`
	Mutations     int      `json:"mutations"`
	Digests       []string `json:"digests"`
	StateDigest   string   `json:"state_digest"`
	Deterministic bool     `json:"deterministic"`

	// FirstDivergence is the 1-based batch whose digests differ, 0 if none.
	FirstDivergence int `json:"first_divergence,omitempty"`

	// StoreDigest is the state digest of the compared store, when
	// requested.
	StoreDigest string `json:"store_digest,omitempty"`
	StoreMatch  *bool  `json:"store_match,omitempty"`
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replay Summary: %d batch(es), %d mutation(s)\n", r.Batches, r.Mutations)
	if r.Deterministic {
		fmt.Fprintf(&b, "✓ Both rebuilds produced identical digests\n")
	} else {
		fmt.Fprintf(&b, "✗ Rebuilds diverged at batch %d\n", r.FirstDivergence)
	}
	fmt.Fprintf(&b, "  state digest %s\n", r.StateDigest)
	if r.StoreMatch != nil {
		mark := "✓"
		if !*r.StoreMatch {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s Store state digest %s\n", mark, r.StoreDigest)
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild from an event file and verify determinism",
		Long: `Index the event file twice into fresh in-memory stores and compare the
mutation digest of every batch. With --compare, the rebuilt entity state
is also compared with the state of --db (or --postgres).

Exit codes:
  0 - Rebuilds are identical (and match the store, if compared)
  1 - Digests differ
  2 - Command error (unreadable config or events, database not found, etc.)

Examples:
  gravindex replay --config gravatar.yaml --events events.yaml
  gravindex replay --config gravatar.yaml --events events.yaml --compare --db ./index.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to indexer config (required)")
	cmd.Flags().StringVar(&opts.Events, "events", "", "path to event file (required)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "events per batch (overrides config)")
	cmd.Flags().BoolVar(&opts.Compare, "compare", false, "compare the rebuilt state with the store")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err.Error())
	}
	events, err := loadEvents(opts.Events)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeEvents, "failed to read events", err.Error())
	}
	events, _ = cfg.Resolver().FilterEvents(events)

	first, err := rebuild(ctx, cfg, events, opts.BatchSize)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBatch, "first replay failed", err.Error())
	}
	f.VerboseLog("First rebuild: %d batch(es)", len(first.digests))
	second, err := rebuild(ctx, cfg, events, opts.BatchSize)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBatch, "second replay failed", err.Error())
	}

	result := ReplayResult{
		Batches:       len(first.digests),
		Mutations:     first.mutations,
		Digests:       first.digests,
		StateDigest:   first.state,
		Deterministic: true,
	}
	if d := firstDivergence(first.digests, second.digests); d > 0 || first.state != second.state {
		result.Deterministic = false
		result.FirstDivergence = d
	}

	if opts.Compare {
		st, err := opts.open(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err.Error())
		}
		defer closeStore(st)
		digest, err := stateDigest(ctx, st)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read store state", err.Error())
		}
		match := digest == first.state
		result.StoreDigest = digest
		result.StoreMatch = &match
	}

	if !result.Deterministic || (result.StoreMatch != nil && !*result.StoreMatch) {
		return f.Fail(ExitFailure, ErrCodeDigest, "determinism verification failed", result)
	}
	return f.Success(result)
}

type rebuildResult struct {
	digests   []string
	mutations int
	state     string
}

// rebuild indexes events into a fresh in-memory store with deterministic
// batch ids.
func rebuild(ctx context.Context, cfg *config.Config, events []ir.Event, batchSize int) (*rebuildResult, error) {
	reg, err := indexers.Build(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer st.Close()

	out := &rebuildResult{}
	opts := append(cfg.EngineOptions(),
		engine.WithBatchIDGenerator(engine.NewSequentialGenerator("replay")),
		engine.WithOnCommit(func(res *engine.BatchResult) {
			out.digests = append(out.digests, res.Digest)
			out.mutations += len(res.Mutations)
		}),
	)
	if batchSize > 0 {
		opts = append(opts, engine.WithBatchSize(batchSize))
	}

	if _, err := engine.New(reg, st, opts...).ProcessAll(ctx, events); err != nil {
		return nil, err
	}
	if out.state, err = stateDigest(ctx, st); err != nil {
		return nil, err
	}
	return out, nil
}

// stateDigest hashes every committed entity, by type then id.
func stateDigest(ctx context.Context, st *store.Store) (string, error) {
	types, err := st.EntityTypes(ctx)
	if err != nil {
		return "", err
	}
	var all []ir.Mutation
	for _, t := range types {
		rows, err := st.ListEntities(ctx, t)
		if err != nil {
			return "", err
		}
		all = append(all, rows...)
	}
	return ir.MutationsDigest(all)
}

func firstDivergence(a, b []string) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			return i + 1
		}
	}
	return 0
}
