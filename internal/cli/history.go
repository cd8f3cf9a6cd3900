package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/ir"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	StoreOptions
}

// HistoryView lists an entity's committed versions, or the batch log when
// no entity is named.
type HistoryView struct {
	Ref      string            `json:"ref,omitempty"`
	Versions []ir.HistoryEntry `json:"versions,omitempty"`
	Batches  []ir.BatchRecord  `json:"batches,omitempty"`
}

func (v HistoryView) String() string {
	var b strings.Builder
	if v.Ref == "" {
		fmt.Fprintf(&b, "%d batch(es)\n", len(v.Batches))
		for _, r := range v.Batches {
			fmt.Fprintf(&b, "  #%d %s events=%d mutations=%d checkpoint=%s digest=%s\n",
				r.Seq, r.BatchID, r.EventCount, r.Mutations, r.Checkpoint, r.Digest)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %d version(s)\n", v.Ref, len(v.Versions))
	for _, h := range v.Versions {
		data, err := ir.MarshalCanonical(h.Data)
		if err != nil {
			data = []byte(err.Error())
		}
		fmt.Fprintf(&b, "  #%d %s %s @%s %s\n", h.Seq, h.BatchID, h.Kind, h.Provenance, data)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [entity-type id]",
		Short: "Show the batch log or an entity's versions",
		Long: `Without arguments, list every committed batch with its checkpoint and
mutation digest. With an entity type and id, list that entity's versions;
versions are only recorded when the config sets save_full_history.

Examples:
  gravindex history --db ./index.db
  gravindex history Gravatar 18 --db ./index.db`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := opts.open(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err.Error())
	}
	defer closeStore(st)

	if len(args) == 0 {
		batches, err := st.Batches(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read batch log", err.Error())
		}
		return f.Success(HistoryView{Batches: batches})
	}

	ref := ir.EntityRef{Type: args[0], ID: args[1]}
	versions, err := st.History(ctx, ref)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read history", err.Error())
	}
	return f.Success(HistoryView{Ref: ref.String(), Versions: versions})
}
