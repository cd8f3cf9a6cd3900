package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/ir"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	StoreOptions
}

// EntityView is one committed entity.
type EntityView struct {
	Type       string         `json:"entity_type"`
	ID         string         `json:"id"`
	Data       ir.IRObject    `json:"data"`
	Provenance *ir.Provenance `json:"provenance,omitempty"`
}

func (v EntityView) String() string {
	data, err := ir.MarshalCanonical(v.Data)
	if err != nil {
		return fmt.Sprintf("%s/%s: %v\n", v.Type, v.ID, err)
	}
	if v.Provenance != nil {
		return fmt.Sprintf("%s/%s @%s %s\n", v.Type, v.ID, v.Provenance, data)
	}
	return fmt.Sprintf("%s/%s %s\n", v.Type, v.ID, data)
}

// EntityList is every committed entity of one type, in id order.
type EntityList struct {
	Type     string       `json:"entity_type"`
	Entities []EntityView `json:"entities"`
}

func (l EntityList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s entit(ies)\n", len(l.Entities), l.Type)
	for _, e := range l.Entities {
		b.WriteString(e.String())
	}
	return b.String()
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <entity-type> [id]",
		Short: "Show committed entities",
		Long: `Show one committed entity, or every entity of a type when no id is given.

Examples:
  gravindex get Gravatar 18 --db ./index.db
  gravindex get Gravatar --db ./index.db --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args, cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runGet(opts *GetOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := opts.open(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err.Error())
	}
	defer closeStore(st)

	if len(args) == 1 {
		rows, err := st.ListEntities(ctx, args[0])
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to list entities", err.Error())
		}
		list := EntityList{Type: args[0], Entities: make([]EntityView, 0, len(rows))}
		for _, m := range rows {
			p := m.Provenance
			list.Entities = append(list.Entities, EntityView{Type: m.Ref.Type, ID: m.Ref.ID, Data: m.Data, Provenance: &p})
		}
		return f.Success(list)
	}

	ref := ir.EntityRef{Type: args[0], ID: args[1]}
	obj, ok, err := st.Get(ctx, ref)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read entity", err.Error())
	}
	if !ok {
		return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("entity %s not found", ref), nil)
	}
	return f.Success(EntityView{Type: ref.Type, ID: ref.ID, Data: obj})
}
