package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/config"
	"github.com/roach88/gravindex/internal/indexers"
)

// ValidationIssue is one problem found in a config.
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult summarizes a valid config.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Name      string         `json:"name"`
	Contracts []ContractInfo `json:"contracts"`
	Networks  []NetworkInfo  `json:"networks"`
}

// ContractInfo lists a contract's handler and event signatures.
type ContractInfo struct {
	Name    string   `json:"name"`
	Handler string   `json:"handler"`
	Events  []string `json:"events"`
}

// NetworkInfo lists a chain's block window and contracts.
type NetworkInfo struct {
	ID         uint64   `json:"id"`
	StartBlock uint64   `json:"start_block"`
	EndBlock   *uint64  `json:"end_block,omitempty"`
	Contracts  []string `json:"contracts"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Config %q is valid\n", r.Name)
	for _, c := range r.Contracts {
		fmt.Fprintf(&b, "  contract %s (handler %s)\n", c.Name, c.Handler)
		for _, e := range c.Events {
			fmt.Fprintf(&b, "    event %s\n", e)
		}
	}
	for _, n := range r.Networks {
		end := "head"
		if n.EndBlock != nil {
			end = fmt.Sprint(*n.EndBlock)
		}
		fmt.Fprintf(&b, "  network %d blocks %d..%s: %s\n", n.ID, n.StartBlock, end, strings.Join(n.Contracts, ", "))
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate an indexer config",
		Long: `Validate an indexer config without touching a store.

Checks the config against its schema, resolves contract references and
event signatures, and verifies that every configured event has a
registered handler.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		issues := validationIssues(err)
		if opts.Format != "json" {
			fmt.Fprintf(f.Writer, "✗ Validation failed with %d error(s):\n", len(issues))
			for _, is := range issues {
				if is.Path != "" {
					fmt.Fprintf(f.Writer, "  %s: %s\n", is.Path, is.Message)
				} else {
					fmt.Fprintf(f.Writer, "  %s\n", is.Message)
				}
			}
			return NewExitError(ExitFailure, "validation failed")
		}
		return f.Fail(ExitFailure, ErrCodeConfig, "validation failed", issues)
	}
	f.VerboseLog("Loaded config %s", path)

	if _, err := indexers.Build(cfg); err != nil {
		return f.Fail(ExitFailure, ErrCodeConfig, "validation failed", []ValidationIssue{{Message: err.Error()}})
	}

	result := ValidationResult{Valid: true, Name: cfg.Name}
	for _, def := range cfg.ContractDefs() {
		info := ContractInfo{Name: def.Name, Handler: def.Handler}
		for _, sig := range def.Events {
			info.Events = append(info.Events, sig.String())
		}
		result.Contracts = append(result.Contracts, info)
	}
	for _, n := range cfg.Networks {
		info := NetworkInfo{ID: n.ID, StartBlock: n.StartBlock, EndBlock: n.EndBlock}
		for _, c := range n.Contracts {
			info.Contracts = append(info.Contracts, c.Name)
		}
		result.Networks = append(result.Networks, info)
	}
	return f.Success(result)
}

// validationIssues flattens config errors into path/message pairs.
func validationIssues(err error) []ValidationIssue {
	var many config.ValidationErrors
	if errors.As(err, &many) {
		issues := make([]ValidationIssue, len(many))
		for i, e := range many {
			issues[i] = ValidationIssue{Path: e.Path, Message: e.Message}
		}
		return issues
	}
	var one *config.ValidationError
	if errors.As(err, &one) {
		return []ValidationIssue{{Path: one.Path, Message: one.Message}}
	}
	return []ValidationIssue{{Message: err.Error()}}
}
