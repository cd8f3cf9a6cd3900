// Package indexers maps config handler names to compiled-in handler sets
// and builds registries from configs.
package indexers

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/gravindex/internal/config"
	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/gravatar"
)

// Indexer registers a handler set under a contract name.
type Indexer func(r *engine.Registry, contract string)

var builtin = map[string]Indexer{
	"gravatar": gravatar.RegisterAs,
}

// Lookup returns the built-in indexer called name.
func Lookup(name string) (Indexer, bool) {
	ix, ok := builtin[name]
	return ix, ok
}

// Names lists the built-in indexers.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MissingHandlerError reports configured events no registered handler
// covers.
type MissingHandlerError struct {
	Keys []engine.EventKey
}

func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for %d configured event(s), first %s", len(e.Keys), e.Keys[0])
}

// Build registers every configured contract's indexer and restricts
// dispatch to the configured events. Each configured event must have a
// handler.
func Build(cfg *config.Config) (*engine.Registry, error) {
	r := engine.NewRegistry()
	for _, def := range cfg.ContractDefs() {
		ix, ok := Lookup(def.Handler)
		if !ok {
			return nil, fmt.Errorf("contract %s: unknown handler %q (known: %v)", def.Name, def.Handler, Names())
		}
		ix(r, def.Name)
	}

	var missing []engine.EventKey
	for _, def := range cfg.ContractDefs() {
		for _, sig := range def.Events {
			if !r.Has(def.Name, sig.Name) {
				missing = append(missing, engine.EventKey{Contract: def.Name, Kind: sig.Name})
			}
		}
	}
	if len(missing) > 0 {
		return nil, &MissingHandlerError{Keys: missing}
	}

	sel := cfg.Selection()
	r.SetFilter(sel)
	slog.Debug("registry built", "config", cfg.Name, "events", sel.Len())
	return r, nil
}
