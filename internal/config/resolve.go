package config

import (
	"log/slog"

	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/ir"
)

// Selection is the set of (contract, event kind) pairs a config indexes.
// It implements engine.Filter.
type Selection struct {
	keys map[engine.EventKey]bool
}

var _ engine.Filter = (*Selection)(nil)

// Selection derives the configured event keys from every contract's
// event signatures.
func (c *Config) Selection() *Selection {
	s := &Selection{keys: make(map[engine.EventKey]bool)}
	for _, def := range c.ContractDefs() {
		for _, sig := range def.Events {
			s.keys[engine.EventKey{Contract: def.Name, Kind: sig.Name}] = true
		}
	}
	return s
}

// Allows reports whether contract.kind is configured.
func (s *Selection) Allows(contract, kind string) bool {
	return s.keys[engine.EventKey{Contract: contract, Kind: kind}]
}

// Len returns the number of selected event keys.
func (s *Selection) Len() int {
	return len(s.keys)
}

type chainAddress struct {
	chain   uint64
	address string
}

type chainRange struct {
	start uint64
	end   *uint64

	// contracts maps contract names on this chain to whether they are
	// bound to explicit addresses.
	contracts map[string]bool
}

// Resolver maps emitted events onto configured contracts and block ranges.
type Resolver struct {
	byAddress map[chainAddress]string
	chains    map[uint64]chainRange
}

// Resolver builds the lookup tables for c's networks.
func (c *Config) Resolver() *Resolver {
	r := &Resolver{
		byAddress: make(map[chainAddress]string),
		chains:    make(map[uint64]chainRange, len(c.Networks)),
	}
	for _, n := range c.Networks {
		cr := chainRange{start: n.StartBlock, end: n.EndBlock, contracts: make(map[string]bool)}
		for _, nc := range n.Contracts {
			cr.contracts[nc.Name] = cr.contracts[nc.Name] || len(nc.Address) > 0
			for _, a := range nc.Address {
				r.byAddress[chainAddress{chain: n.ID, address: NormalizeAddress(a)}] = nc.Name
			}
		}
		r.chains[n.ID] = cr
	}
	return r
}

// Resolve returns the contract configured at address on chainID.
func (r *Resolver) Resolve(chainID uint64, address string) (string, bool) {
	name, ok := r.byAddress[chainAddress{chain: chainID, address: NormalizeAddress(address)}]
	return name, ok
}

// InRange reports whether block falls in chainID's configured
// [start_block, end_block] window.
func (r *Resolver) InRange(chainID, block uint64) bool {
	cr, ok := r.chains[chainID]
	if !ok {
		return false
	}
	if block < cr.start {
		return false
	}
	return cr.end == nil || block <= *cr.end
}

// Accept reports whether ev belongs to the config. An event with an
// address but no contract name gets the resolved name filled in; an
// event whose name disagrees with its address is rejected. Contracts
// configured without addresses accept any address.
func (r *Resolver) Accept(ev *ir.Event) bool {
	chain := ev.Provenance.ChainID
	if !r.InRange(chain, ev.Provenance.Block) {
		return false
	}
	cr := r.chains[chain]

	if ev.Address != "" {
		if name, ok := r.Resolve(chain, ev.Address); ok {
			if ev.Contract == "" {
				ev.Contract = name
			}
			return ev.Contract == name
		}
		bound, ok := cr.contracts[ev.Contract]
		return ok && !bound
	}
	_, ok := cr.contracts[ev.Contract]
	return ok
}

// FilterEvents keeps the events Accept allows, in order, and returns how
// many were dropped.
func (r *Resolver) FilterEvents(events []ir.Event) ([]ir.Event, int) {
	kept := make([]ir.Event, 0, len(events))
	for _, ev := range events {
		if r.Accept(&ev) {
			kept = append(kept, ev)
			continue
		}
		slog.Debug("event outside config",
			"contract", ev.Contract,
			"kind", ev.Kind,
			"address", ev.Address,
			"provenance", ev.Provenance.String())
	}
	return kept, len(events) - len(kept)
}
