package ir

import (
	"cmp"
	"fmt"
	"slices"
)

// Provenance locates an event in its source chain and gives events a total
// order. Ordering is (ChainID, Block, LogIndex); wall-clock time never
// participates.
type Provenance struct {
	ChainID  uint64 `json:"chain_id" yaml:"chain_id"`
	Block    uint64 `json:"block" yaml:"block"`
	LogIndex uint64 `json:"log_index" yaml:"log_index"`
}

// Compare returns -1, 0 or +1 comparing p with q in provenance order.
func (p Provenance) Compare(q Provenance) int {
	if c := cmp.Compare(p.ChainID, q.ChainID); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Block, q.Block); c != 0 {
		return c
	}
	return cmp.Compare(p.LogIndex, q.LogIndex)
}

// Less reports whether p precedes q.
func (p Provenance) Less(q Provenance) bool {
	return p.Compare(q) < 0
}

// IsZero reports whether p is the zero position (nothing processed yet).
func (p Provenance) IsZero() bool {
	return p == Provenance{}
}

func (p Provenance) String() string {
	return fmt.Sprintf("%d:%d:%d", p.ChainID, p.Block, p.LogIndex)
}

func (p Provenance) toIR() IRObject {
	return IRObject{
		"chain_id":  fromUint(p.ChainID),
		"block":     fromUint(p.Block),
		"log_index": fromUint(p.LogIndex),
	}
}

func fromUint(n uint64) IRValue {
	v, _ := FromGo(n)
	return v
}

// Event is one decoded chain event. Events are immutable once produced by
// the data source.
//
// Params holds the typed payload for the event kind. Sources that cannot
// produce the concrete type (files, tests) may supply json.RawMessage or a
// map[string]any; the registry decodes those into the registered type.
type Event struct {
	// Contract is the contract identity the event belongs to (config name).
	Contract string `json:"contract" yaml:"contract"`

	// Kind is the event name, e.g. "NewGravatar".
	Kind string `json:"kind" yaml:"kind"`

	// Address is the lowercase emitting contract address, if known.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// TxHash is the transaction hash, if known.
	TxHash string `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`

	Params any `json:"params" yaml:"params"`

	Provenance Provenance `json:"provenance" yaml:"provenance"`
}

// SortEvents stably sorts events into provenance order in place.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Provenance.Compare(b.Provenance)
	})
}
