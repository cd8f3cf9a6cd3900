package engine

import (
	"slices"

	"github.com/roach88/gravindex/internal/ir"
)

// Overlay holds the mutations staged by one batch.
//
// It is an index-based arena: refs map to slots in a mutation slice. A
// later write to the same ref replaces the slot's state (last write wins in
// event order) but keeps the slot's original kind, so an insert followed by
// updates in one batch still commits as an insert.
//
// An Overlay is not safe for concurrent use; the executor is its only
// writer.
type Overlay struct {
	index map[ir.EntityRef]int
	slots []ir.Mutation
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{index: make(map[ir.EntityRef]int)}
}

// Lookup returns the staged state for ref.
func (o *Overlay) Lookup(ref ir.EntityRef) (ir.IRObject, bool) {
	i, ok := o.index[ref]
	if !ok {
		return nil, false
	}
	return o.slots[i].Data, true
}

// Staged reports whether ref has a staged mutation.
func (o *Overlay) Staged(ref ir.EntityRef) bool {
	_, ok := o.index[ref]
	return ok
}

// Put stages m. The overlay takes ownership of m.Data.
func (o *Overlay) Put(m ir.Mutation) {
	if i, ok := o.index[m.Ref]; ok {
		slot := &o.slots[i]
		slot.Data = m.Data
		slot.Provenance = m.Provenance
		return
	}
	o.index[m.Ref] = len(o.slots)
	o.slots = append(o.slots, m)
}

// Len returns the number of distinct staged refs.
func (o *Overlay) Len() int {
	return len(o.slots)
}

// Mutations returns the staged mutations ordered by ref. This is the commit
// order; it does not depend on the order handlers ran in.
func (o *Overlay) Mutations() []ir.Mutation {
	out := slices.Clone(o.slots)
	slices.SortFunc(out, func(a, b ir.Mutation) int {
		return a.Ref.Compare(b.Ref)
	})
	return out
}

// Reset discards everything staged.
func (o *Overlay) Reset() {
	clear(o.index)
	o.slots = o.slots[:0]
}
