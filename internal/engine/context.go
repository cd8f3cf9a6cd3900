package engine

import (
	"context"
	"fmt"

	"github.com/roach88/gravindex/internal/ir"
)

// LoadContext is the phase-1 handle for one event. Load calls only record
// intent; no value is returned.
//
// A LoadContext belongs to one event and one goroutine.
type LoadContext struct {
	ctx      context.Context
	event    *ir.Event
	requests []ir.EntityRef
}

// Context returns the batch context for cancellation.
func (lc *LoadContext) Context() context.Context {
	return lc.ctx
}

// Event returns the event being loaded for.
func (lc *LoadContext) Event() ir.Event {
	return *lc.event
}

// Load declares that the handler phase will read (entityType, id).
func (lc *LoadContext) Load(entityType, id string) {
	lc.requests = append(lc.requests, ir.EntityRef{Type: entityType, ID: id})
}

// HandlerContext is the phase-2 handle for one event, bound to the batch's
// preload cache and overlay.
type HandlerContext struct {
	ctx   context.Context
	event *ir.Event
	batch *Batch
}

// Context returns the batch context for cancellation.
func (hc *HandlerContext) Context() context.Context {
	return hc.ctx
}

// Event returns the event being handled.
func (hc *HandlerContext) Event() ir.Event {
	return *hc.event
}

// Get returns the latest visible state of (entityType, id).
func (hc *HandlerContext) Get(entityType, id string) (ir.Option[ir.IRObject], error) {
	return hc.batch.Get(ir.EntityRef{Type: entityType, ID: id})
}

// Insert stages a new record stamped with the event's provenance.
func (hc *HandlerContext) Insert(entityType, id string, data ir.IRObject) error {
	return hc.stage(ir.MutationInsert, entityType, id, data)
}

// Update stages the full new state of a record. Updating a record that
// does not exist yet creates it.
func (hc *HandlerContext) Update(entityType, id string, data ir.IRObject) error {
	return hc.stage(ir.MutationUpdate, entityType, id, data)
}

func (hc *HandlerContext) stage(kind ir.MutationKind, entityType, id string, data ir.IRObject) error {
	if id == "" {
		return fmt.Errorf("%s %s: empty key", kind, entityType)
	}
	return hc.batch.Stage(ir.Mutation{
		Kind:       kind,
		Ref:        ir.EntityRef{Type: entityType, ID: id},
		Data:       data.Clone(),
		Provenance: hc.event.Provenance,
	})
}

// Table describes a typed entity: its type name, key, and conversion to and
// from stored records. Handlers use a Table instead of raw records.
//
//	var Gravatars = engine.Table[Gravatar]{
//	    Name:   "Gravatar",
//	    Key:    func(g Gravatar) string { return g.ID },
//	    Encode: encodeGravatar,
//	    Decode: decodeGravatar,
//	}
type Table[T any] struct {
	Name   string
	Key    func(T) string
	Encode func(T) (ir.IRObject, error)
	Decode func(ir.IRObject) (T, error)
}

// Load declares a phase-2 read of id.
func (t Table[T]) Load(lc *LoadContext, id string) {
	lc.Load(t.Name, id)
}

// Get returns the entity with id, or None when it does not exist.
func (t Table[T]) Get(hc *HandlerContext, id string) (ir.Option[T], error) {
	rec, err := hc.Get(t.Name, id)
	if err != nil {
		return ir.None[T](), err
	}
	data, ok := rec.Get()
	if !ok {
		return ir.None[T](), nil
	}
	v, err := t.Decode(data)
	if err != nil {
		return ir.None[T](), fmt.Errorf("decode %s/%s: %w", t.Name, id, err)
	}
	return ir.Some(v), nil
}

// Insert stages v as a new entity.
func (t Table[T]) Insert(hc *HandlerContext, v T) error {
	data, err := t.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.Name, err)
	}
	return hc.Insert(t.Name, t.Key(v), data)
}

// Update stages v as the entity's full new state.
func (t Table[T]) Update(hc *HandlerContext, v T) error {
	data, err := t.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.Name, err)
	}
	return hc.Update(t.Name, t.Key(v), data)
}
