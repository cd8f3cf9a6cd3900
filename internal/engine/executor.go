package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Executor runs the handler phase of a batch.
type Executor struct{}

// Execute invokes each planned event's handler, strictly in provenance
// order, with a HandlerContext bound to b. Mutations a handler stages are
// visible to every later handler in the batch.
//
// The first failing handler stops execution. A panic is recovered into a
// *HandlerPanic.
func (x *Executor) Execute(ctx context.Context, plan *Plan, b *Batch) error {
	for i := range plan.Events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if err := x.handle(ctx, &plan.Events[i], b); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) handle(ctx context.Context, pe *PlannedEvent, b *Batch) (err error) {
	ev := &pe.Event
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanic{
				Contract:   ev.Contract,
				Kind:       ev.Kind,
				Provenance: ev.Provenance,
				Phase:      "handle",
				Value:      r,
				Stack:      debug.Stack(),
			}
		}
	}()

	hc := &HandlerContext{ctx: ctx, event: ev, batch: b}
	if err := pe.binding.handle(hc, pe.params); err != nil {
		return fmt.Errorf("handle %s.%s at %s: %w", ev.Contract, ev.Kind, ev.Provenance, err)
	}

	slog.Debug("event handled",
		"contract", ev.Contract,
		"kind", ev.Kind,
		"provenance", ev.Provenance.String(),
		"staged", b.overlay.Len(),
	)
	return nil
}
