package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/gravindex/internal/ir"
)

// Durable is the storage contract the engine requires: keyed bulk reads
// and batch-atomic commit. Implemented by store.Store.
type Durable interface {
	// FetchMany returns the committed records of entityType among ids.
	// Absent ids are missing from the result. One round trip regardless
	// of len(ids).
	FetchMany(ctx context.Context, entityType string, ids []string) (map[string]ir.IRObject, error)

	// Commit writes the set all-or-nothing.
	Commit(ctx context.Context, set ir.CommitSet) error

	// Checkpoints returns the last committed provenance per chain.
	Checkpoints(ctx context.Context) (map[uint64]ir.Provenance, error)
}

// BatchLog is implemented by durable backends that can tell whether a batch
// id was committed. EntityStore uses it to settle commits whose outcome is
// unknown, such as a timeout after the transaction was applied.
type BatchLog interface {
	HasBatch(ctx context.Context, batchID string) (bool, error)
}

// verifyTimeout bounds the batch log lookup after a failed commit.
const verifyTimeout = 5 * time.Second

// EntityStore fronts durable storage for the engine. It converts storage
// failures into *StoreError and serializes commits: only one commit is in
// flight at a time.
//
// Thread-safety: EntityStore is safe for concurrent use.
type EntityStore struct {
	durable  Durable
	commitMu sync.Mutex
}

// NewEntityStore wraps a durable backend.
func NewEntityStore(d Durable) *EntityStore {
	return &EntityStore{durable: d}
}

// FetchMany performs one bulk read. Used only by the load planner's fetch.
func (s *EntityStore) FetchMany(ctx context.Context, entityType string, ids []string) (map[string]ir.IRObject, error) {
	got, err := s.durable.FetchMany(ctx, entityType, ids)
	if err != nil {
		return nil, storeError("fetch", entityType, StoreUnavailable, err)
	}
	return got, nil
}

// Fetch issues one FetchMany per entity type in reqs and records every
// requested ref in b's preload cache, present or absent. Types are fetched
// in name order.
func (s *EntityStore) Fetch(ctx context.Context, b *Batch, reqs map[string][]string) error {
	types := make([]string, 0, len(reqs))
	for t := range reqs {
		types = append(types, t)
	}
	slices.Sort(types)

	for _, t := range types {
		ids := reqs[t]
		got, err := s.FetchMany(ctx, t, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			b.preload[ir.EntityRef{Type: t, ID: id}] = got[id]
		}
	}
	return nil
}

// Commit writes set durably. The call holds the commit lock for its whole
// duration.
func (s *EntityStore) Commit(ctx context.Context, set ir.CommitSet) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	err := s.durable.Commit(ctx, set)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBatchCommitted) {
		return &StoreError{Op: "commit", Code: StoreRejected, Err: err}
	}
	if s.committed(ctx, set.BatchID) {
		slog.Warn("commit reported failure but batch is durable",
			"batch_id", set.BatchID,
			"error", err,
		)
		return nil
	}
	return storeError("commit", "", StoreUnavailable, err)
}

// committed reports whether the batch log holds batchID. Backends without
// a batch log, and lookups that fail, report false.
func (s *EntityStore) committed(ctx context.Context, batchID string) bool {
	bl, ok := s.durable.(BatchLog)
	if !ok || batchID == "" {
		return false
	}
	// The commit's own deadline may already have passed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
	defer cancel()

	found, err := bl.HasBatch(ctx, batchID)
	if err != nil {
		slog.Debug("batch log lookup failed", "batch_id", batchID, "error", err)
		return false
	}
	return found
}

// Checkpoints returns the durable per-chain resume positions.
func (s *EntityStore) Checkpoints(ctx context.Context) (map[uint64]ir.Provenance, error) {
	cps, err := s.durable.Checkpoints(ctx)
	if err != nil {
		return nil, storeError("checkpoints", "", StoreUnavailable, err)
	}
	return cps, nil
}

func storeError(op, entityType string, code StoreErrorCode, err error) *StoreError {
	if errors.Is(err, context.DeadlineExceeded) {
		code = StoreTimeout
	}
	return &StoreError{Op: op, Code: code, EntityType: entityType, Err: err}
}

// Batch is the in-memory state of one batch: the preload cache filled by
// the fetch and the overlay of mutations staged by handlers. It never
// outlives one coordinator cycle.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	// preload maps every fetched ref to its committed record, or nil when
	// storage has none (a known absence).
	preload map[ir.EntityRef]ir.IRObject
	overlay *Overlay
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		preload: make(map[ir.EntityRef]ir.IRObject),
		overlay: NewOverlay(),
	}
}

// Get returns the most recent state of ref visible to the handler phase:
// the overlay first, then the preload cache. Refs in neither fail with
// ErrNotLoaded. The returned record is a copy.
func (b *Batch) Get(ref ir.EntityRef) (ir.Option[ir.IRObject], error) {
	if data, ok := b.overlay.Lookup(ref); ok {
		return ir.Some(data.Clone()), nil
	}
	data, ok := b.preload[ref]
	if !ok {
		return ir.None[ir.IRObject](), fmt.Errorf("get %s: %w", ref, ErrNotLoaded)
	}
	if data == nil {
		return ir.None[ir.IRObject](), nil
	}
	return ir.Some(data.Clone()), nil
}

// Stage records m in the overlay. It never touches durable storage.
func (b *Batch) Stage(m ir.Mutation) error {
	if m.Kind == ir.MutationInsert && b.overlay.Staged(m.Ref) {
		return fmt.Errorf("insert %s: %w", m.Ref, ErrDuplicateKey)
	}
	b.overlay.Put(m)
	return nil
}

// Overlay exposes the staged mutations.
func (b *Batch) Overlay() *Overlay {
	return b.overlay
}

// Discard drops all staged and preloaded state.
func (b *Batch) Discard() {
	clear(b.preload)
	b.overlay.Reset()
}
