// Package engine implements the two-phase event indexing core.
//
// Every event kind registers two functions: a load function that declares
// which entities the event will read, and a handler that reads them and
// stages inserts and updates. Splitting the two lets the engine batch all
// storage reads of a batch into one fetch per entity type before any
// handler runs.
//
// ARCHITECTURE:
//
// Batch Cycle (Coordinator):
//  1. Planning: every event's load function runs with a recording
//     LoadContext (concurrently; load functions touch no shared state).
//     Requests are deduplicated per (entity type, id).
//  2. Fetching: one FetchMany per entity type fills the preload cache,
//     including known absences.
//  3. Executing: handlers run strictly in provenance order. Each stages
//     mutations into the batch overlay, where later handlers see them.
//  4. Committing: the overlay, checkpoints and batch log row are written in
//     one transaction. Nothing partial is ever visible.
//
// Any failure discards the overlay, returns the coordinator to Idle, and
// surfaces a *BatchError.
//
// Pipelining (Engine):
// The collector goroutine runs batch N+1's load phase while the applier
// goroutine processes batch N. Commits are serialized in provenance order;
// only one commit is in flight at a time.
//
// CRITICAL PATTERNS:
//
// Determinism:
// Handlers are pure functions of (event, preloaded entities). Lookups
// outside the declared load set fail with ErrNotLoaded instead of reading
// storage. Commit order is by entity ref, never by goroutine timing, so a
// replayed batch yields the same mutation digest.
//
// Provenance Order:
// Events are ordered by (chain id, block, log index). Wall-clock time
// never orders anything.
package engine
