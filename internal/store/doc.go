// Package store provides SQL-backed durable entity storage for the
// indexing engine.
//
// The store keeps:
//   - Entities: current state, one row per (entity_type, id)
//   - Entity history: every committed version, when full history is enabled
//   - Batches: one row per committed batch with its mutation digest
//   - Checkpoints: last committed provenance per chain
//
// # Contract
//
// FetchMany is a single statement per entity type: the key set is bound as
// one collection parameter (json_each on SQLite, ANY on PostgreSQL).
//
// Commit is all-or-nothing: entity upserts, history rows, the batch log row
// and checkpoint advances share one transaction. Batch ids are UNIQUE, so a
// retried commit of an already-applied batch fails instead of re-applying.
//
// Records are stored as canonical JSON TEXT (see ir.MarshalCanonical).
// Integers beyond int64 are written as plain digits and decode to
// ir.IRBigInt.
//
// # Backends
//
//   - SQLite (github.com/mattn/go-sqlite3): WAL mode, NORMAL synchronous,
//     5s busy timeout, single connection, PRAGMA user_version migrations
//   - PostgreSQL (github.com/lib/pq): schema applied on open
package store
