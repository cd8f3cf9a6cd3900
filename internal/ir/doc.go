// Package ir provides the value, event, and mutation types shared by the
// indexing engine, its durable stores, and the indexers built on top.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - entity attributes are strings, int64s,
//     arbitrary-precision integers, bools, arrays and objects
//   - Optional attributes are omitted keys, never a null placeholder
//   - Events are ordered by Provenance (chain, block, log index), never by
//     wall-clock time
//   - Canonical JSON is the only encoding used for hashing and storage
package ir
