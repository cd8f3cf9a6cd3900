package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gravindex/internal/ir"
)

// FetchMany returns the committed records of one entity type for the given
// ids, keyed by id. Ids with no record are absent from the map.
//
// This is the Load Planner's bulk read: the whole key set is bound as one
// collection parameter, so the read is a single statement and a single
// round trip regardless of how many ids are requested.
func (s *Store) FetchMany(ctx context.Context, entityType string, ids []string) (map[string]ir.IRObject, error) {
	out := make(map[string]ir.IRObject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	idSet, err := s.dialect.idSetArg(ids)
	if err != nil {
		return nil, fmt.Errorf("fetch many: %w", err)
	}

	query := s.dialect.rebind(`
		SELECT id, data
		FROM entities
		WHERE entity_type = ? AND ` + s.dialect.idSetClause() + `
		ORDER BY id ASC`)

	rows, err := s.db.QueryContext(ctx, query, entityType, idSet)
	if err != nil {
		return nil, fmt.Errorf("fetch many: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("fetch many: scan: %w", err)
		}
		obj, err := unmarshalData(data)
		if err != nil {
			return nil, fmt.Errorf("fetch many: %s/%s: %w", entityType, id, err)
		}
		out[id] = obj
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch many: iterate: %w", err)
	}

	return out, nil
}

// Get reads one committed record. The boolean is false when no record
// exists.
func (s *Store) Get(ctx context.Context, ref ir.EntityRef) (ir.IRObject, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT data FROM entities WHERE entity_type = ? AND id = ?
	`), ref.Type, ref.ID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", ref, err)
	}

	obj, err := unmarshalData(data)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", ref, err)
	}
	return obj, true, nil
}

// ListEntities returns every committed record of a type ordered by id.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]ir.Mutation, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, data, chain_id, block, log_index
		FROM entities
		WHERE entity_type = ?
		ORDER BY id ASC
	`), entityType)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	out := []ir.Mutation{}
	for rows.Next() {
		var (
			id, data                 string
			chainID, block, logIndex int64
		)
		if err := rows.Scan(&id, &data, &chainID, &block, &logIndex); err != nil {
			return nil, fmt.Errorf("list entities: scan: %w", err)
		}
		obj, err := unmarshalData(data)
		if err != nil {
			return nil, fmt.Errorf("list entities: %s/%s: %w", entityType, id, err)
		}
		out = append(out, ir.Mutation{
			Kind:       ir.MutationUpdate,
			Ref:        ir.EntityRef{Type: entityType, ID: id},
			Data:       obj,
			Provenance: provenanceFrom(chainID, block, logIndex),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: iterate: %w", err)
	}
	return out, nil
}

// EntityTypes returns the distinct committed entity types, sorted.
func (s *Store) EntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_type FROM entities ORDER BY entity_type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("list entity types: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entity types: iterate: %w", err)
	}
	return out, nil
}

// Checkpoints returns the last committed provenance per chain.
func (s *Store) Checkpoints(ctx context.Context) (map[uint64]ir.Provenance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, block, log_index FROM checkpoints ORDER BY chain_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]ir.Provenance)
	for rows.Next() {
		var chainID, block, logIndex int64
		if err := rows.Scan(&chainID, &block, &logIndex); err != nil {
			return nil, fmt.Errorf("read checkpoints: scan: %w", err)
		}
		out[uint64(chainID)] = provenanceFrom(chainID, block, logIndex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints: iterate: %w", err)
	}
	return out, nil
}

// Batches returns the batch log in commit order.
func (s *Store) Batches(ctx context.Context) ([]ir.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, batch_id, chain_id, block, log_index, event_count, mutations, digest
		FROM batches
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}
	defer rows.Close()

	out := []ir.BatchRecord{}
	for rows.Next() {
		var (
			rec                      ir.BatchRecord
			chainID, block, logIndex int64
		)
		if err := rows.Scan(&rec.Seq, &rec.BatchID, &chainID, &block, &logIndex,
			&rec.EventCount, &rec.Mutations, &rec.Digest); err != nil {
			return nil, fmt.Errorf("read batches: scan: %w", err)
		}
		rec.Checkpoint = provenanceFrom(chainID, block, logIndex)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read batches: iterate: %w", err)
	}
	return out, nil
}

// HasBatch reports whether the batch log holds batchID.
func (s *Store) HasBatch(ctx context.Context, batchID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT COUNT(*) FROM batches WHERE batch_id = ?
	`), batchID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read batch %s: %w", batchID, err)
	}
	return n > 0, nil
}

// History returns every recorded version of an entity, oldest first.
// Empty unless commits were made with full history enabled.
func (s *Store) History(ctx context.Context, ref ir.EntityRef) ([]ir.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT seq, batch_id, kind, data, chain_id, block, log_index
		FROM entity_history
		WHERE entity_type = ? AND id = ?
		ORDER BY seq ASC
	`), ref.Type, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	out := []ir.HistoryEntry{}
	for rows.Next() {
		var (
			entry                    ir.HistoryEntry
			kind, data               string
			chainID, block, logIndex int64
		)
		if err := rows.Scan(&entry.Seq, &entry.BatchID, &kind, &data, &chainID, &block, &logIndex); err != nil {
			return nil, fmt.Errorf("read history: scan: %w", err)
		}
		obj, err := unmarshalData(data)
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		entry.Kind = ir.MutationKind(kind)
		entry.Ref = ref
		entry.Data = obj
		entry.Provenance = provenanceFrom(chainID, block, logIndex)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: iterate: %w", err)
	}
	return out, nil
}
