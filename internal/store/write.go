package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/gravindex/internal/ir"
)

// Commit atomically applies one batch: every mutation is upserted into
// entities, optionally appended to entity_history, the batch is recorded
// in the batch log, and per-chain checkpoints advance. Either all of it
// becomes visible or none of it does.
//
// A CommitSet whose BatchID is already in the batch log is rolled back and
// fails with ir.ErrBatchCommitted, so a batch retried after an ambiguous
// commit failure cannot apply twice.
func (s *Store) Commit(ctx context.Context, set ir.CommitSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	upsert := s.dialect.rebind(`
		INSERT INTO entities (entity_type, id, data, chain_id, block, log_index, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			data = excluded.data,
			chain_id = excluded.chain_id,
			block = excluded.block,
			log_index = excluded.log_index,
			batch_id = excluded.batch_id
	`)
	history := s.dialect.rebind(`
		INSERT INTO entity_history (batch_id, entity_type, id, kind, data, chain_id, block, log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, m := range set.Mutations {
		data, err := marshalData(m.Data)
		if err != nil {
			return fmt.Errorf("commit: %s: %w", m.Ref, err)
		}
		chainID, block, logIndex, err := provenanceArgs(m.Provenance)
		if err != nil {
			return fmt.Errorf("commit: %s: %w", m.Ref, err)
		}

		if _, err := tx.ExecContext(ctx, upsert,
			m.Ref.Type, m.Ref.ID, data, chainID, block, logIndex, set.BatchID,
		); err != nil {
			return fmt.Errorf("commit: upsert %s: %w", m.Ref, err)
		}

		if set.History {
			if _, err := tx.ExecContext(ctx, history,
				set.BatchID, m.Ref.Type, m.Ref.ID, string(m.Kind), data, chainID, block, logIndex,
			); err != nil {
				return fmt.Errorf("commit: history %s: %w", m.Ref, err)
			}
		}
	}

	last := set.LastProvenance()
	chainID, block, logIndex, err := provenanceArgs(last)
	if err != nil {
		return fmt.Errorf("commit: batch log: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO batches (batch_id, chain_id, block, log_index, event_count, mutations, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id) DO NOTHING
	`), set.BatchID, chainID, block, logIndex, set.EventCount, len(set.Mutations), set.Digest)
	if err != nil {
		return fmt.Errorf("commit: batch log: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("commit: batch log: %w", err)
	} else if n == 0 {
		// The deferred rollback discards this commit's entity writes.
		return fmt.Errorf("commit: batch %s: %w", set.BatchID, ir.ErrBatchCommitted)
	}

	checkpoint := s.dialect.rebind(`
		INSERT INTO checkpoints (chain_id, block, log_index, batch_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET
			block = excluded.block,
			log_index = excluded.log_index,
			batch_id = excluded.batch_id
	`)
	cps := slices.Clone(set.Checkpoints)
	slices.SortFunc(cps, func(a, b ir.Provenance) int { return a.Compare(b) })
	for _, cp := range cps {
		chainID, block, logIndex, err := provenanceArgs(cp)
		if err != nil {
			return fmt.Errorf("commit: checkpoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, checkpoint, chainID, block, logIndex, set.BatchID); err != nil {
			return fmt.Errorf("commit: checkpoint chain %d: %w", cp.ChainID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
