package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/gravindex/internal/ir"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// gravatarMutation builds a minimal mutation for store tests.
func gravatarMutation(kind ir.MutationKind, id string, count int64, block uint64) ir.Mutation {
	return ir.Mutation{
		Kind: kind,
		Ref:  ir.EntityRef{Type: "Gravatar", ID: id},
		Data: ir.IRObject{
			"id":           ir.IRString(id),
			"updatesCount": ir.IRInt(count),
		},
		Provenance: ir.Provenance{ChainID: 1, Block: block, LogIndex: 0},
	}
}

// commitSet wraps mutations into a CommitSet with a chain-1 checkpoint at
// the highest block among them.
func commitSet(batchID string, ms ...ir.Mutation) ir.CommitSet {
	var cp ir.Provenance
	for _, m := range ms {
		if cp.Less(m.Provenance) {
			cp = m.Provenance
		}
	}
	digest, _ := ir.MutationsDigest(ms)
	return ir.CommitSet{
		BatchID:     batchID,
		Mutations:   ms,
		Checkpoints: []ir.Provenance{cp},
		EventCount:  len(ms),
		Digest:      digest,
	}
}
