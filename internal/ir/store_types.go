package ir

import (
	"cmp"
	"errors"
)

// ErrBatchCommitted is returned by a durable store asked to commit a batch
// id its batch log already holds.
var ErrBatchCommitted = errors.New("batch already committed")

// EntityRef names one entity: its type namespace and its key.
type EntityRef struct {
	Type string `json:"entity_type"`
	ID   string `json:"id"`
}

// Compare orders refs by (Type, ID).
func (r EntityRef) Compare(o EntityRef) int {
	if c := cmp.Compare(r.Type, o.Type); c != 0 {
		return c
	}
	return cmp.Compare(r.ID, o.ID)
}

func (r EntityRef) String() string {
	return r.Type + "/" + r.ID
}

// MutationKind distinguishes inserts from updates.
type MutationKind string

const (
	MutationInsert MutationKind = "insert"
	MutationUpdate MutationKind = "update"
)

// Mutation is one staged write. Data is the full new record state, not a
// patch.
type Mutation struct {
	Kind       MutationKind `json:"kind"`
	Ref        EntityRef    `json:"ref"`
	Data       IRObject     `json:"data"`
	Provenance Provenance   `json:"provenance"`
}

func (m Mutation) toIR() IRObject {
	return IRObject{
		"kind":        IRString(m.Kind),
		"entity_type": IRString(m.Ref.Type),
		"id":          IRString(m.Ref.ID),
		"data":        m.Data,
		"provenance":  m.Provenance.toIR(),
	}
}

// CommitSet is everything one batch writes to durable storage in a single
// transaction.
type CommitSet struct {
	// BatchID identifies the batch (UUIDv7 in production).
	BatchID string

	// Mutations in commit order (sorted by ref, last write per ref).
	Mutations []Mutation

	// Checkpoints holds, per chain, the provenance of the last event of
	// that chain in the batch.
	Checkpoints []Provenance

	// EventCount is the number of events the batch processed.
	EventCount int

	// Digest is MutationsDigest(Mutations).
	Digest string

	// History appends every mutation to the entity history table.
	History bool
}

// LastProvenance returns the greatest checkpoint, or the zero Provenance
// when the set has none.
func (c CommitSet) LastProvenance() Provenance {
	var last Provenance
	for _, p := range c.Checkpoints {
		if last.Less(p) {
			last = p
		}
	}
	return last
}

// BatchRecord is a committed batch as recorded in the batch log.
type BatchRecord struct {
	Seq        int64      `json:"seq"`
	BatchID    string     `json:"batch_id"`
	Checkpoint Provenance `json:"checkpoint"`
	EventCount int        `json:"event_count"`
	Mutations  int        `json:"mutations"`
	Digest     string     `json:"digest"`
}

// HistoryEntry is one historical version of an entity.
type HistoryEntry struct {
	Seq        int64        `json:"seq"`
	BatchID    string       `json:"batch_id"`
	Kind       MutationKind `json:"kind"`
	Ref        EntityRef    `json:"ref"`
	Data       IRObject     `json:"data"`
	Provenance Provenance   `json:"provenance"`
}
