package testutil

// FixedBatchIDs returns the same batch id every time.
//
// Production ids are unique per batch; a fixed id lets tests drive two
// batches under one id, as a retry after an ambiguous commit would.
//
// Thread-safety: FixedBatchIDs is stateless and safe for concurrent use.
type FixedBatchIDs struct {
	id string
}

// NewFixedBatchIDs creates a generator for id. An empty id becomes
// "batch-fixed".
func NewFixedBatchIDs(id string) *FixedBatchIDs {
	if id == "" {
		id = "batch-fixed"
	}
	return &FixedBatchIDs{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.BatchIDGenerator.
func (g *FixedBatchIDs) Generate() string {
	return g.id
}
