package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// BatchIDGenerator generates unique batch ids. Implemented by
// UUIDv7Generator (production) and SequentialGenerator (tests, golden
// output).
type BatchIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 batch ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so the batch log
// sorts by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator returns "<prefix>-000001", "<prefix>-000002", ...
// from a logical clock.
//
// Thread-safety: safe for concurrent use; the clock is atomic.
type SequentialGenerator struct {
	prefix string
	clock  *Clock
}

// NewSequentialGenerator creates a generator starting at 1.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix, clock: NewClock()}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	return fmt.Sprintf("%s-%06d", g.prefix, g.clock.Next())
}
