package store

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/lib/pq"

	"github.com/roach88/gravindex/internal/ir"
)

// marshalData converts an entity record to canonical JSON TEXT for storage.
func marshalData(data ir.IRObject) (string, error) {
	if data == nil {
		data = ir.IRObject{}
	}
	b, err := ir.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}

// unmarshalData parses canonical JSON TEXT back into a record. Integers
// beyond int64 come back as ir.IRBigInt.
func unmarshalData(data string) (ir.IRObject, error) {
	if data == "" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}

// idSetArg binds a key list as the single collection parameter used by
// Dialect.idSetClause.
func (d Dialect) idSetArg(ids []string) (any, error) {
	if d == DialectPostgres {
		return pq.Array(ids), nil
	}
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal id set: %w", err)
	}
	return string(b), nil
}

// toDB converts a uint64 position component to the signed column type.
func toDB(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds storable range", n)
	}
	return int64(n), nil
}

func provenanceArgs(p ir.Provenance) (chainID, block, logIndex int64, err error) {
	if chainID, err = toDB(p.ChainID); err != nil {
		return 0, 0, 0, fmt.Errorf("chain id: %w", err)
	}
	if block, err = toDB(p.Block); err != nil {
		return 0, 0, 0, fmt.Errorf("block: %w", err)
	}
	if logIndex, err = toDB(p.LogIndex); err != nil {
		return 0, 0, 0, fmt.Errorf("log index: %w", err)
	}
	return chainID, block, logIndex, nil
}

func provenanceFrom(chainID, block, logIndex int64) ir.Provenance {
	return ir.Provenance{
		ChainID:  uint64(chainID),
		Block:    uint64(block),
		LogIndex: uint64(logIndex),
	}
}
