// Package gravatar is the sample indexer: it tracks Gravatar profiles from
// NewGravatar and UpdatedGravatar events.
package gravatar

import (
	"fmt"
	"math/big"

	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/ir"
)

// EntityName is the entity type namespace for profiles.
const EntityName = "Gravatar"

// Gravatar is one profile.
type Gravatar struct {
	ID          string
	Owner       string
	DisplayName string
	ImageURL    string

	// UpdatesCount is 1 on creation and grows by one per update.
	UpdatesCount int64

	// CreatedBlock is the block of the first event that produced the
	// profile.
	CreatedBlock *big.Int

	// UpdatedBlock is the block of the last UpdatedGravatar, nil until the
	// first update.
	UpdatedBlock *big.Int
}

// Gravatars is the typed table handlers use.
var Gravatars = engine.Table[Gravatar]{
	Name:   EntityName,
	Key:    func(g Gravatar) string { return g.ID },
	Encode: encode,
	Decode: decode,
}

func encode(g Gravatar) (ir.IRObject, error) {
	if g.CreatedBlock == nil {
		return nil, fmt.Errorf("gravatar %s: missing created block", g.ID)
	}
	obj := ir.IRObject{
		"id":           ir.IRString(g.ID),
		"owner":        ir.IRString(g.Owner),
		"displayName":  ir.IRString(g.DisplayName),
		"imageUrl":     ir.IRString(g.ImageURL),
		"updatesCount": ir.IRInt(g.UpdatesCount),
		"createdBlock": ir.NewIRBigInt(g.CreatedBlock),
	}
	if g.UpdatedBlock != nil {
		obj["updatedBlock"] = ir.NewIRBigInt(g.UpdatedBlock)
	}
	return obj, nil
}

func decode(obj ir.IRObject) (Gravatar, error) {
	var g Gravatar
	var err error
	if g.ID, err = obj.String("id"); err != nil {
		return g, err
	}
	if g.Owner, err = obj.String("owner"); err != nil {
		return g, err
	}
	if g.DisplayName, err = obj.String("displayName"); err != nil {
		return g, err
	}
	if g.ImageURL, err = obj.String("imageUrl"); err != nil {
		return g, err
	}
	if g.UpdatesCount, err = obj.Int("updatesCount"); err != nil {
		return g, err
	}
	if g.CreatedBlock, err = obj.BigInt("createdBlock"); err != nil {
		return g, err
	}
	if g.UpdatedBlock, err = obj.OptBigInt("updatedBlock"); err != nil {
		return g, err
	}
	return g, nil
}
