package gravatar

import (
	"math/big"
	"strings"

	"github.com/roach88/gravindex/internal/engine"
	"github.com/roach88/gravindex/internal/ir"
)

// Register installs the Gravatar handlers under the default contract name.
func Register(r *engine.Registry) {
	RegisterAs(r, ContractName)
}

// RegisterAs installs the Gravatar handlers under contract, for configs
// that name the contract differently.
func RegisterAs(r *engine.Registry, contract string) {
	engine.Register(r, contract, KindNewGravatar, nil, handleNewGravatar)
	engine.Register(r, contract, KindUpdatedGravatar, loadUpdatedGravatar, handleUpdatedGravatar)
}

// normalizeOwner lowercases an address so the same owner always compares
// equal regardless of checksum casing.
func normalizeOwner(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func blockOf(ev ir.Event) *big.Int {
	return new(big.Int).SetUint64(ev.Provenance.Block)
}

// NewGravatar declares nothing to load: it only inserts.
func handleNewGravatar(hc *engine.HandlerContext, p NewGravatarParams) error {
	return Gravatars.Insert(hc, Gravatar{
		ID:           p.ID.String(),
		Owner:        normalizeOwner(p.Owner),
		DisplayName:  p.DisplayName,
		ImageURL:     p.ImageURL,
		UpdatesCount: 1,
		CreatedBlock: blockOf(hc.Event()),
	})
}

func loadUpdatedGravatar(lc *engine.LoadContext, p UpdatedGravatarParams) error {
	Gravatars.Load(lc, p.ID.String())
	return nil
}

// handleUpdatedGravatar replaces the profile's fields and bumps its count:
// previous count + 1, or 1 for a profile never seen before.
func handleUpdatedGravatar(hc *engine.HandlerContext, p UpdatedGravatarParams) error {
	id := p.ID.String()
	prev, err := Gravatars.Get(hc, id)
	if err != nil {
		return err
	}

	block := blockOf(hc.Event())
	updatesCount := ir.MapOption(prev, int64(1), func(g Gravatar) int64 { return g.UpdatesCount + 1 })
	created := ir.MapOption(prev, block, func(g Gravatar) *big.Int { return g.CreatedBlock })

	return Gravatars.Update(hc, Gravatar{
		ID:           id,
		Owner:        normalizeOwner(p.Owner),
		DisplayName:  p.DisplayName,
		ImageURL:     p.ImageURL,
		UpdatesCount: updatesCount,
		CreatedBlock: created,
		UpdatedBlock: block,
	})
}
