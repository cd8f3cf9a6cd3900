package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gravindex/internal/ir"
)

func loadGravatar(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(filepath.Join("testdata", "gravatar.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestSelection(t *testing.T) {
	s := loadGravatar(t).Selection()

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Allows("Gravatar", "NewGravatar"))
	assert.True(t, s.Allows("Gravatar", "UpdatedGravatar"))
	assert.False(t, s.Allows("Gravatar", "Transfer"))
	assert.False(t, s.Allows("Other", "NewGravatar"))
}

func TestResolver_Resolve(t *testing.T) {
	r := loadGravatar(t).Resolver()

	name, ok := r.Resolve(1, "0x2E645469F354BB4F5C8A05B3B30A929361CF77EC")
	require.True(t, ok)
	assert.Equal(t, "Gravatar", name)

	_, ok = r.Resolve(137, "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec")
	assert.False(t, ok)

	name, ok = r.Resolve(137, "0x2222222222222222222222222222222222222222")
	require.True(t, ok)
	assert.Equal(t, "Gravatar", name)
}

func TestResolver_InRange(t *testing.T) {
	r := loadGravatar(t).Resolver()

	assert.False(t, r.InRange(1, 6175242))
	assert.True(t, r.InRange(1, 6175243))
	assert.True(t, r.InRange(1, 1<<40))

	assert.True(t, r.InRange(137, 100))
	assert.True(t, r.InRange(137, 5000))
	assert.False(t, r.InRange(137, 5001))

	assert.False(t, r.InRange(10, 100))
}

func TestResolver_Accept(t *testing.T) {
	r := loadGravatar(t).Resolver()
	at := func(chain, block uint64) ir.Provenance {
		return ir.Provenance{ChainID: chain, Block: block}
	}

	ev := ir.Event{Kind: "NewGravatar", Address: "0x1111111111111111111111111111111111111111", Provenance: at(137, 200)}
	assert.True(t, r.Accept(&ev))
	assert.Equal(t, "Gravatar", ev.Contract, "contract filled from address")

	ev = ir.Event{Contract: "Other", Kind: "NewGravatar", Address: "0x1111111111111111111111111111111111111111", Provenance: at(137, 200)}
	assert.False(t, r.Accept(&ev), "name disagrees with address")

	ev = ir.Event{Contract: "Gravatar", Kind: "NewGravatar", Address: "0x9999999999999999999999999999999999999999", Provenance: at(137, 200)}
	assert.False(t, r.Accept(&ev), "unknown address for bound contract")

	ev = ir.Event{Contract: "Gravatar", Kind: "NewGravatar", Provenance: at(1, 6175243)}
	assert.True(t, r.Accept(&ev), "no address, known contract")

	ev = ir.Event{Contract: "Gravatar", Kind: "NewGravatar", Provenance: at(137, 9000)}
	assert.False(t, r.Accept(&ev), "past end_block")
}

func TestResolver_UnboundContractAcceptsAnyAddress(t *testing.T) {
	cfg, err := Parse([]byte(`
name: dynamic
contracts:
  - name: Pair
    handler: pair
    events:
      - event: "Swap(uint256 amount)"
networks:
  - id: 1
    start_block: 0
    contracts:
      - name: Pair
`))
	require.NoError(t, err)
	r := cfg.Resolver()

	ev := ir.Event{Contract: "Pair", Kind: "Swap", Address: "0xabababababababababababababababababababab", Provenance: ir.Provenance{ChainID: 1}}
	assert.True(t, r.Accept(&ev))
}

func TestResolver_FilterEvents(t *testing.T) {
	r := loadGravatar(t).Resolver()
	events := []ir.Event{
		{Contract: "Gravatar", Kind: "NewGravatar", Provenance: ir.Provenance{ChainID: 137, Block: 99}},
		{Contract: "Gravatar", Kind: "NewGravatar", Provenance: ir.Provenance{ChainID: 137, Block: 100}},
		{Contract: "Gravatar", Kind: "NewGravatar", Provenance: ir.Provenance{ChainID: 2, Block: 100}},
		{Kind: "UpdatedGravatar", Address: "0x2222222222222222222222222222222222222222", Provenance: ir.Provenance{ChainID: 137, Block: 101}},
	}

	kept, dropped := r.FilterEvents(events)
	assert.Equal(t, 2, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, uint64(100), kept[0].Provenance.Block)
	assert.Equal(t, "Gravatar", kept[1].Contract)
}
