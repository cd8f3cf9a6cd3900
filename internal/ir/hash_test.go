package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMutation(id string, count int64) Mutation {
	return Mutation{
		Kind: MutationUpdate,
		Ref:  EntityRef{Type: "Gravatar", ID: id},
		Data: IRObject{"id": IRString(id), "updatesCount": IRInt(count)},
		Provenance: Provenance{
			ChainID: 1, Block: 10, LogIndex: 2,
		},
	}
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, hashWithDomain(DomainMutation, data), hashWithDomain(DomainBatch, data))
	assert.Len(t, hashWithDomain(DomainBatch, data), 64)
}

func TestMutationDigest_Stable(t *testing.T) {
	d1, err := MutationDigest(sampleMutation("1", 1))
	require.NoError(t, err)
	d2, err := MutationDigest(sampleMutation("1", 1))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	d3, err := MutationDigest(sampleMutation("1", 2))
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestMutationsDigest_OrderSensitive(t *testing.T) {
	a, b := sampleMutation("1", 1), sampleMutation("2", 1)

	d1, err := MutationsDigest([]Mutation{a, b})
	require.NoError(t, err)
	d2, err := MutationsDigest([]Mutation{b, a})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)

	empty, err := MutationsDigest(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}

func TestMutationsDigest_KindMatters(t *testing.T) {
	ins := sampleMutation("1", 1)
	ins.Kind = MutationInsert
	upd := sampleMutation("1", 1)

	d1, err := MutationsDigest([]Mutation{ins})
	require.NoError(t, err)
	d2, err := MutationsDigest([]Mutation{upd})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}
