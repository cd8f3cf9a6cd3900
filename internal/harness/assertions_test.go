package harness

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gravindex/internal/ir"
	"github.com/roach88/gravindex/internal/testutil"
)

func mutation(kind ir.MutationKind, id string, block uint64) ir.Mutation {
	return ir.Mutation{
		Kind:       kind,
		Ref:        ir.EntityRef{Type: "Gravatar", ID: id},
		Data:       ir.IRObject{"id": ir.IRString(id)},
		Provenance: ir.Provenance{ChainID: 1, Block: block},
	}
}

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []BatchTrace{
		{BatchID: "batch-000001", Setup: true, Events: 1, Handled: 1, Mutations: []ir.Mutation{
			mutation(ir.MutationInsert, "9", 1),
		}},
		{BatchID: "batch-000002", Events: 3, Handled: 2, Mutations: []ir.Mutation{
			mutation(ir.MutationInsert, "1", 2),
			mutation(ir.MutationInsert, "2", 2),
		}},
		{BatchID: "batch-000003", Events: 1, Handled: 1, Mutations: []ir.Mutation{
			mutation(ir.MutationUpdate, "1", 3),
		}},
	}
	r.State = map[string]map[string]ir.IRObject{
		"Gravatar": {"1": {}, "2": {}, "9": {}},
	}
	r.Checkpoints = map[uint64]ir.Provenance{1: {ChainID: 1, Block: 3}}
	return r
}

func TestEvaluateAssertions_Counts(t *testing.T) {
	result := sampleResult()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertEntityCount, Entity: "Gravatar", Count: intp(3)},
		{Type: AssertBatchCount, Count: intp(2)},
		{Type: AssertMutationCount, Count: intp(3)},
		{Type: AssertMutationCount, Entity: "Gravatar", Count: intp(3)},
		{Type: AssertMutationCount, Entity: "Other", Count: intp(0)},
	}, nil)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertEntityCount, Entity: "Gravatar", Count: intp(1)},
		{Type: AssertBatchCount, Count: intp(3)},
		{Type: AssertMutationCount, Count: intp(4)},
	}, nil)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "3")
	assert.Contains(t, errs[1], "batch-000002")
	assert.Contains(t, errs[2], "Assertion failed: mutation_count")
}

func TestEvaluateAssertions_MissingCount(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertBatchCount},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires count")
}

func TestEvaluateAssertions_MutationOrder(t *testing.T) {
	result := sampleResult()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertMutationOrder, Refs: []string{"Gravatar/1", "Gravatar/2"}},
	}, nil)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertMutationOrder, Refs: []string{"Gravatar/2", "Gravatar/1"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "should be before")

	// Setup batches are not part of the order.
	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertMutationOrder, Refs: []string{"Gravatar/9"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "missing ref: Gravatar/9")
}

func TestEvaluateAssertions_Checkpoint(t *testing.T) {
	result := sampleResult()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertCheckpoint, Chain: 1, Block: 3},
	}, nil)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertCheckpoint, Chain: 1, Block: 4},
		{Type: AssertCheckpoint, Chain: 10, Block: 1},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "1:3:0")
	assert.Contains(t, errs[1], "no checkpoint for chain 10")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: "trace_order"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "trace_order"`)
}

func TestEvaluateAssertions_EntityNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertEntity, Entity: "Gravatar", ID: "1", Expect: map[string]any{"id": "1"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires store context")
}

func TestEvaluateAssertions_Entity(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenStore(t)

	require.NoError(t, st.Commit(ctx, ir.CommitSet{
		BatchID: "b1",
		Mutations: []ir.Mutation{{
			Kind: ir.MutationInsert,
			Ref:  ir.EntityRef{Type: "Gravatar", ID: "1"},
			Data: ir.IRObject{
				"id":           ir.IRString("1"),
				"displayName":  ir.IRString("Alice"),
				"createdBlock": ir.NewIRBigInt(big.NewInt(100)),
				"updatesCount": ir.IRInt(1),
			},
			Provenance: ir.Provenance{ChainID: 1, Block: 100},
		}},
		Checkpoints: []ir.Provenance{{ChainID: 1, Block: 100}},
		EventCount:  1,
	}))

	actx := &AssertionContext{Store: st, Ctx: ctx}
	result := NewResult()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertEntity, Entity: "Gravatar", ID: "1", Expect: map[string]any{
			"displayName":  "Alice",
			"createdBlock": 100,
			"updatesCount": 1,
		}},
		{Type: AssertEntityAbsent, Entity: "Gravatar", ID: "2"},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertEntity, Entity: "Gravatar", ID: "1", Expect: map[string]any{"displayName": "Bob"}},
		{Type: AssertEntity, Entity: "Gravatar", ID: "1", Expect: map[string]any{"owner": "0x1"}},
		{Type: AssertEntity, Entity: "Gravatar", ID: "3", Expect: map[string]any{"id": "3"}},
		{Type: AssertEntityAbsent, Entity: "Gravatar", ID: "1"},
	}, actx)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], `"Bob"`)
	assert.Contains(t, errs[1], `field "owner" to exist`)
	assert.Contains(t, errs[2], "not found")
	assert.Contains(t, errs[3], "no entity Gravatar/1")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertBatchCount,
		Expected: "1 batches",
		Actual:   "2",
		Trace:    sampleResult().Trace[1:],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: batch_count")
	assert.Contains(t, msg, "batch-000002 events=3 handled=2 mutations=2")
	assert.Contains(t, msg, "insert Gravatar/1")
}
