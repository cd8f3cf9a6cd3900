package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/gravindex/internal/ir"
	"github.com/roach88/gravindex/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []BatchTrace // Batches for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nBatches:\n")
		for _, b := range e.Trace {
			fmt.Fprintf(&buf, "  %s events=%d handled=%d mutations=%d\n", b.BatchID, b.Events, b.Handled, len(b.Mutations))
			for _, m := range b.Mutations {
				fmt.Fprintf(&buf, "    %s %s @%s\n", m.Kind, m.Ref, m.Provenance)
			}
		}
	}

	return buf.String()
}

// assertEntity checks a committed entity's fields (subset semantics).
// Expected values are compared by their canonical encoding, so YAML 100
// matches a stored big integer 100.
func assertEntity(ctx context.Context, st *store.Store, a Assertion) error {
	ref := ir.EntityRef{Type: a.Entity, ID: a.ID}
	obj, ok, err := st.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("entity %s: %w", ref, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %s to exist", ref),
			Actual:   "not found",
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actual, exists := obj[key]
		if !exists {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s field %q to exist", ref, key),
				Actual:   fmt.Sprintf("fields present: %v", obj.SortedKeys()),
			}
		}
		want, err := ir.FromGo(a.Expect[key])
		if err != nil {
			return fmt.Errorf("entity %s: expected field %q: %w", ref, key, err)
		}
		equal, err := irValuesEqual(want, actual)
		if err != nil {
			return fmt.Errorf("entity %s: field %q: %w", ref, key, err)
		}
		if !equal {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s field %q = %s", ref, key, render(want)),
				Actual:   fmt.Sprintf("%s field %q = %s", ref, key, render(actual)),
			}
		}
	}
	return nil
}

func assertEntityAbsent(ctx context.Context, st *store.Store, a Assertion) error {
	ref := ir.EntityRef{Type: a.Entity, ID: a.ID}
	obj, ok, err := st.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("entity %s: %w", ref, err)
	}
	if ok {
		return &AssertionError{
			Type:     AssertEntityAbsent,
			Expected: fmt.Sprintf("no entity %s", ref),
			Actual:   render(obj),
		}
	}
	return nil
}

func assertEntityCount(result *Result, a Assertion) error {
	got := len(result.State[a.Entity])
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s entities", *a.Count, a.Entity),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// assertMutationCount counts committed mutations of the events phase,
// restricted to one entity type when set.
func assertMutationCount(result *Result, a Assertion) error {
	batches := result.eventBatches()
	got := 0
	for _, b := range batches {
		for _, m := range b.Mutations {
			if a.Entity == "" || m.Ref.Type == a.Entity {
				got++
			}
		}
	}
	if got != *a.Count {
		what := "mutations"
		if a.Entity != "" {
			what = a.Entity + " mutations"
		}
		return &AssertionError{
			Type:     AssertMutationCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    batches,
		}
	}
	return nil
}

// assertMutationOrder checks refs were first written in the given order.
// Refs need not be consecutive.
func assertMutationOrder(result *Result, a Assertion) error {
	batches := result.eventBatches()
	positions := make(map[string]int)
	pos := 0
	for _, b := range batches {
		for _, m := range b.Mutations {
			pos++
			key := m.Ref.String()
			if _, seen := positions[key]; !seen {
				positions[key] = pos
			}
		}
	}

	for _, ref := range a.Refs {
		if _, ok := positions[ref]; !ok {
			return &AssertionError{
				Type:     AssertMutationOrder,
				Expected: fmt.Sprintf("all refs written: %v", a.Refs),
				Actual:   fmt.Sprintf("missing ref: %s", ref),
				Trace:    batches,
			}
		}
	}
	for i := 1; i < len(a.Refs); i++ {
		prev, curr := a.Refs[i-1], a.Refs[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertMutationOrder,
				Expected: fmt.Sprintf("refs in order: %v", a.Refs),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: batches,
			}
		}
	}
	return nil
}

func assertBatchCount(result *Result, a Assertion) error {
	batches := result.eventBatches()
	if len(batches) != *a.Count {
		return &AssertionError{
			Type:     AssertBatchCount,
			Expected: fmt.Sprintf("%d batches", *a.Count),
			Actual:   fmt.Sprintf("%d", len(batches)),
			Trace:    batches,
		}
	}
	return nil
}

func assertCheckpoint(result *Result, a Assertion) error {
	want := ir.Provenance{ChainID: a.Chain, Block: a.Block, LogIndex: a.LogIndex}
	got, ok := result.Checkpoints[a.Chain]
	if !ok {
		return &AssertionError{
			Type:     AssertCheckpoint,
			Expected: fmt.Sprintf("checkpoint %s", want),
			Actual:   fmt.Sprintf("no checkpoint for chain %d", a.Chain),
		}
	}
	if got != want {
		return &AssertionError{
			Type:     AssertCheckpoint,
			Expected: fmt.Sprintf("checkpoint %s", want),
			Actual:   fmt.Sprintf("checkpoint %s", got),
		}
	}
	return nil
}

// irValuesEqual compares two IR values by canonical encoding.
func irValuesEqual(a, b ir.IRValue) (bool, error) {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		return false, err
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func countsSomething(typ string) bool {
	return typ == AssertEntityCount || typ == AssertMutationCount || typ == AssertBatchCount
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for entity assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		if countsSomething(assertion.Type) && assertion.Count == nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires count", i, assertion.Type))
			continue
		}

		var err error
		switch assertion.Type {
		case AssertEntity, AssertEntityAbsent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
			} else if assertion.Type == AssertEntity {
				err = assertEntity(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertEntityAbsent(actx.Ctx, actx.Store, assertion)
			}
		case AssertEntityCount:
			err = assertEntityCount(result, assertion)
		case AssertMutationCount:
			err = assertMutationCount(result, assertion)
		case AssertMutationOrder:
			err = assertMutationOrder(result, assertion)
		case AssertBatchCount:
			err = assertBatchCount(result, assertion)
		case AssertCheckpoint:
			err = assertCheckpoint(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
