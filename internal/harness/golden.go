package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gravindex/internal/ir"
)

// Snapshot captures a scenario's batches and final state. It is serialized
// with canonical JSON so equal runs produce identical bytes.
type Snapshot struct {
	ScenarioName string
	Trace        []BatchTrace
	State        map[string]map[string]ir.IRObject
	Checkpoints  map[uint64]ir.Provenance
}

// NewSnapshot builds the snapshot of a scenario result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		State:        result.State,
		Checkpoints:  result.Checkpoints,
	}
}

// toIR converts the snapshot into an IR object for canonical serialization.
// Digests are left out: they are covered by the mutations themselves.
func (s Snapshot) toIR() ir.IRObject {
	batches := make(ir.IRArray, len(s.Trace))
	for i, b := range s.Trace {
		muts := make(ir.IRArray, len(b.Mutations))
		for j, m := range b.Mutations {
			muts[j] = ir.IRObject{
				"kind":       ir.IRString(m.Kind),
				"ref":        ir.IRString(m.Ref.String()),
				"data":       m.Data,
				"provenance": provenanceIR(m.Provenance),
			}
		}
		batch := ir.IRObject{
			"batch_id":  ir.IRString(b.BatchID),
			"events":    ir.IRInt(b.Events),
			"handled":   ir.IRInt(b.Handled),
			"mutations": muts,
		}
		if b.Setup {
			batch["setup"] = ir.IRBool(true)
		}
		batches[i] = batch
	}

	state := make(ir.IRObject, len(s.State))
	for typ, byID := range s.State {
		entities := make(ir.IRObject, len(byID))
		for id, obj := range byID {
			entities[id] = obj
		}
		state[typ] = entities
	}

	cps := make(ir.IRObject, len(s.Checkpoints))
	for chain, p := range s.Checkpoints {
		cps[strconv.FormatUint(chain, 10)] = provenanceIR(p)
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"batches":       batches,
		"state":         state,
		"checkpoints":   cps,
	}
}

// MarshalCanonical serializes the snapshot.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toIR())
}

func provenanceIR(p ir.Provenance) ir.IRObject {
	u := func(n uint64) ir.IRValue {
		v, _ := ir.FromGo(n)
		return v
	}
	return ir.IRObject{
		"chain_id":  u(p.ChainID),
		"block":     u(p.Block),
		"log_index": u(p.LogIndex),
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// GoldenCheck compares each scenario's snapshot with {dir}/{name}.golden,
// the layout AssertGolden uses. With update set, missing or differing
// files are rewritten instead.
func GoldenCheck(dir string, update bool) SuiteCheck {
	return func(scenario *Scenario, result *Result) error {
		data, err := NewSnapshot(scenario.Name, result).MarshalCanonical()
		if err != nil {
			return err
		}
		path := filepath.Join(dir, scenario.Name+".golden")

		if update {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("golden: %w", err)
			}
			return os.WriteFile(path, data, 0o644)
		}

		want, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("golden file %s missing (run with --update)", path)
		}
		if err != nil {
			return fmt.Errorf("golden: %w", err)
		}
		if !bytes.Equal(want, data) {
			return fmt.Errorf("snapshot differs from %s", path)
		}
		return nil
	}
}
