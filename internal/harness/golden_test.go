package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gravindex/internal/ir"
)

func TestRunWithGolden_NewAndUpdate(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/gravatar_new_and_update.yaml")
	require.NoError(t, err)

	require.NoError(t, RunWithGolden(t, scenario))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/gravatar_batches.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := NewSnapshot(scenario.Name, first).MarshalCanonical()
	require.NoError(t, err)
	b, err := NewSnapshot(scenario.Name, second).MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_OmitsSetupFlagOnEventBatches(t *testing.T) {
	data, err := NewSnapshot("s", sampleResult()).MarshalCanonical()
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"batch_id":"batch-000001","events":1,"handled":1`)
	assert.Contains(t, s, `"setup":true`)
	assert.Equal(t, 1, strings.Count(s, `"setup"`))
	assert.Contains(t, s, `"checkpoints":{"1":{"block":3,"chain_id":1,"log_index":0}}`)
}

func TestGoldenCheck(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{Name: "sample"}
	result := sampleResult()

	err := GoldenCheck(dir, false)(scenario, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	require.NoError(t, GoldenCheck(dir, true)(scenario, result))
	require.NoError(t, GoldenCheck(dir, false)(scenario, result))

	result.Checkpoints[1] = ir.Provenance{ChainID: 1, Block: 99}
	err = GoldenCheck(dir, false)(scenario, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot differs")
}

func TestGoldenCheck_MatchesCheckedInFixture(t *testing.T) {
	paths, err := FindScenarios(scenarioDir, "gravatar_new_and_update")
	require.NoError(t, err)
	require.Len(t, paths, 1)

	res := RunSuite(context.Background(), paths, GoldenCheck("testdata/golden", false))
	assert.Equal(t, 1, res.Passed, "failures: %v", res.Failures)
}
