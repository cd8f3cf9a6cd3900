package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gravindex/internal/ir"
)

func TestRunMissingFlags(t *testing.T) {
	_, err := execute(t, "run", "--events", "events.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "config")
}

func TestRunInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.yaml", "name: x\nnetworks: []\n")
	ev := writeFile(t, dir, "events.yaml", sampleEvents)

	out, err := execute(t, "run", "--config", cfg, "--events", ev, "--db", filepath.Join(dir, "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_CONFIG]")
}

func TestRunMissingEventsFile(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "--config", testConfig,
		"--events", filepath.Join(dir, "nope.yaml"), "--db", filepath.Join(dir, "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_EVENTS")
}

func TestRunIndexesAndResumes(t *testing.T) {
	dir := t.TempDir()
	ev := writeFile(t, dir, "events.yaml", sampleEvents)
	db := filepath.Join(dir, "index.db")

	out, err := execute(t, "run", "--config", testConfig, "--events", ev, "--db", db)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "Read 4 event(s), 1 outside the config")
	assert.Contains(t, out, "Committed 1 batch(es): 3 event(s), 0 skipped, 0 resumed, 2 mutation(s)")
	assert.Contains(t, out, "chain 1 checkpoint 1:12:0")

	out, err = execute(t, "run", "--config", testConfig, "--events", ev, "--db", db, "--format", "json")
	require.NoError(t, err, "output: %s", out)
	var summary RunSummary
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, summary.Batches)
	assert.Equal(t, 3, summary.Resumed)
	assert.Equal(t, ir.Provenance{ChainID: 1, Block: 12}, summary.Checkpoints[1])
}

func TestRunBatchSizeFlag(t *testing.T) {
	dir := t.TempDir()
	ev := writeFile(t, dir, "events.yaml", sampleEvents)

	out, err := execute(t, "run", "--config", testConfig, "--events", ev,
		"--db", filepath.Join(dir, "index.db"), "--batch-size", "1", "--format", "json")
	require.NoError(t, err, "output: %s", out)

	var summary RunSummary
	decodeResponse(t, out, &summary)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 3, summary.Events)
	assert.Equal(t, 3, summary.Mutations)
}

func TestRunNDJSON(t *testing.T) {
	dir := t.TempDir()
	ev := writeFile(t, dir, "events.ndjson",
		`{"address":"`+gravatarAddr+`","kind":"NewGravatar","params":{"id":115792089237316195423570985008687907853269984665640564039457584007913129639935,"owner":"0xAB","displayName":"Max","imageUrl":"u"},"provenance":{"chain_id":1,"block":5,"log_index":0}}`+"\n"+
			"\n"+
			`{"address":"`+gravatarAddr+`","kind":"UpdatedGravatar","params":{"id":"0x10","owner":"0xAB","displayName":"Hex","imageUrl":"u"},"provenance":{"chain_id":1,"block":6,"log_index":0}}`+"\n")
	db := filepath.Join(dir, "index.db")

	out, err := execute(t, "run", "--config", testConfig, "--events", ev, "--db", db)
	require.NoError(t, err, "output: %s", out)

	out, err = execute(t, "get", "Gravatar", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 Gravatar entit(ies)")
	assert.Contains(t, out, "Gravatar/115792089237316195423570985008687907853269984665640564039457584007913129639935")
	assert.Contains(t, out, "Gravatar/16")
}

func TestRunDryRunCommitsNothing(t *testing.T) {
	dir := t.TempDir()
	ev := writeFile(t, dir, "events.yaml", sampleEvents)
	db := filepath.Join(dir, "index.db")

	out, err := execute(t, "run", "--config", testConfig, "--events", ev, "--db", db, "--dry-run", "--format", "json")
	require.NoError(t, err, "output: %s", out)

	var dry DryRunSummary
	decodeResponse(t, out, &dry)
	assert.Equal(t, 3, dry.Events)
	assert.Equal(t, 3, dry.Handled)
	assert.NotEmpty(t, dry.Digest)
	require.Len(t, dry.Mutations, 2)
	assert.Equal(t, "Gravatar/1", dry.Mutations[0].Ref.String())

	out, err = execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "0 batch(es)")
}

func TestPendingEvents(t *testing.T) {
	ev := func(chain, block uint64) ir.Event {
		return ir.Event{Provenance: ir.Provenance{ChainID: chain, Block: block}}
	}
	events := []ir.Event{ev(1, 5), ev(2, 1), ev(1, 3), ev(1, 4)}
	cps := map[uint64]ir.Provenance{1: {ChainID: 1, Block: 4}}

	got := pendingEvents(events, cps)
	require.Len(t, got, 2)
	assert.Equal(t, ev(1, 5).Provenance, got[0].Provenance)
	assert.Equal(t, ev(2, 1).Provenance, got[1].Provenance)
	assert.Equal(t, uint64(5), events[0].Provenance.Block)
}
