package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: one insert
handlers:
  Gravatar: gravatar
events:
  - contract: Gravatar
    kind: NewGravatar
    params: {id: "1", owner: "0xA", displayName: "A", imageUrl: "u"}
    provenance: {chain_id: 1, block: 1, log_index: 0}
assertions:
  - type: entity_count
    entity: Gravatar
    count: 1
`

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "minimal.yaml", minimalScenario)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, map[string]string{"Gravatar": "gravatar"}, s.Handlers)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "NewGravatar", s.Events[0].Kind)
	assert.Equal(t, uint64(1), s.Events[0].Provenance.Block)
	require.Len(t, s.Assertions, 1)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 1, *s.Assertions[0].Count)
}

func TestLoadScenario_ResolvesConfigRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "indexer.yaml", "name: x\n")
	path := writeScenario(t, dir, "s.yaml", `
name: cfg
description: config relative path
config: indexer.yaml
events:
  - address: "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec"
    kind: NewGravatar
    provenance: {chain_id: 1, block: 1, log_index: 0}
expect_error: anything
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "indexer.yaml"), s.Config)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte("name: x\nflow_token: abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nhandlers: {G: gravatar}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nhandlers: {G: gravatar}\n",
			wantErr: "description is required",
		},
		{
			name:    "no registry source",
			content: "name: n\ndescription: d\n",
			wantErr: "either config or handlers is required",
		},
		{
			name:    "missing config file",
			content: "name: n\ndescription: d\nconfig: missing.yaml\n",
			wantErr: "config file not found",
		},
		{
			name:    "negative batch size",
			content: "name: n\ndescription: d\nhandlers: {G: gravatar}\nbatch_size: -1\n",
			wantErr: "batch_size must be non-negative",
		},
		{
			name:    "no events",
			content: "name: n\ndescription: d\nhandlers: {G: gravatar}\n",
			wantErr: "events list is required",
		},
		{
			name: "event without kind",
			content: `name: n
description: d
handlers: {G: gravatar}
events:
  - contract: G
    provenance: {chain_id: 1, block: 1, log_index: 0}
`,
			wantErr: "event[0]: kind is required",
		},
		{
			name: "event without target",
			content: `name: n
description: d
handlers: {G: gravatar}
events:
  - kind: NewGravatar
    provenance: {chain_id: 1, block: 1, log_index: 0}
`,
			wantErr: "event[0]: contract or address is required",
		},
		{
			name: "no assertions",
			content: `name: n
description: d
handlers: {G: gravatar}
events:
  - contract: G
    kind: NewGravatar
    provenance: {chain_id: 1, block: 1, log_index: 0}
`,
			wantErr: "assertions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	two := 2
	neg := -1
	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "trace_contains"}, "unknown assertion type"},
		{"entity without id", Assertion{Type: AssertEntity, Entity: "Gravatar"}, "entity and id are required"},
		{"entity without expect", Assertion{Type: AssertEntity, Entity: "Gravatar", ID: "1"}, "expect is required"},
		{"absent without entity", Assertion{Type: AssertEntityAbsent, ID: "1"}, "entity and id are required"},
		{"entity_count without entity", Assertion{Type: AssertEntityCount, Count: &two}, "entity is required"},
		{"entity_count without count", Assertion{Type: AssertEntityCount, Entity: "Gravatar"}, "non-negative count"},
		{"negative batch_count", Assertion{Type: AssertBatchCount, Count: &neg}, "non-negative count"},
		{"empty order", Assertion{Type: AssertMutationOrder}, "refs list is required"},
		{"checkpoint without chain", Assertion{Type: AssertCheckpoint, Block: 3}, "chain is required"},
		{"valid mutation_count", Assertion{Type: AssertMutationCount, Count: &two}, ""},
		{"valid checkpoint", Assertion{Type: AssertCheckpoint, Chain: 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
