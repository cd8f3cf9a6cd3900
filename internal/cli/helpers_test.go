package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = "../../testdata/gravatar.yaml"

const gravatarAddr = "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec"

const sampleEvents = `
- address: "0x2E645469f354BB4F5c8a05B3b30A929361cf77eC"
  kind: NewGravatar
  params: {id: "1", owner: "0xAB", displayName: "Alice", imageUrl: "http://a"}
  provenance: {chain_id: 1, block: 10, log_index: 0}
- address: "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec"
  kind: UpdatedGravatar
  params: {id: "1", owner: "0xAB", displayName: "Alice B", imageUrl: "http://b"}
  provenance: {chain_id: 1, block: 11, log_index: 0}
- address: "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec"
  kind: NewGravatar
  params: {id: "2", owner: "0xCD", displayName: "Bob", imageUrl: "http://c"}
  provenance: {chain_id: 1, block: 12, log_index: 0}
- address: "0x0000000000000000000000000000000000000001"
  kind: NewGravatar
  params: {id: "3", owner: "0xEF", displayName: "Stranger", imageUrl: "http://d"}
  provenance: {chain_id: 1, block: 12, log_index: 1}
`

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeResponse parses a JSON CLIResponse and decodes its data into v.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if v != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
