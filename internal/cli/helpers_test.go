package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const chainScene = `name: "chain"

nodes: {
	Path: {
		type: "PositionInterpolator"
		fields: {
			key: [0, 1]
			keyValue: [0, 0, 0, 0, 10, 0]
		}
	}
	Ball: type: "Transform"
}

routes: ["ROUTE Path.value_changed TO Ball.set_translation"]
`

const oscillatorScene = `name: "oscillator"

#Counter: {
	type: "Script"
	interface: [
		{access: "inputOnly", type: "SFInt32", name: "set_v"},
		{access: "outputOnly", type: "SFInt32", name: "v_changed"},
	]
	source: """
		function set_v(v) emit("v_changed", v + 1) end
		"""
}

nodes: {
	S1: #Counter
	S2: #Counter
}

routes: [
	"ROUTE S1.v_changed TO S2.set_v",
	"ROUTE S2.v_changed TO S1.set_v",
]
`

const unknownTypeScene = `name: "broken"

nodes: {
	Thing: type: "NoSuchNode"
	Ball: type: "Transform"
}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeResponse decodes a JSON CLIResponse and its data payload.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}
