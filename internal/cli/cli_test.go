package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/nodebridge/internal/config"
)

func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	g := NewGlobalsWithConfig(&CLI{Format: format}, config.Default())
	g.Stdout = stdout
	g.Stderr = stderr
	return g, stdout, stderr
}

func TestOutputErrorCommonNDJSON(t *testing.T) {
	g, stdout, _ := testGlobals("ndjson")

	err := outputErrorCommon(g, "LAUNCH_FAILED", "spawn refused", "check the path")
	require.Error(t, err)
	assert.Equal(t, "spawn refused", err.Error())

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &m))
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, "LAUNCH_FAILED", m["code"])
	assert.Equal(t, "check the path", m["hint"])
}

func TestOutputErrorCommonText(t *testing.T) {
	g, _, stderr := testGlobals("text")

	err := outputErrorCommon(g, "BIND_FAILED", "address in use")
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Error [BIND_FAILED]: address in use")
}

func TestVersionCmd(t *testing.T) {
	g, stdout, _ := testGlobals("text")
	require.NoError(t, (&VersionCmd{}).Run(g))
	assert.True(t, strings.HasPrefix(stdout.String(), "nodebridge "))

	g, stdout, _ = testGlobals("ndjson")
	require.NoError(t, (&VersionCmd{}).Run(g))
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &m))
	assert.Equal(t, "version", m["type"])
}

func TestLaunchCmdRejectsMalformedEnv(t *testing.T) {
	g, _, _ := testGlobals("text")

	cmd := &LaunchCmd{Program: "node", Cwd: ".", Env: []string{"NOEQUALS"}}
	err := cmd.Run(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY=VALUE")
}

func TestMergeEnvOverrides(t *testing.T) {
	merged, err := mergeEnvOverrides(
		map[string]string{"DEBUG": "1", "NODE_PATH": "/opt/node/lib"},
		[]string{"DEBUG=0", "EXTRA=yes"},
	)
	require.NoError(t, err)

	// -e flags win over config file entries for the same key
	assert.Equal(t, map[string]string{
		"DEBUG":     "0",
		"NODE_PATH": "/opt/node/lib",
		"EXTRA":     "yes",
	}, merged)

	_, err = mergeEnvOverrides(nil, []string{"NOEQUALS"})
	require.Error(t, err)
}

func TestGlobalsCarryConfigEnvDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Defaults.Env = map[string]string{"DEBUG": "1"}
	g := NewGlobalsWithConfig(&CLI{Format: "text"}, cfg)
	assert.Equal(t, "1", g.DefaultEnv["DEBUG"])
}

func TestGlobalsQuietMergesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Quiet = true
	g := NewGlobalsWithConfig(&CLI{Format: "text"}, cfg)
	assert.True(t, g.Quiet)
}
