package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vburojevic/nodebridge/internal/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(buf)
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestWriteEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	err := w.Write(domain.NewTargetCreated("t1", "app.js", "/work/app.js", ""))
	require.NoError(t, err)

	m := decodeLine(t, buf)
	require.Equal(t, "target_created", m["type"])
	require.EqualValues(t, 1, m["schemaVersion"])
	require.Equal(t, "t1", m["target_id"])
	require.Equal(t, "app.js", m["name"])
}

func TestWriteError(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	err := w.WriteError("LAUNCH_FAILED", "spawn refused", "check the program path")
	require.NoError(t, err)

	m := decodeLine(t, buf)
	require.Equal(t, "error", m["type"])
	require.Equal(t, "LAUNCH_FAILED", m["code"])
	require.Equal(t, "spawn refused", m["message"])
	require.Equal(t, "check the program path", m["hint"])
}

func TestWriteErrorWithoutHint(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteError("BIND_FAILED", "address in use"))

	m := decodeLine(t, buf)
	_, hasHint := m["hint"]
	require.False(t, hasHint)
}
