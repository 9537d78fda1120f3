// Package output renders bridge events toward the host UI as ndjson or
// plain text.
package output

import (
	"encoding/json"
	"io"
	"sync"
)

// NDJSONWriter emits one JSON object per line so machine consumers can
// stream events as they happen.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer over w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Write emits v as a single ndjson line.
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// errorLine is the machine-readable failure shape
type errorLine struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// WriteError emits a structured error line.
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	line := errorLine{Type: "error", SchemaVersion: 1, Code: code, Message: message}
	if len(hint) > 0 {
		line.Hint = hint[0]
	}
	return w.Write(line)
}
