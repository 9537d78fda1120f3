package domain

import "time"

// TargetCreated is emitted when the instrumented runtime reports a new
// debuggable execution context
type TargetCreated struct {
	Type          string `json:"type"`                // "target_created"
	SchemaVersion int    `json:"schemaVersion"`       // 1
	TargetID      string `json:"target_id"`           // Remote-assigned identifier
	Name          string `json:"name"`                // Display name derived from the remote title
	FileName      string `json:"file_name,omitempty"` // Script name derived from the remote title
	ParentID      string `json:"parent_id,omitempty"` // Opener target, when known
	Timestamp     string `json:"timestamp"`           // ISO8601 timestamp
}

// TargetDestroyed is emitted when a target is removed from the tree, either
// because the remote reported it destroyed or its connection dropped
type TargetDestroyed struct {
	Type          string `json:"type"` // "target_destroyed"
	SchemaVersion int    `json:"schemaVersion"`
	TargetID      string `json:"target_id"`
}

// AttachChanged is emitted when a target transitions between detached and
// attached
type AttachChanged struct {
	Type          string `json:"type"` // "attached" or "detached"
	SchemaVersion int    `json:"schemaVersion"`
	TargetID      string `json:"target_id"`
	Name          string `json:"name,omitempty"`
}

// ProcessExit is emitted when the supervised child process exits
type ProcessExit struct {
	Type          string `json:"type"` // "process_exit"
	SchemaVersion int    `json:"schemaVersion"`
	Requested     bool   `json:"requested"` // true when exit followed terminate/restart
}

// NewTargetCreated creates a new TargetCreated event
func NewTargetCreated(id, name, fileName, parentID string) *TargetCreated {
	return &TargetCreated{
		Type:          "target_created",
		SchemaVersion: 1,
		TargetID:      id,
		Name:          name,
		FileName:      fileName,
		ParentID:      parentID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

// NewTargetDestroyed creates a new TargetDestroyed event
func NewTargetDestroyed(id string) *TargetDestroyed {
	return &TargetDestroyed{Type: "target_destroyed", SchemaVersion: 1, TargetID: id}
}

// NewAttachChanged creates an attached/detached event
func NewAttachChanged(id, name string, attached bool) *AttachChanged {
	typ := "detached"
	if attached {
		typ = "attached"
	}
	return &AttachChanged{Type: typ, SchemaVersion: 1, TargetID: id, Name: name}
}

// NewProcessExit creates a new ProcessExit event
func NewProcessExit(requested bool) *ProcessExit {
	return &ProcessExit{Type: "process_exit", SchemaVersion: 1, Requested: requested}
}
