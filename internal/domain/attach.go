package domain

// AttachMode controls whether spawned runtimes wait for a debugger
type AttachMode string

const (
	AttachNever    AttachMode = "never"
	AttachAlways   AttachMode = "always"
	AttachTopLevel AttachMode = "top-level"
)

// ParseAttachMode normalizes a user-supplied mode string, defaulting to never
func ParseAttachMode(s string) AttachMode {
	switch AttachMode(s) {
	case AttachAlways:
		return AttachAlways
	case AttachTopLevel:
		return AttachTopLevel
	default:
		return AttachNever
	}
}

// WaitsForDebugger reports whether the mode asks the spawned runtime to
// pause until a debugger attaches
func (m AttachMode) WaitsForDebugger() bool {
	return m == AttachAlways || m == AttachTopLevel
}
