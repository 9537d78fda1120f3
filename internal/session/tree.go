package session

import (
	"context"
	"fmt"
	"sort"
)

// Action is a mutation entry point accepted by Execute, decoupled from the
// read-only tree projection.
type Action string

const (
	ActionAttach Action = "attach"
	ActionDetach Action = "detach"
	ActionStop   Action = "stop"
)

// NodeView is a plain data projection of one target for external
// observers. Attach is offered iff currently detached, Detach iff
// attached, Stop always.
type NodeView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	FileName  string     `json:"file_name,omitempty"`
	Attached  bool       `json:"attached"`
	CanAttach bool       `json:"can_attach"`
	CanDetach bool       `json:"can_detach"`
	CanStop   bool       `json:"can_stop"`
	Children  []NodeView `json:"children,omitempty"`
}

// Tree returns the current forest: the targets with no parent, each
// recursively carrying its children. This is the only read view external
// observers need.
func (m *Manager) Tree() []NodeView {
	m.mu.Lock()
	defer m.mu.Unlock()

	roots := make([]*Target, 0)
	for _, t := range m.targets {
		if t.parentID == "" {
			roots = append(roots, t)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].id < roots[j].id })

	views := make([]NodeView, 0, len(roots))
	for _, t := range roots {
		views = append(views, m.viewLocked(t))
	}
	return views
}

func (m *Manager) viewLocked(t *Target) NodeView {
	attached := t.attached.Load()
	v := NodeView{
		ID:        t.id,
		Name:      t.displayName,
		FileName:  t.scriptName,
		Attached:  attached,
		CanAttach: !attached,
		CanDetach: attached,
		CanStop:   true,
	}
	childIDs := append([]string(nil), t.childIDs...)
	sort.Strings(childIDs)
	for _, id := range childIDs {
		child, ok := m.targets[id]
		if !ok {
			continue
		}
		v.Children = append(v.Children, m.viewLocked(child))
	}
	return v
}

// Execute dispatches an action against the target identified by nodeID.
func (m *Manager) Execute(ctx context.Context, nodeID string, action Action) error {
	m.mu.Lock()
	t := m.targets[nodeID]
	m.mu.Unlock()
	if t == nil {
		return fmt.Errorf("unknown target %q", nodeID)
	}

	switch action {
	case ActionAttach:
		return t.Attach(ctx)
	case ActionDetach:
		return t.Detach(ctx)
	case ActionStop:
		return t.Stop()
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
