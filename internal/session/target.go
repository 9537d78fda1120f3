package session

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/nodebridge/internal/domain"
	"github.com/vburojevic/nodebridge/internal/process"
	"github.com/vburojevic/nodebridge/internal/protocol"
	"github.com/vburojevic/nodebridge/internal/serial"
)

// Thread is the external debugging-session abstraction an attached target
// is bridged to. The bridge owns the thread: it is created on attach and
// disposed exactly once on detach.
type Thread interface {
	// Initialize prepares the thread for debugging.
	Initialize(ctx context.Context) error
	// OnExecutionContextsDestroyed subscribes to the thread's execution
	// context teardown notification; defaultDestroyed is true when the
	// default context is among the destroyed ones.
	OnExecutionContextsDestroyed(fn func(defaultDestroyed bool))
	// Dispose releases the thread. Must be safe to call after a failed
	// Initialize.
	Dispose()
}

// ThreadFactory constructs a Thread bound to a target's sub-session.
type ThreadFactory interface {
	NewThread(sess *protocol.Session, sessionID, name string) Thread
}

// Target is one discovered execution context. Parent/child relations are
// id references into the manager's target map; the attach state machine is
// serialized through a per-target operation queue so at most one attach or
// detach is ever in flight.
type Target struct {
	m           *Manager
	sess        *protocol.Session
	id          string
	displayName string
	scriptName  string
	waiting     bool

	q        *serial.Queue
	attached atomic.Bool

	// owned by the serialized queue operations
	sessionID string
	thread    Thread

	// guarded by m.mu
	parentID string
	childIDs []string
	removed  bool
}

func newTarget(m *Manager, sess *protocol.Session, info protocol.TargetInfo) *Target {
	name := info.Title
	if name == "" {
		name = path.Base(info.URL)
	}
	if name == "" || name == "." {
		name = info.TargetID
	}
	script := m.resolver.URLToPath(info.URL)
	if script == "" {
		script = info.URL
	}
	return &Target{
		m:           m,
		sess:        sess,
		id:          info.TargetID,
		displayName: name,
		scriptName:  script,
		waiting:     info.WaitingForDebugger,
		q:           serial.NewQueue(),
	}
}

// ID returns the remote-assigned target identifier.
func (t *Target) ID() string { return t.id }

// Name returns the display name derived from the remote-reported title.
func (t *Target) Name() string { return t.displayName }

// Attached reports the externally observable attach state.
func (t *Target) Attached() bool { return t.attached.Load() }

// Attach binds a thread to the target. Idempotent: attaching an already
// attached target short-circuits without a remote call. A failure during
// the attach RPC or thread initialization reverts to detached with no
// thread retained.
func (t *Target) Attach(ctx context.Context) error {
	var changed bool
	err := t.q.Do(func() error {
		if t.attached.Load() {
			return nil
		}

		res, err := t.sess.Call(ctx, "", protocol.MethodAttachToTarget, map[string]any{
			"targetId": t.id,
			"flatten":  true,
		})
		if err != nil {
			return fmt.Errorf("attach %s: %w", t.id, err)
		}
		sessionID := res.Get("sessionId").String()

		thread := t.m.threads.NewThread(t.sess, sessionID, t.displayName)
		if err := thread.Initialize(ctx); err != nil {
			thread.Dispose()
			return fmt.Errorf("attach %s: initialize thread: %w", t.id, err)
		}
		thread.OnExecutionContextsDestroyed(func(defaultDestroyed bool) {
			// the default context going away means the execution context
			// this thread represented has fully torn down; release the
			// connection promptly instead of letting it linger
			if defaultDestroyed {
				t.sess.Close()
			}
		})

		t.thread = thread
		t.sessionID = sessionID
		t.attached.Store(true)
		changed = true
		if t.m.onAttachChanged != nil {
			t.m.onAttachChanged(domain.NewAttachChanged(t.id, t.displayName, true))
		}

		if t.waiting {
			if _, err := t.sess.Call(ctx, sessionID, protocol.MethodRunIfWaitingForDebugger, nil); err != nil {
				t.m.log.Debug("runIfWaitingForDebugger failed",
					zap.String("target", t.id), zap.Error(err))
			}
		}
		return nil
	})
	if err == nil && changed {
		t.m.notifyTreeChanged()
	}
	return err
}

// Detach unbinds the thread. Idempotent. The detach RPC is best-effort
// cleanup: the thread is disposed and the local state cleared regardless
// of its outcome.
func (t *Target) Detach(ctx context.Context) error {
	var changed bool
	err := t.q.Do(func() error {
		if !t.attached.Load() {
			return nil
		}

		if _, err := t.sess.Call(ctx, "", protocol.MethodDetachFromTarget, map[string]any{
			"targetId": t.id,
		}); err != nil {
			t.m.log.Debug("detach rpc failed, disposing thread anyway",
				zap.String("target", t.id), zap.Error(err))
		}

		t.thread.Dispose()
		t.thread = nil
		t.sessionID = ""
		t.attached.Store(false)
		changed = true
		if t.m.onAttachChanged != nil {
			t.m.onAttachChanged(domain.NewAttachChanged(t.id, t.displayName, false))
		}
		return nil
	})
	if err == nil && changed {
		t.m.notifyTreeChanged()
	}
	return err
}

// Stop force-terminates the OS process group behind a node-style target,
// whose target id doubles as a process id, then closes the connection.
// This is a non-cooperative shutdown path distinct from Detach.
func (t *Target) Stop() error {
	pid, err := strconv.Atoi(t.id)
	if err != nil {
		return fmt.Errorf("stop: target %q is not process-backed", t.id)
	}
	if err := process.KillGroup(pid); err != nil {
		t.m.log.Debug("stop: kill group failed", zap.Int("pid", pid), zap.Error(err))
	}
	return t.sess.Close()
}

// disconnected removes the target from the tree: its children are
// reparented to its own parent (grandchildren become children of the
// grandparent, keeping the forest connected and acyclic), it is removed
// from the arena, and only then is the detach awaited, so a concurrent tree
// read never observes a node that is disconnected but still attached.
func (t *Target) disconnected(ctx context.Context) {
	m := t.m

	m.mu.Lock()
	if t.removed {
		m.mu.Unlock()
		return
	}
	t.removed = true

	parent := m.targets[t.parentID]
	for _, childID := range t.childIDs {
		child, ok := m.targets[childID]
		if !ok {
			continue
		}
		child.parentID = t.parentID
		if parent != nil {
			parent.childIDs = append(parent.childIDs, childID)
		}
	}
	if parent != nil {
		parent.childIDs = lo.Without(parent.childIDs, t.id)
	}
	t.childIDs = nil
	t.parentID = ""
	delete(m.targets, t.id)
	m.mu.Unlock()

	if err := t.Detach(ctx); err != nil {
		m.log.Debug("detach on disconnect failed", zap.String("target", t.id), zap.Error(err))
	}
	m.log.Info("target destroyed", zap.String("target", t.id))
	if m.onTargetDestroyed != nil {
		m.onTargetDestroyed(domain.NewTargetDestroyed(t.id))
	}
	m.notifyTreeChanged()
}
