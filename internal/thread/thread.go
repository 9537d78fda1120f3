// Package thread bridges an attached target to a debugging thread over the
// target's protocol sub-session.
package thread

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vburojevic/nodebridge/internal/protocol"
	"github.com/vburojevic/nodebridge/internal/session"
)

// Factory builds Bridges. It satisfies session.ThreadFactory.
type Factory struct {
	log *zap.Logger
}

// NewFactory creates a Factory.
func NewFactory(log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{log: log}
}

// NewThread binds a Bridge to the given sub-session.
func (f *Factory) NewThread(sess *protocol.Session, sessionID, name string) session.Thread {
	return &Bridge{
		sess:      sess,
		sessionID: sessionID,
		name:      name,
		log:       f.log.With(zap.String("thread", name)),
	}
}

// Bridge is a minimal thread implementation: it enables the runtime domain
// on its sub-session and relays execution context teardown notifications.
type Bridge struct {
	sess      *protocol.Session
	sessionID string
	name      string
	log       *zap.Logger

	disposed atomic.Bool

	mu          sync.Mutex
	fns         []func(defaultDestroyed bool)
	unsubscribe func()
}

// Initialize enables the runtime domain and wires the execution context
// notification stream.
func (b *Bridge) Initialize(ctx context.Context) error {
	unsubscribe := b.sess.On(protocol.EventExecutionContextsDestroyed, func(ev protocol.Event) {
		if b.disposed.Load() || ev.SessionID != b.sessionID {
			return
		}
		def := ev.Params.Get("defaultDestroyed").Bool()
		b.mu.Lock()
		fns := append(make([]func(bool), 0, len(b.fns)), b.fns...)
		b.mu.Unlock()
		for _, fn := range fns {
			fn(def)
		}
	})
	b.mu.Lock()
	b.unsubscribe = unsubscribe
	b.mu.Unlock()

	if _, err := b.sess.Call(ctx, b.sessionID, protocol.MethodRuntimeEnable, nil); err != nil {
		return err
	}
	b.log.Debug("thread initialized", zap.String("session", b.sessionID))
	return nil
}

// OnExecutionContextsDestroyed subscribes fn to the teardown notification.
func (b *Bridge) OnExecutionContextsDestroyed(fn func(defaultDestroyed bool)) {
	b.mu.Lock()
	b.fns = append(b.fns, fn)
	b.mu.Unlock()
}

// Dispose releases the bridge and removes its connection-level event
// subscription. Safe after a failed Initialize.
func (b *Bridge) Dispose() {
	if b.disposed.Swap(true) {
		return
	}
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	b.log.Debug("thread disposed", zap.String("session", b.sessionID))
}
