// Package session owns the debugger bridge session: the listening
// transport endpoint, the supervised runtime process, and the live forest
// of discovered targets.
package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/vburojevic/nodebridge/internal/domain"
	"github.com/vburojevic/nodebridge/internal/endpoint"
	"github.com/vburojevic/nodebridge/internal/pathmap"
	"github.com/vburojevic/nodebridge/internal/process"
	"github.com/vburojevic/nodebridge/internal/protocol"
)

// LaunchParams describes one launch request.
type LaunchParams struct {
	Command       []string
	Cwd           string
	Env           map[string]string
	AttachMode    domain.AttachMode
	BootstrapPath string
}

// Options wires the manager's collaborators. Zero fields get real
// implementations; tests substitute fakes.
type Options struct {
	Log        *zap.Logger
	Launcher   process.Launcher
	Threads    ThreadFactory
	OutputSink io.Writer
	Resolver   *pathmap.Resolver

	// Listen binds the endpoint address. Defaults to endpoint.Listen.
	Listen func(addr string) (net.Listener, error)

	// AmbientEnv seeds child environment construction. Defaults to
	// os.Environ().
	AmbientEnv []string

	// OnTreeChanged fires after any mutation of the target forest or of a
	// target's attach state.
	OnTreeChanged func()

	// OnTargetCreated, OnTargetDestroyed, and OnAttachChanged stream the
	// corresponding discrete forest mutations toward the host UI.
	OnTargetCreated   func(ev *domain.TargetCreated)
	OnTargetDestroyed func(ev *domain.TargetDestroyed)
	OnAttachChanged   func(ev *domain.AttachChanged)

	// OnSessionEnded fires when the runtime process exits spontaneously
	// (not during restart or terminate), after teardown completed.
	OnSessionEnded func()
}

// Manager drives the session lifecycle: launch, restart, terminate, and
// the accept loop that turns incoming connections into targets. The
// targets map is the arena: parent/child relations are id references into
// it, so reparenting is a pure data update.
type Manager struct {
	log      *zap.Logger
	launcher process.Launcher
	threads  ThreadFactory
	sink     io.Writer
	resolver *pathmap.Resolver
	listen   func(addr string) (net.Listener, error)
	ambient  []string

	onTreeChanged     func()
	onSessionEnded    func()
	onTargetCreated   func(ev *domain.TargetCreated)
	onTargetDestroyed func(ev *domain.TargetDestroyed)
	onAttachChanged   func(ev *domain.AttachChanged)

	// lifecycle serializes launch/restart/terminate against each other
	lifecycle sync.Mutex

	mu         sync.Mutex
	params     LaunchParams
	launched   bool
	addr       string
	ln         net.Listener
	proc       process.Handle
	conns      map[string]*protocol.Session
	targets    map[string]*Target
	restarting bool
	closing    bool
}

// NewManager creates a Manager from opts.
func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = process.NewSupervisor(log)
	}
	listen := opts.Listen
	if listen == nil {
		listen = endpoint.Listen
	}
	sink := opts.OutputSink
	if sink == nil {
		sink = io.Discard
	}
	ambient := opts.AmbientEnv
	if ambient == nil {
		ambient = os.Environ()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = pathmap.New(".")
	}
	return &Manager{
		log:               log,
		launcher:          launcher,
		threads:           opts.Threads,
		sink:              sink,
		resolver:          resolver,
		listen:            listen,
		ambient:           ambient,
		onTreeChanged:     opts.OnTreeChanged,
		onSessionEnded:    opts.OnSessionEnded,
		onTargetCreated:   opts.OnTargetCreated,
		onTargetDestroyed: opts.OnTargetDestroyed,
		onAttachChanged:   opts.OnAttachChanged,
		conns:             make(map[string]*protocol.Session),
		targets:           make(map[string]*Target),
	}
}

// Launch binds a fresh endpoint, starts listening, and spawns the runtime
// process with the instrumentation environment. A bind failure surfaces as
// the launch error and the process is not spawned.
func (m *Manager) Launch(ctx context.Context, params LaunchParams) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.proc != nil {
		m.mu.Unlock()
		return fmt.Errorf("launch: session already has a running process")
	}
	if params.AttachMode == "" {
		params.AttachMode = domain.AttachNever
	}
	m.params = params
	m.launched = true
	m.closing = false
	m.mu.Unlock()

	return m.start(ctx)
}

// Restart tears the process and endpoint down and brings both back up.
// The endpoint is rebound at a new address: the old one may still be in
// the process of being released by the OS. A kill failure is non-fatal.
func (m *Manager) Restart(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.launched {
		m.mu.Unlock()
		return fmt.Errorf("restart: session was never launched")
	}
	m.restarting = true
	m.mu.Unlock()

	m.teardown(ctx)

	err := m.start(ctx)

	m.mu.Lock()
	m.restarting = false
	m.mu.Unlock()
	return err
}

// Terminate kills the process (waiting for its exit) and stops the
// endpoint and all connections. Idempotent if already stopped.
func (m *Manager) Terminate(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.teardown(ctx)
	return nil
}

// Disconnect is Terminate under its front-end name: the bridge owns the
// spawned process, so disconnecting a launch tears it down.
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.Terminate(ctx)
}

// start binds a fresh endpoint address and spawns the process. Callers
// hold the lifecycle lock.
func (m *Manager) start(ctx context.Context) error {
	m.mu.Lock()
	params := m.params
	m.mu.Unlock()

	addr := endpoint.NextAddress()
	ln, err := m.listen(addr)
	if err != nil {
		return fmt.Errorf("launch: bind endpoint %s: %w", addr, err)
	}

	env := process.BuildEnv(m.ambient, params.Env, process.EnvOptions{
		EndpointAddress: addr,
		AttachMode:      params.AttachMode,
		BootstrapPath:   params.BootstrapPath,
	})
	handle, err := m.launcher.Launch(process.Spec{
		Command: params.Command,
		Dir:     params.Cwd,
		Env:     env,
	}, m.sink, m.handleProcessExit)
	if err != nil {
		ln.Close()
		return fmt.Errorf("launch: %w", err)
	}

	m.mu.Lock()
	m.addr = addr
	m.ln = ln
	m.proc = handle
	m.mu.Unlock()

	m.log.Info("session started",
		zap.String("endpoint", addr),
		zap.Int("pid", handle.Pid()),
		zap.String("attach_mode", string(params.AttachMode)))

	go m.acceptLoop(ln)
	return nil
}

// handleProcessExit runs when the supervised process exits. A spontaneous
// exit tears the session down as if disconnect was requested and
// deregisters it from the host; during restart or terminate the teardown
// is already in flight and this is a no-op.
func (m *Manager) handleProcessExit() {
	m.mu.Lock()
	suppressed := m.restarting || m.closing
	m.mu.Unlock()
	if suppressed {
		return
	}

	m.log.Info("process exited, tearing session down")
	m.teardown(context.Background())
	if m.onSessionEnded != nil {
		m.onSessionEnded()
	}
}

// teardown kills the process, stops the endpoint, closes every connection,
// and disconnects every remaining target. Idempotent.
func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	proc := m.proc
	m.proc = nil
	ln := m.ln
	m.ln = nil
	m.addr = ""
	conns := make([]*protocol.Session, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*protocol.Session)
	targets := make([]*Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	m.mu.Unlock()

	if proc != nil {
		if err := proc.Kill(ctx); err != nil {
			// non-fatal: proceed with rebinding/respawn regardless
			m.log.Warn("kill failed during teardown", zap.Error(err))
		}
	}
	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	for _, t := range targets {
		t.disconnected(ctx)
	}
}

func (m *Manager) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go m.handleConn(conn)
	}
}

// handleConn wraps an accepted connection in a protocol session and waits
// for target lifecycle events on it. A connection that yields no target
// before closing is dropped silently.
func (m *Manager) handleConn(conn net.Conn) {
	sess := protocol.NewSession(conn, m.log)

	sess.On(protocol.EventTargetCreated, func(ev protocol.Event) {
		m.handleTargetCreated(sess, ev)
	})
	sess.On(protocol.EventTargetDestroyed, func(ev protocol.Event) {
		id := ev.Params.Get("targetId").String()
		m.mu.Lock()
		t := m.targets[id]
		m.mu.Unlock()
		if t != nil && t.sess == sess {
			// handlers run on the read loop; the detach RPC inside
			// disconnected must not block it
			go t.disconnected(context.Background())
		}
	})

	m.mu.Lock()
	m.conns[sess.ID()] = sess
	m.mu.Unlock()

	m.log.Debug("connection accepted", zap.String("conn", sess.ID()))
	sess.Start()
	<-sess.Done()
	m.log.Debug("connection dropped", zap.String("conn", sess.ID()))

	m.mu.Lock()
	delete(m.conns, sess.ID())
	owned := make([]*Target, 0)
	for _, t := range m.targets {
		if t.sess == sess {
			owned = append(owned, t)
		}
	}
	m.mu.Unlock()

	// a drop is treated identically to target-destroyed for every target
	// owned by the connection
	for _, t := range owned {
		t.disconnected(context.Background())
	}
}

func (m *Manager) handleTargetCreated(sess *protocol.Session, ev protocol.Event) {
	info := protocol.ParseTargetInfo(ev.Params)
	if info.TargetID == "" {
		return
	}

	m.mu.Lock()
	if _, exists := m.targets[info.TargetID]; exists {
		m.mu.Unlock()
		return
	}
	t := newTarget(m, sess, info)
	m.targets[t.id] = t
	if info.OpenerID != "" {
		if parent, ok := m.targets[info.OpenerID]; ok {
			t.parentID = parent.id
			parent.childIDs = append(parent.childIDs, t.id)
		}
	}
	parentID := t.parentID
	m.mu.Unlock()

	m.log.Info("target created",
		zap.String("target", t.id),
		zap.String("name", t.displayName),
		zap.Bool("waiting", t.waiting))
	if m.onTargetCreated != nil {
		m.onTargetCreated(domain.NewTargetCreated(t.id, t.displayName, t.scriptName, parentID))
	}
	m.notifyTreeChanged()

	if t.waiting {
		// no synchronous caller to report to: log-and-continue
		go func() {
			if err := t.Attach(context.Background()); err != nil {
				m.log.Warn("auto-attach failed",
					zap.String("target", t.id), zap.Error(err))
			}
		}()
	}
}

func (m *Manager) notifyTreeChanged() {
	if m.onTreeChanged != nil {
		m.onTreeChanged()
	}
}

// Running reports whether a supervised process is currently alive.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc != nil
}

// EndpointAddress returns the currently bound endpoint address, or "".
func (m *Manager) EndpointAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}
