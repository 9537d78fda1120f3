package session

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vburojevic/nodebridge/internal/process"
	"github.com/vburojevic/nodebridge/internal/protocol"
)

type fakeAddr struct{ addr string }

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return a.addr }

// fakeListener hands out connections injected by the test.
type fakeListener struct {
	addr   string
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newFakeListener(addr string) *fakeListener {
	return &fakeListener{addr: addr, conns: make(chan net.Conn, 4), closed: make(chan struct{})}
}

func (l *fakeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeListener) Addr() net.Addr { return fakeAddr{addr: l.addr} }

// fakeHandle is a supervised process whose exit the test controls. With a
// non-zero exitDelay, Kill resolves only after the delay elapses on clk,
// mirroring a child that takes time to unwind.
type fakeHandle struct {
	pid       int
	clk       clock.Clock
	exitDelay time.Duration
	onExit    func()

	done        chan struct{}
	once        sync.Once
	killStarted chan struct{}
	killOnce    sync.Once
}

func newFakeHandle(pid int, clk clock.Clock, exitDelay time.Duration) *fakeHandle {
	if clk == nil {
		clk = clock.New()
	}
	return &fakeHandle{
		pid:         pid,
		clk:         clk,
		exitDelay:   exitDelay,
		done:        make(chan struct{}),
		killStarted: make(chan struct{}),
	}
}

func (h *fakeHandle) exit() {
	h.once.Do(func() {
		close(h.done)
		if h.onExit != nil {
			h.onExit()
		}
	})
}

func (h *fakeHandle) Pid() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitErr() error        { return nil }

func (h *fakeHandle) Kill(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if h.exitDelay > 0 {
		timer := h.clk.Timer(h.exitDelay)
		go func() {
			<-timer.C
			h.exit()
		}()
	} else {
		defer h.exit()
	}
	h.killOnce.Do(func() { close(h.killStarted) })
	if h.exitDelay == 0 {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeLauncher records launch specs and hands back fakeHandles.
type fakeLauncher struct {
	mu        sync.Mutex
	clk       clock.Clock
	exitDelay time.Duration
	specs     []process.Spec
	handles   []*fakeHandle
	nextPid   int
}

func (l *fakeLauncher) Launch(spec process.Spec, sink io.Writer, onExit func()) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPid++
	h := newFakeHandle(l.nextPid, l.clk, l.exitDelay)
	h.onExit = onExit
	l.specs = append(l.specs, spec)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) launched() []process.Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]process.Spec(nil), l.specs...)
}

func (l *fakeLauncher) handle(i int) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[i]
}

// fakeThread records lifecycle calls.
type fakeThread struct {
	name      string
	sessionID string
	initErr   error

	initialized atomic.Bool
	disposed    atomic.Int32

	mu    sync.Mutex
	ctxFn func(bool)
}

func (th *fakeThread) Initialize(ctx context.Context) error {
	if th.initErr != nil {
		return th.initErr
	}
	th.initialized.Store(true)
	return nil
}

func (th *fakeThread) OnExecutionContextsDestroyed(fn func(bool)) {
	th.mu.Lock()
	th.ctxFn = fn
	th.mu.Unlock()
}

func (th *fakeThread) Dispose() { th.disposed.Add(1) }

func (th *fakeThread) fireContextsDestroyed(def bool) {
	th.mu.Lock()
	fn := th.ctxFn
	th.mu.Unlock()
	if fn != nil {
		fn(def)
	}
}

type fakeThreadFactory struct {
	mu      sync.Mutex
	initErr error
	threads []*fakeThread
}

func (f *fakeThreadFactory) NewThread(_ *protocol.Session, sessionID, name string) Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	th := &fakeThread{name: name, sessionID: sessionID, initErr: f.initErr}
	f.threads = append(f.threads, th)
	return th
}

func (f *fakeThreadFactory) created() []*fakeThread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeThread(nil), f.threads...)
}
