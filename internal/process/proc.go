// Package process supervises the spawned target runtime: environment
// construction, launch, output forwarding, and kill-that-waits-for-exit.
package process

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Spec describes a process to launch.
type Spec struct {
	Command []string
	Dir     string
	Env     []string
}

// Handle is a running supervised process. Kill completes only when the
// process has actually exited, so callers can rely on it being gone before
// rebinding the transport endpoint on restart.
type Handle interface {
	Pid() int
	Kill(ctx context.Context) error
	Done() <-chan struct{}
	ExitErr() error
}

// Launcher spawns supervised processes. The session manager depends on
// this interface so tests can substitute fakes.
type Launcher interface {
	Launch(spec Spec, sink io.Writer, onExit func()) (Handle, error)
}

// Supervisor is the real Launcher backed by os/exec.
type Supervisor struct {
	log *zap.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{log: log}
}

// Launch starts the process described by spec. Output is forwarded to sink
// until the process exits; after exit the sink reference is dropped so
// late-arriving writes are discarded. onExit, if non-nil, runs after the
// exit has been recorded.
func (s *Supervisor) Launch(spec Spec, sink io.Writer, onExit func()) (Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("launch: empty command")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	setSysProcAttr(cmd)

	guard := &guardedSink{w: sink}
	cmd.Stdout = guard
	cmd.Stderr = guard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.Command[0], err)
	}

	p := &Proc{cmd: cmd, log: s.log, sink: guard, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		guard.drop()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
		s.log.Debug("process exited", zap.Int("pid", p.Pid()), zap.Error(err))
		if onExit != nil {
			onExit()
		}
	}()
	return p, nil
}

// Proc is a Handle over a spawned OS process.
type Proc struct {
	cmd  *exec.Cmd
	log  *zap.Logger
	sink *guardedSink
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

// Pid returns the OS process id.
func (p *Proc) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited.
func (p *Proc) Done() <-chan struct{} { return p.done }

// ExitErr returns the error recorded at exit, if any. Only meaningful
// after Done is closed.
func (p *Proc) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Kill force-terminates the process group and waits for the actual exit.
// Returns the context error if the wait is abandoned first.
func (p *Proc) Kill(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := KillGroup(p.Pid()); err != nil {
		// best effort on the group; fall back to the process itself
		if kerr := p.cmd.Process.Kill(); kerr != nil {
			p.log.Debug("kill failed", zap.Int("pid", p.Pid()), zap.Error(kerr))
		}
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// guardedSink forwards writes until drop is called, then discards them so
// a stale display sink is never written after process exit.
type guardedSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (g *guardedSink) Write(b []byte) (int, error) {
	g.mu.Lock()
	w := g.w
	g.mu.Unlock()
	if w == nil {
		return len(b), nil
	}
	return w.Write(b)
}

func (g *guardedSink) drop() {
	g.mu.Lock()
	g.w = nil
	g.mu.Unlock()
}
