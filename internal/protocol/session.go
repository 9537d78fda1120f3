// Package protocol implements the RPC session spoken over one accepted
// transport connection: newline-delimited JSON frames carrying commands,
// responses, and events, multiplexed into per-target sub-sessions via a
// sessionId field.
package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// Methods and events exchanged with the instrumented runtime.
const (
	MethodAttachToTarget          = "Target.attachToTarget"
	MethodDetachFromTarget        = "Target.detachFromTarget"
	MethodRunIfWaitingForDebugger = "Runtime.runIfWaitingForDebugger"
	MethodRuntimeEnable           = "Runtime.enable"

	EventTargetCreated              = "Target.targetCreated"
	EventTargetDestroyed            = "Target.targetDestroyed"
	EventExecutionContextsDestroyed = "Runtime.executionContextsDestroyed"
)

// ErrSessionClosed is returned by Call once the connection is gone.
var ErrSessionClosed = errors.New("protocol: session closed")

// Event is a notification pushed by the remote side.
type Event struct {
	Method    string
	SessionID string
	Params    gjson.Result
}

// EventHandler receives events. Handlers run on the session's read
// goroutine and must not block.
type EventHandler func(ev Event)

type pendingCall struct {
	ch chan gjson.Result
}

type handlerReg struct {
	id int64
	fn EventHandler
}

// Session wraps one accepted connection. Commands are correlated to
// responses by id; events are fanned out to subscribed handlers.
type Session struct {
	conn net.Conn
	log  *zap.Logger
	id   string

	mu         sync.Mutex
	nextID     int64
	pending    map[int64]*pendingCall
	handlerSeq int64
	handlers   map[string][]handlerReg

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session over conn. Call On for the events of
// interest, then Start to begin the read loop.
func NewSession(conn net.Conn, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		conn:     conn,
		log:      log,
		id:       uuid.NewString(),
		pending:  make(map[int64]*pendingCall),
		handlers: make(map[string][]handlerReg),
		done:     make(chan struct{}),
	}
}

// ID returns the connection's bookkeeping identifier.
func (s *Session) ID() string { return s.id }

// Done is closed when the connection has dropped and the read loop exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// On subscribes h to events named method, on any sub-session. Subscribe
// before Start to avoid missing early notifications. The returned func
// removes the subscription and is safe to call more than once.
func (s *Session) On(method string, h EventHandler) (unsubscribe func()) {
	s.mu.Lock()
	s.handlerSeq++
	id := s.handlerSeq
	s.handlers[method] = append(s.handlers[method], handlerReg{id: id, fn: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		regs := s.handlers[method]
		for i, reg := range regs {
			if reg.id == id {
				s.handlers[method] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Start launches the read loop.
func (s *Session) Start() {
	go s.readLoop()
}

// Close tears the connection down. Pending calls fail with
// ErrSessionClosed once the read loop notices.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Call sends method with params on the given sub-session (empty for the
// default sub-session) and waits for the matching response.
func (s *Session) Call(ctx context.Context, sessionID, method string, params map[string]any) (gjson.Result, error) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return gjson.Result{}, ErrSessionClosed
	default:
	}
	s.nextID++
	id := s.nextID
	call := &pendingCall{ch: make(chan gjson.Result, 1)}
	s.pending[id] = call
	s.mu.Unlock()

	frame, err := buildFrame(id, sessionID, method, params)
	if err != nil {
		s.dropPending(id)
		return gjson.Result{}, err
	}
	if _, err := s.conn.Write(append(frame, '\n')); err != nil {
		s.dropPending(id)
		return gjson.Result{}, fmt.Errorf("protocol: write %s: %w", method, err)
	}

	select {
	case res := <-call.ch:
		if errMsg := res.Get("error.message"); errMsg.Exists() {
			return gjson.Result{}, fmt.Errorf("protocol: %s: %s", method, errMsg.String())
		}
		return res.Get("result"), nil
	case <-s.done:
		return gjson.Result{}, ErrSessionClosed
	case <-ctx.Done():
		s.dropPending(id)
		return gjson.Result{}, ctx.Err()
	}
}

func (s *Session) dropPending(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func buildFrame(id int64, sessionID, method string, params map[string]any) ([]byte, error) {
	frame, err := sjson.Set("{}", "id", id)
	if err != nil {
		return nil, err
	}
	if frame, err = sjson.Set(frame, "method", method); err != nil {
		return nil, err
	}
	if sessionID != "" {
		if frame, err = sjson.Set(frame, "sessionId", sessionID); err != nil {
			return nil, err
		}
	}
	for k, v := range params {
		if frame, err = sjson.Set(frame, "params."+k, v); err != nil {
			return nil, err
		}
	}
	return []byte(frame), nil
}

func (s *Session) readLoop() {
	defer func() {
		s.Close()
		close(s.done)
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		// scanner reuses its buffer; copy before handing slices to handlers
		line := append([]byte(nil), scanner.Bytes()...)
		msg := gjson.ParseBytes(line)
		if id := msg.Get("id"); id.Exists() && !msg.Get("method").Exists() {
			s.mu.Lock()
			call, ok := s.pending[id.Int()]
			if ok {
				delete(s.pending, id.Int())
			}
			s.mu.Unlock()
			if ok {
				call.ch <- msg
			}
			continue
		}
		if method := msg.Get("method"); method.Exists() {
			ev := Event{
				Method:    method.String(),
				SessionID: msg.Get("sessionId").String(),
				Params:    gjson.Parse(msg.Get("params").Raw),
			}
			s.mu.Lock()
			regs := append([]handlerReg(nil), s.handlers[ev.Method]...)
			s.mu.Unlock()
			for _, reg := range regs {
				reg.fn(ev)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Debug("connection read failed", zap.String("conn", s.id), zap.Error(err))
	}
}
