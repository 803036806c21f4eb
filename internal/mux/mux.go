// Package mux implements the Session Multiplexer from spec §4.2: it matches
// CDP responses to outstanding command ids, routes events to per-session
// dispatch tables, and lets callers wait on typed events with a deadline.
package mux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdppipe/cdppipe/internal/wire"
)

// Writer is the subset of internal/pipe.Transport the Multiplexer depends
// on, kept as an interface so the dispatch logic here can be unit tested
// without a real pipe pair.
type Writer interface {
	Write(ctx context.Context, m *wire.Message) error
}

// Multiplexer owns the command registry and the per-session dispatch
// tables sitting on top of a single Writer (normally a *pipe.Transport).
// It is meant to be fed inbound frames via HandleFrame, typically as a
// Transport's onFrame callback.
type Multiplexer struct {
	writer   Writer
	registry *registry
	log      logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	closeErr error
}

// New constructs a Multiplexer over writer. The empty-string session (the
// browser-level session) always exists.
func New(writer Writer, log logrus.FieldLogger) *Multiplexer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	mx := &Multiplexer{
		writer:   writer,
		registry: newRegistry(),
		log:      log,
		sessions: make(map[string]*Session),
	}
	mx.sessions[""] = newSession("")
	return mx
}

// Session returns the session for id, creating it (as attached) if it
// doesn't exist yet. The empty string denotes the browser-level session.
func (mx *Multiplexer) Session(id string) *Session {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	s, ok := mx.sessions[id]
	if !ok {
		s = newSession(id)
		if mx.closed {
			s.detach(mx.closeErr)
		}
		mx.sessions[id] = s
	}
	return s
}

// RemoveSession detaches the session for id. The entry is kept in the
// session table, rather than deleted, so that a command subsequently
// addressed to this id still resolves to a DetachedError instead of being
// treated as an unknown session; Target.detachedFromTarget/targetDestroyed
// never reuses a sessionId within a process, so this never grows unbounded
// faster than the number of targets ever attached.
func (mx *Multiplexer) RemoveSession(id string, cause error) {
	mx.mu.Lock()
	s, ok := mx.sessions[id]
	mx.mu.Unlock()
	if ok {
		s.detach(cause)
	}
}

// HandleFrame routes one inbound, already-parsed frame: responses complete
// their command's registry slot, events are routed to the matching
// session's dispatch table. A frame whose sessionId names a session that
// doesn't exist is dropped with a warning, never fatal, per spec §3's
// Session invariant.
func (mx *Multiplexer) HandleFrame(m *wire.Message) {
	if !m.IsEvent() {
		if !mx.registry.complete(m.ID, m) {
			mx.log.WithField("id", m.ID).Warn("mux: response for unknown or already-resolved command id")
		}
		return
	}

	mx.mu.Lock()
	s, ok := mx.sessions[m.SessionID]
	mx.mu.Unlock()
	if !ok {
		mx.log.WithFields(logrus.Fields{
			"session_id": m.SessionID,
			"method":     m.Method,
		}).Warn("mux: event for unknown session, dropping")
		return
	}
	s.dispatchEvent(m)
}

// Call allocates a command id, writes the framed command through the
// Writer, and waits for the matching response, the deadline, or transport
// closure — whichever comes first. A zero deadline means wait forever
// (bounded only by ctx).
//
// On timeout the registry slot is removed and a subsequently-arriving
// response is dropped silently (mux.ErrTimeout). On transport closure the
// call resolves with a *ConnectionLostError.
func (mx *Multiplexer) Call(ctx context.Context, sessionID, method string, params []byte, deadline time.Time) ([]byte, error) {
	if detached, err := mx.sessionDetached(sessionID); detached {
		return nil, err
	}

	id := mx.registry.allocate()
	slot, ok := mx.registry.register(id)
	if !ok {
		return nil, &ConnectionLostError{}
	}

	msg := &wire.Message{ID: id, Method: method, Params: params, SessionID: sessionID}
	if err := mx.writer.Write(ctx, msg); err != nil {
		mx.registry.cancel(id)
		return nil, &ConnectionLostError{Cause: err}
	}

	var timerCh <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case result := <-slot.resp:
		if result.err != nil {
			return nil, result.err
		}
		if result.msg.Error != nil {
			return nil, &ProtocolError{Code: result.msg.Error.Code, Message: result.msg.Error.Message, Data: result.msg.Error.Data}
		}
		return result.msg.Result, nil
	case <-timerCh:
		mx.registry.cancel(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		mx.registry.cancel(id)
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

func (mx *Multiplexer) sessionDetached(sessionID string) (bool, error) {
	mx.mu.Lock()
	s, ok := mx.sessions[sessionID]
	mx.mu.Unlock()
	if !ok {
		return false, nil
	}
	return s.IsDetached()
}

// Close tears down every session and fails every outstanding command with a
// connection-lost error. It is meant to be wired as the Transport's
// onClose callback. Idempotent.
func (mx *Multiplexer) Close(cause error) {
	mx.mu.Lock()
	if mx.closed {
		mx.mu.Unlock()
		return
	}
	mx.closed = true
	mx.closeErr = cause
	sessions := make([]*Session, 0, len(mx.sessions))
	for _, s := range mx.sessions {
		sessions = append(sessions, s)
	}
	mx.mu.Unlock()

	connErr := &ConnectionLostError{Cause: cause}
	mx.registry.closeAll(cause)
	for _, s := range sessions {
		s.detach(connErr)
	}
}
