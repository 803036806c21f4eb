package mux

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdppipe/cdppipe/internal/wire"
)

// HandlerID identifies a persistent handler registration, returned by
// Session.On and accepted by Session.Off.
type HandlerID int64

type handlerEntry struct {
	id HandlerID
	fn func(*wire.Message)
}

// waiter is a one-shot completion slot for WaitFor: it carries an optional
// predicate (the deadline is enforced by WaitFor's own timer), and is
// resolved at most once, either with a matching event or (via the session's
// detachedCh) with a detach error.
type waiter struct {
	predicate func(*wire.Message) bool
	ch        chan *wire.Message
	resolved  bool
}

// Session is the per-target (or, for the empty id, per-browser) dispatch
// context from spec §3: an event dispatch table of persistent handlers, a
// pending-event table of one-shot waiters, and a detached/attached state.
type Session struct {
	ID string

	mu         sync.Mutex
	nextHandle HandlerID
	handlers   map[string][]handlerEntry
	waiters    map[string][]*waiter
	detached   bool
	detachErr  error
	detachedCh chan struct{}
}

func newSession(id string) *Session {
	return &Session{
		ID:         id,
		handlers:   make(map[string][]handlerEntry),
		waiters:    make(map[string][]*waiter),
		detachedCh: make(chan struct{}),
	}
}

// On registers a persistent handler for the given event method ("event
// kind"), returning a token that Off accepts to remove it later.
func (s *Session) On(method string, fn func(*wire.Message)) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	id := s.nextHandle
	s.handlers[method] = append(s.handlers[method], handlerEntry{id: id, fn: fn})
	return id
}

// Off removes a previously registered handler.
func (s *Session) Off(method string, id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.handlers[method]
	for i, e := range entries {
		if e.id == id {
			s.handlers[method] = append(append([]handlerEntry(nil), entries[:i]...), entries[i+1:]...)
			return
		}
	}
}

// IsDetached reports whether Target.detachedFromTarget/targetDestroyed (or a
// transport closure) has already torn this session down.
func (s *Session) IsDetached() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached, s.detachErr
}

// waitFor registers a one-shot waiter for method, matching predicate (nil
// matches any event of that method), and blocks until it resolves, the
// deadline fires, or the session detaches — whichever is first. A waiter
// that times out is removed before its deadline expires, per spec §4.2's
// waiter contract; a late event it would have matched still flows to
// persistent handlers only.
func (s *Session) WaitFor(method string, predicate func(*wire.Message) bool, deadline time.Time) (*wire.Message, error) {
	s.mu.Lock()
	if s.detached {
		err := s.detachErr
		s.mu.Unlock()
		return nil, err
	}
	w := &waiter{predicate: predicate, ch: make(chan *wire.Message, 1)}
	s.waiters[method] = append(s.waiters[method], w)
	detachedCh := s.detachedCh
	s.mu.Unlock()

	var timerCh <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case m := <-w.ch:
		return m, nil
	case <-detachedCh:
		s.removeWaiter(method, w)
		s.mu.Lock()
		err := s.detachErr
		s.mu.Unlock()
		return nil, err
	case <-timerCh:
		s.removeWaiter(method, w)
		return nil, ErrTimeout
	}
}

func (s *Session) removeWaiter(method string, target *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[method]
	for i, w := range ws {
		if w == target {
			s.waiters[method] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// dispatchEvent delivers an inbound event frame to this session: every
// registered handler for m.Method is scheduled as an independent goroutine
// (never run inline, so the reader is never blocked on handler work), and
// then every still-pending one-shot waiter for m.Method whose predicate
// matches m is resolved, in FIFO registration order.
func (s *Session) dispatchEvent(m *wire.Message) {
	s.mu.Lock()
	handlers := append([]handlerEntry(nil), s.handlers[m.Method]...)
	ws := s.waiters[m.Method]
	var remaining []*waiter
	var matched []*waiter
	for _, w := range ws {
		if !w.resolved && (w.predicate == nil || w.predicate(m)) {
			w.resolved = true
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	if len(matched) > 0 {
		s.waiters[m.Method] = remaining
	}
	s.mu.Unlock()

	for _, h := range handlers {
		fn := h.fn
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{
						"session_id": s.ID,
						"method":     m.Method,
						"panic":      r,
					}).Error("mux: event handler panicked")
				}
			}()
			fn(m)
		}()
	}
	for _, w := range matched {
		w.ch <- m
	}
}

// detach transitions the session to detached, waking every pending waiter
// (via detachedCh) with err and rejecting every future operation with it.
// Idempotent.
func (s *Session) detach(err error) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.detachErr = err
	close(s.detachedCh)
	s.mu.Unlock()
}
