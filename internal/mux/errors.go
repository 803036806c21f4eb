package mux

import (
	"errors"
	"fmt"
)

// The four externally observable error kinds from spec §7. Detached,
// protocol and connection-lost errors are distinct types so callers can tell
// them apart with errors.As; DetachedError and ConnectionLostError also
// unwrap to the package-level sentinels below for errors.Is. A timeout is
// the plain ErrTimeout sentinel.

// ErrDetached is the sentinel behind DetachedError.
var ErrDetached = errors.New("mux: tab no longer attached")

// ErrConnectionLost is the sentinel behind ConnectionLostError.
var ErrConnectionLost = errors.New("mux: transport closed")

// ErrTimeout is returned directly (no wrapper type) when a deadline fires;
// it is local to the waiter and carries no state worth distinguishing.
var ErrTimeout = errors.New("mux: timed out")

// ErrCancelled is returned by Multiplexer.Call, wrapped together with the
// context's own error, when the call's context ends before its response
// arrives. Session.WaitFor takes no context and ends only on its event, its
// deadline or detachment.
var ErrCancelled = errors.New("mux: cancelled")

// DetachedError reports an operation attempted against a session whose
// owning Tab has already detached.
type DetachedError struct {
	SessionID string
}

func (e *DetachedError) Error() string {
	return fmt.Sprintf("session %q: tab no longer attached", e.SessionID)
}

func (e *DetachedError) Unwrap() error { return ErrDetached }

// ProtocolError wraps a CDP `error` response object, or an exceptionDetails
// found in a Runtime.evaluate result. It is never retried by the core.
type ProtocolError struct {
	Code    int64
	Message string
	Data    string
}

func (e *ProtocolError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// ConnectionLostError reports that the pipe closed, the child died, or a
// write failed. All outstanding commands and waiters transition to this
// error, and the Browser becomes unusable.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "transport connection lost"
	}
	return fmt.Sprintf("transport connection lost: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error { return ErrConnectionLost }
