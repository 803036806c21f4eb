package mux

import (
	"sync"
	"sync/atomic"

	"github.com/cdppipe/cdppipe/internal/wire"
)

// cmdResult is what a completion slot delivers: either a response frame
// (msg) from the browser, or a terminal err (currently only used to signal
// connection loss — timeouts and cancellations are handled by the caller's
// own select without going through the channel at all).
type cmdResult struct {
	msg *wire.Message
	err error
}

// pendingCmd is the completion slot for one outstanding command.
type pendingCmd struct {
	resp chan cmdResult // buffered(1); receives exactly once
}

// registry is the Command Registry from spec §3: a map from outstanding
// command id to a completion slot. IDs are globally monotonic and never
// reused within a process; on transport close every slot is completed with
// a connection-lost error exactly once.
type registry struct {
	nextID int64 // atomic

	mu      sync.Mutex
	pending map[int64]*pendingCmd
	closed  bool
	cause   error
}

func newRegistry() *registry {
	return &registry{pending: make(map[int64]*pendingCmd)}
}

// allocate returns the next strictly-increasing command id.
func (r *registry) allocate() int64 {
	return atomic.AddInt64(&r.nextID, 1)
}

// register creates a completion slot for id. It returns false if the
// registry has already been closed (the caller should fail the command
// immediately with ConnectionLostError rather than register a slot that
// will never be completed by a live reader).
func (r *registry) register(id int64) (*pendingCmd, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	slot := &pendingCmd{resp: make(chan cmdResult, 1)}
	r.pending[id] = slot
	return slot, true
}

// complete resolves the slot for id with m, if one is still registered.
// A response for an id with no registered slot — because it was never
// registered, already completed, or already cancelled/timed out — is
// logged by the caller and dropped silently here.
func (r *registry) complete(id int64, m *wire.Message) bool {
	r.mu.Lock()
	slot, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	slot.resp <- cmdResult{msg: m}
	return true
}

// cancel removes the slot for id without resolving it, so a response that
// later arrives for this id is dropped as unrecognized.
func (r *registry) cancel(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// closeAll resolves every still-pending slot with a connection-lost error
// and marks the registry closed, so every subsequent register call fails
// fast. Idempotent.
func (r *registry) closeAll(cause error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cause = cause
	pending := r.pending
	r.pending = make(map[int64]*pendingCmd)
	r.mu.Unlock()

	result := cmdResult{err: &ConnectionLostError{Cause: cause}}
	for _, slot := range pending {
		slot.resp <- result
	}
}
