package mux_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cdppipe/cdppipe/internal/mux"
	"github.com/cdppipe/cdppipe/internal/wire"
)

// fakeWriter records every write and lets the test reply on behalf of the
// "browser" by calling mx.HandleFrame directly, without a real transport.
type fakeWriter struct {
	mu      sync.Mutex
	written []*wire.Message
	failErr error
}

func (w *fakeWriter) Write(ctx context.Context, m *wire.Message) error {
	if w.failErr != nil {
		return w.failErr
	}
	w.mu.Lock()
	w.written = append(w.written, m)
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) last() *wire.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written[len(w.written)-1]
}

func TestCallMatchesResponseByID(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	done := make(chan struct{})
	var result []byte
	var callErr error
	go func() {
		result, callErr = mx.Call(context.Background(), "", "Browser.getVersion", nil, time.Time{})
		close(done)
	}()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.written) == 1
	}, time.Second, time.Millisecond)

	id := w.last().ID
	mx.HandleFrame(&wire.Message{ID: id, Result: []byte(`{"product":"HeadlessChrome/120"}`)})

	<-done
	require.NoError(t, callErr)
	require.JSONEq(t, `{"product":"HeadlessChrome/120"}`, string(result))
}

func TestCallIDsAreNeverReused(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	for i := 0; i < 5; i++ {
		go mx.Call(context.Background(), "", "Target.getTargets", nil, time.Time{})
	}

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.written) == 5
	}, time.Second, time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[int64]bool)
	for _, m := range w.written {
		require.False(t, seen[m.ID], "duplicate id %d", m.ID)
		seen[m.ID] = true
	}
}

func TestCallSurfacesProtocolError(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	done := make(chan error, 1)
	go func() {
		_, err := mx.Call(context.Background(), "", "DOM.querySelector", nil, time.Time{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.written) == 1
	}, time.Second, time.Millisecond)

	mx.HandleFrame(&wire.Message{ID: w.last().ID, Error: &wire.Error{Code: -32000, Message: "No node found"}})

	err := <-done
	var protoErr *mux.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, int64(-32000), protoErr.Code)
}

func TestCallTimesOutAndDropsLateResponse(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	_, err := mx.Call(context.Background(), "", "Page.navigate", nil, time.Now().Add(20*time.Millisecond))
	require.ErrorIs(t, err, mux.ErrTimeout)

	// A late response for the now-abandoned id must not panic or deadlock.
	mx.HandleFrame(&wire.Message{ID: w.last().ID, Result: []byte(`{}`)})
}

func TestEventFanOutToMultipleHandlers(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	var mu sync.Mutex
	var calls int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		s.On("Runtime.consoleAPICalled", func(m *wire.Message) {
			mu.Lock()
			calls++
			mu.Unlock()
			wg.Done()
		})
	}

	mx.HandleFrame(&wire.Message{Method: "Runtime.consoleAPICalled", Params: []byte(`{"type":"log"}`)})

	doneCh := make(chan struct{})
	go func() { wg.Wait(); close(doneCh) }()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("not all handlers invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, calls)
}

func TestHandlerPanicDoesNotStallReaderOrOtherHandlers(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	s.On("Foo.bar", func(m *wire.Message) {
		// Handlers run on their own goroutine; a panic there must not take
		// down the dispatch path for other handlers or frames.
		defer func() { recover() }()
		panic("boom")
	})

	secondCalled := make(chan struct{})
	s.On("Foo.bar", func(m *wire.Message) {
		close(secondCalled)
	})

	mx.HandleFrame(&wire.Message{Method: "Foo.bar"})

	select {
	case <-secondCalled:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran")
	}

	// The multiplexer itself must still be responsive afterwards.
	done := make(chan struct{})
	go func() {
		mx.Call(context.Background(), "", "Browser.getVersion", nil, time.Now().Add(50*time.Millisecond))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mux became unresponsive after a handler panic")
	}
}

func TestWaitForEventZeroTimeoutNeverBlocksLong(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	start := time.Now()
	_, err := s.WaitFor("Page.loadEventFired", nil, time.Now())
	require.ErrorIs(t, err, mux.ErrTimeout)
	require.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestCloseResolvesAllPendingWithConnectionLost(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mx.Call(context.Background(), "", "Target.getTargets", nil, time.Time{})
		}(i)
	}

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.written) == 10
	}, time.Second, time.Millisecond)

	mx.Close(errors.New("child exited"))
	wg.Wait()

	for _, err := range errs {
		var connErr *mux.ConnectionLostError
		require.ErrorAs(t, err, &connErr)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	mx.Close(errors.New("first"))
	mx.Close(errors.New("second"))
}

func TestDetachedSessionRejectsFurtherCommands(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	mx.Session("sess-1")
	mx.RemoveSession("sess-1", &mux.DetachedError{SessionID: "sess-1"})

	_, err := mx.Call(context.Background(), "sess-1", "Runtime.evaluate", nil, time.Time{})
	var detachedErr *mux.DetachedError
	require.ErrorAs(t, err, &detachedErr)
}

func TestUnknownSessionEventIsDroppedNotFatal(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)

	require.NotPanics(t, func() {
		mx.HandleFrame(&wire.Message{Method: "Page.loadEventFired", SessionID: "ghost-session"})
	})
}
