package mux_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cdppipe/cdppipe/internal/mux"
	"github.com/cdppipe/cdppipe/internal/wire"
)

func TestWaitForResolvesOnMatchingPredicate(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	done := make(chan *wire.Message, 1)
	go func() {
		m, err := s.WaitFor("Runtime.consoleAPICalled", func(m *wire.Message) bool {
			return string(m.Params) == `{"args":["x"]}`
		}, time.Now().Add(time.Second))
		require.NoError(t, err)
		done <- m
	}()

	time.Sleep(10 * time.Millisecond)
	mx.HandleFrame(&wire.Message{Method: "Runtime.consoleAPICalled", Params: []byte(`{"args":["y"]}`)})
	mx.HandleFrame(&wire.Message{Method: "Runtime.consoleAPICalled", Params: []byte(`{"args":["x"]}`)})

	select {
	case m := <-done:
		require.Equal(t, `{"args":["x"]}`, string(m.Params))
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}
}

func TestWaitForResolvesEveryMatchingWaiter(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	var order []int
	orderCh := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			s.WaitFor("Page.loadEventFired", nil, time.Now().Add(time.Second))
			orderCh <- i
		}()
		time.Sleep(5 * time.Millisecond) // ensure registration order
	}

	mx.HandleFrame(&wire.Message{Method: "Page.loadEventFired"})

	for i := 0; i < 3; i++ {
		select {
		case v := <-orderCh:
			order = append(order, v)
		case <-time.After(time.Second):
			t.Fatal("not all waiters resolved")
		}
	}
	require.ElementsMatch(t, []int{0, 1, 2}, order)
}

func TestOffRemovesHandler(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("")

	called := false
	id := s.On("Foo.bar", func(m *wire.Message) { called = true })
	s.Off("Foo.bar", id)

	mx.HandleFrame(&wire.Message{Method: "Foo.bar"})
	time.Sleep(20 * time.Millisecond)
	require.False(t, called)
}

func TestDetachResolvesPendingWaiters(t *testing.T) {
	w := &fakeWriter{}
	mx := mux.New(w, nil)
	s := mx.Session("sess-1")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.WaitFor("Page.loadEventFired", nil, time.Time{})
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	mx.RemoveSession("sess-1", &mux.DetachedError{SessionID: "sess-1"})

	select {
	case err := <-errCh:
		var detachedErr *mux.DetachedError
		require.ErrorAs(t, err, &detachedErr)
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved on detach")
	}
}
