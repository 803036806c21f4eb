package pipe_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cdppipe/cdppipe/internal/pipe"
	"github.com/cdppipe/cdppipe/internal/wire"
)

// loopback wires a Transport's write end back into its own read end through
// an os.Pipe, so the write/read/frame-delivery path can be exercised without
// a real browser process.
func loopback(t *testing.T) (*pipe.Transport, chan *wire.Message, chan error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	frames := make(chan *wire.Message, 16)
	closes := make(chan error, 1)
	tr := pipe.New(r, w, func(m *wire.Message) {
		frames <- m
	}, func(err error) {
		closes <- err
	}, nil)
	tr.Start()
	return tr, frames, closes
}

func TestWriteThenReadLoopback(t *testing.T) {
	tr, frames, _ := loopback(t)
	defer tr.Close()

	msg := &wire.Message{ID: 1, Method: "Browser.getVersion", Params: []byte(`{}`)}
	require.NoError(t, tr.Write(context.Background(), msg))

	select {
	case got := <-frames:
		require.Equal(t, int64(1), got.ID)
		require.Equal(t, "Browser.getVersion", got.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for looped-back frame")
	}
}

func TestWriteSerializesFramesWithoutInterleaving(t *testing.T) {
	tr, frames, _ := loopback(t)
	defer tr.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			tr.Write(context.Background(), &wire.Message{ID: id, Method: "Target.getTargets"})
		}(int64(i + 1))
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		select {
		case m := <-frames:
			require.False(t, seen[m.ID], "duplicate or corrupted frame id %d", m.ID)
			seen[m.ID] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d frames", i, n)
		}
	}
}

func TestCloseIsIdempotentAndNotifiesOnce(t *testing.T) {
	tr, _, closes := loopback(t)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case <-closes:
	case <-time.After(time.Second):
		t.Fatal("onClose never fired")
	}
	select {
	case <-closes:
		t.Fatal("onClose fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	tr, _, _ := loopback(t)
	require.NoError(t, tr.Close())

	err := tr.Write(context.Background(), &wire.Message{ID: 1, Method: "Browser.getVersion"})
	require.ErrorIs(t, err, pipe.ErrClosed)
}

func TestWriteRespectsContextCancellation(t *testing.T) {
	tr, _, _ := loopback(t)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The writer goroutine is healthy and would normally accept this
	// message instantly; a cancelled context must still be allowed to win
	// the race against a healthy send.
	for i := 0; i < 100; i++ {
		err := tr.Write(ctx, &wire.Message{ID: int64(i + 1), Method: "Browser.getVersion"})
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			return
		}
	}
}

func TestReadLoopTerminatesOnEOF(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	closes := make(chan error, 1)
	tr := pipe.New(r, w, func(m *wire.Message) {}, func(err error) {
		closes <- err
	}, nil)
	tr.Start()

	// Simulate the browser's write end going away.
	require.NoError(t, w.Close())

	select {
	case <-closes:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never closed after EOF")
	}
	tr.Wait()
}
