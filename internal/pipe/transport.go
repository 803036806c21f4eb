// Package pipe owns a Chromium child's CDP pipe pair (fds 3 and 4 from the
// child's perspective) and turns it into a framed, full-duplex message
// stream: one reader goroutine, one writer goroutine, single-writer
// discipline on the way out.
//
// This is grounded on the teacher's receiveFromPipe/sendToPipe pair
// (pkg/devtools/transport.go) and the pipe setup in pkg/devtools/browser.go,
// generalized from a single global session into a reusable, explicitly
// owned type so a Browser can hold one Transport and a Multiplexer can sit
// on top of it without a context.Context singleton.
package pipe

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cdppipe/cdppipe/internal/wire"
)

// ErrClosed is returned by Write once the transport has been closed, either
// explicitly or because the read side hit EOF. The onClose callback receives
// the closure's cause instead (see New).
var ErrClosed = errors.New("pipe: transport closed")

type writeRequest struct {
	msg  *wire.Message
	done chan error
}

// Transport owns a pair of already-open pipe file descriptors: read (browser
// -> driver) and write (driver -> browser). It assumes exclusive ownership
// of both and closes them on shutdown.
type Transport struct {
	read  *os.File
	write *os.File
	log   logrus.FieldLogger

	onFrame func(*wire.Message)
	onClose func(error)

	writeCh   chan writeRequest
	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Transport over the given pipe ends. onFrame is invoked
// once per parsed inbound frame, from the reader goroutine — it must not
// block, since the spec requires the reader never to stall on handler work;
// callers (the Multiplexer) are expected to do their own dispatch handoff.
// onClose is invoked exactly once, with the error that caused the closure
// (nil for an explicit, caller-requested Close).
func New(read, write *os.File, onFrame func(*wire.Message), onClose func(error), log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{
		read:    read,
		write:   write,
		log:     log,
		onFrame: onFrame,
		onClose: onClose,
		writeCh: make(chan writeRequest),
		closed:  make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines. It must be called
// exactly once.
func (t *Transport) Start() {
	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
}

// readLoop is the transport's single long-running reader task: it splits
// the inbound byte stream on wire.Delim, parses each frame as JSON, and
// hands the parsed message to onFrame. A parse failure is recoverable and
// logged — the frame is discarded and the loop continues; an EOF or other
// read error terminates the loop and triggers transport closure.
func (t *Transport) readLoop() {
	defer t.wg.Done()

	scanner := bufio.NewScanner(t.read)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	scanner.Split(wire.SplitFrames)

	var closeErr error
	for scanner.Scan() {
		b := scanner.Bytes()
		m := &wire.Message{}
		if err := m.UnmarshalJSON(b); err != nil {
			t.log.WithError(err).Warn("pipe: discarding malformed frame")
			continue
		}
		t.onFrame(m)
	}
	if err := scanner.Err(); err != nil {
		closeErr = err
	} else {
		closeErr = io.EOF
	}
	t.closeInternal(closeErr)
}

// writeLoop is the transport's single writer task. Every enqueued message is
// serialized through this one goroutine so frames never interleave on the
// wire; each write is atomic at the frame level.
func (t *Transport) writeLoop() {
	defer t.wg.Done()

	for {
		var req writeRequest
		select {
		case req = <-t.writeCh:
		case <-t.closed:
			return
		}

		b, err := req.msg.MarshalJSON()
		if err != nil {
			req.done <- err
			continue
		}
		b = append(b, wire.Delim)
		// A filled OS pipe buffer simply blocks this goroutine until
		// capacity frees up — callers waiting on Write are not otherwise
		// informed of back-pressure; only their own deadline governs.
		_, err = t.write.Write(b)
		req.done <- err
	}
}

// Write serializes and sends m, blocking until the writer goroutine has
// written the frame to the pipe, the transport closes, or ctx is done,
// whichever comes first. The
// returned error reflects only the write itself (marshal failure or a
// failed/short write to the pipe); it does not wait for any CDP response —
// that is the Multiplexer's job.
func (t *Transport) Write(ctx context.Context, m *wire.Message) error {
	req := writeRequest{msg: m, done: make(chan error, 1)}
	select {
	case t.writeCh <- req:
	case <-t.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-t.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes both pipe ends and stops the reader/writer goroutines. It is
// idempotent: a second call is a no-op. onClose still fires exactly once,
// from whichever of Close or a read-loop failure observes the closure
// first.
func (t *Transport) Close() error {
	t.closeInternal(nil)
	return nil
}

func (t *Transport) closeInternal(cause error) {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.read.Close()
		t.write.Close()
		if t.onClose != nil {
			t.onClose(cause)
		}
	})
}

// Wait blocks until both the reader and writer goroutines have exited,
// which happens once the transport is closed.
func (t *Transport) Wait() {
	t.wg.Wait()
}

// Done returns a channel closed once the transport has shut down, for
// callers (the Browser's supervision linkage) that need to observe closure
// without blocking on Wait's goroutine join.
func (t *Transport) Done() <-chan struct{} {
	return t.closed
}
