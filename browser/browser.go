// Package browser implements the Browser from spec §4.4: it owns the
// Supervisor, Transport, and Multiplexer, discovers and attaches to page
// targets via flat auto-attach, and exposes target-creation events and
// clean shutdown.
//
// Grounded on the teacher's pkg/devtools/browser.go (the start/Cancel/Wait
// trio this package generalizes from a context.Context singleton into an
// explicitly owned type) and pkg/devtools/session.go (the Session struct
// this Browser replaces with explicit Supervisor/Transport/Multiplexer
// fields, per spec §5's "Resource ownership" paragraph).
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/cdppipe/cdppipe/cdp/browserdomain"
	"github.com/cdppipe/cdppipe/cdp/target"
	"github.com/cdppipe/cdppipe/internal/mux"
	"github.com/cdppipe/cdppipe/internal/pipe"
	"github.com/cdppipe/cdppipe/internal/supervisor"
	"github.com/cdppipe/cdppipe/internal/wire"
	"github.com/cdppipe/cdppipe/tab"
)

// anyTabKey is the sentinel pendingByTgt key used by waitForAnyTab: it can
// never collide with a real CDP target id, which Chromium always generates
// as a 32-character lowercase hex string.
const anyTabKey = "\x00any"

// Config is the Browser's launch configuration, re-exported from package
// supervisor so callers only need to import one package for the common
// case.
type Config = supervisor.Config

// Browser owns the Supervisor, Transport and Multiplexer exclusively;
// Tabs are shared with whatever user code holds them (back-reference
// only), per spec §5.
type Browser struct {
	proc      *supervisor.Process
	transport *pipe.Transport
	mux       *mux.Multiplexer
	log       logrus.FieldLogger
	cfg       supervisor.Config

	tabFactory func(caller tab.Caller, session *mux.Session, targetID string, log logrus.FieldLogger) *tab.Tab

	mu            sync.Mutex
	tabsBySession map[string]*tab.Tab
	targetsByID   map[string]target.Info
	mostRecent    *tab.Tab
	pendingByTgt  map[string]chan *tab.Tab

	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Browser during Start, in the teacher's SessionOption
// idiom (pkg/devtools/session.go's functional-option constructors).
type Option = func(*Browser)

// WithTabFactory overrides how Browser constructs the Tab for each newly
// attached page target — the Go-native analogue of spec §9's Tab-subclass
// customization hook. Defaults to tab.New.
func WithTabFactory(factory func(caller tab.Caller, session *mux.Session, targetID string, log logrus.FieldLogger) *tab.Tab) Option {
	return func(b *Browser) {
		b.tabFactory = factory
	}
}

func defaultTabFactory(caller tab.Caller, session *mux.Session, targetID string, log logrus.FieldLogger) *tab.Tab {
	return tab.New(caller, session, targetID, log)
}

// Start allocates the user data dir, launches Chromium via the Supervisor,
// constructs the Transport and Multiplexer, enables target discovery and
// flat auto-attach, and waits up to cfg.StartupTimeout for the first page
// target to attach, per spec §4.4.
func Start(ctx context.Context, cfg Config, fs afero.Fs, log logrus.FieldLogger, opts ...Option) (b *Browser, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	proc, err := supervisor.Launch(ctx, cfg, fs, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			proc.Kill()
			proc.Cleanup()
		}
	}()

	b = &Browser{
		proc:          proc,
		log:           log,
		cfg:           cfg,
		tabFactory:    defaultTabFactory,
		tabsBySession: make(map[string]*tab.Tab),
		targetsByID:   make(map[string]target.Info),
		pendingByTgt:  make(map[string]chan *tab.Tab),
	}
	for _, opt := range opts {
		opt(b)
	}

	var mx *mux.Multiplexer
	transport := pipe.New(proc.ParentRead, proc.ParentWrite,
		func(m *wire.Message) { mx.HandleFrame(m) },
		func(cause error) { mx.Close(cause) },
		log)
	mx = mux.New(transport, log)
	b.transport = transport
	b.mux = mx
	transport.Start()

	go b.superviseLinkage()

	browserSession := mx.Session("")
	browserSession.On(target.EventTargetCreated, b.onTargetCreated)
	browserSession.On(target.EventAttachedToTarget, b.onAttachedToTarget)
	browserSession.On(target.EventDetachedFromTarget, b.onDetachedFromTarget)
	browserSession.On(target.EventTargetDestroyed, b.onTargetDestroyed)

	deadline := time.Now().Add(cfg.StartupTimeout)

	if _, err = b.call(ctx, "", target.MethodSetDiscoverTargets, target.SetDiscoverTargetsParams{Discover: true}, deadline); err != nil {
		return nil, fmt.Errorf("browser: Target.setDiscoverTargets: %w", err)
	}
	if _, err = b.call(ctx, "", target.MethodSetAutoAttach, target.SetAutoAttachParams{
		AutoAttach:             true,
		WaitForDebuggerOnStart: false,
		Flatten:                true,
	}, deadline); err != nil {
		return nil, fmt.Errorf("browser: Target.setAutoAttach: %w", err)
	}

	firstTab, err := b.waitForAnyTab(deadline)
	if err != nil {
		return nil, err
	}
	b.log.WithField("target_id", firstTab.TargetID).Info("browser: first tab attached")
	return b, nil
}

// superviseLinkage is the supervision task from spec §4.3: when the child
// exits, the Transport is closed (unblocking every outstanding command
// with a connection-lost error); when the Transport closes first — an
// explicit Close/Kill, or the browser crashing the pipe without exiting —
// a child that is still running is handed to Process.Terminate at once:
// SIGTERM is sent immediately, with no wait beforehand, and SIGKILL follows
// after TermGrace.
func (b *Browser) superviseLinkage() {
	select {
	case <-b.proc.Exited():
		b.transport.Close()
	case <-b.transport.Done():
		select {
		case <-b.proc.Exited():
		default:
			b.proc.Terminate()
		}
	}
}

func (b *Browser) call(ctx context.Context, sessionID, method string, params interface{}, deadline time.Time) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("browser: marshaling params for %s: %w", method, err)
	}
	return b.mux.Call(ctx, sessionID, method, body, deadline)
}

func (b *Browser) waitForAnyTab(deadline time.Time) (*tab.Tab, error) {
	b.mu.Lock()
	if b.mostRecent != nil {
		t := b.mostRecent
		b.mu.Unlock()
		return t, nil
	}
	ch := make(chan *tab.Tab, 1)
	b.pendingByTgt[anyTabKey] = ch
	b.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case t := <-ch:
		return t, nil
	case <-timer.C:
		return nil, mux.ErrTimeout
	}
}

// onTargetCreated records every target Chromium reports, including ones
// this driver never attaches to (e.g. workers, extensions, other browser
// contexts), so targetsByID stays authoritative independent of auto-attach.
func (b *Browser) onTargetCreated(m *wire.Message) {
	var evt target.TargetCreatedEvent
	if err := json.Unmarshal(m.Params, &evt); err != nil {
		b.log.WithError(err).Warn("browser: decoding Target.targetCreated event")
		return
	}
	b.mu.Lock()
	b.targetsByID[evt.TargetInfo.TargetID] = evt.TargetInfo
	b.mu.Unlock()
}

func (b *Browser) onAttachedToTarget(m *wire.Message) {
	var evt target.AttachedToTargetEvent
	if err := json.Unmarshal(m.Params, &evt); err != nil {
		b.log.WithError(err).Warn("browser: decoding Target.attachedToTarget event")
		return
	}
	if evt.TargetInfo.Type != "page" {
		return
	}
	session := b.mux.Session(evt.SessionID)
	t := b.tabFactory(b, session, evt.TargetInfo.TargetID, b.log)

	b.mu.Lock()
	b.tabsBySession[evt.SessionID] = t
	b.targetsByID[evt.TargetInfo.TargetID] = evt.TargetInfo
	b.mostRecent = t
	if ch, ok := b.pendingByTgt[evt.TargetInfo.TargetID]; ok {
		delete(b.pendingByTgt, evt.TargetInfo.TargetID)
		ch <- t
	}
	if ch, ok := b.pendingByTgt[anyTabKey]; ok {
		delete(b.pendingByTgt, anyTabKey)
		ch <- t
	}
	b.mu.Unlock()
}

func (b *Browser) onDetachedFromTarget(m *wire.Message) {
	var evt target.DetachedFromTargetEvent
	if err := json.Unmarshal(m.Params, &evt); err != nil {
		b.log.WithError(err).Warn("browser: decoding Target.detachedFromTarget event")
		return
	}
	b.mux.RemoveSession(evt.SessionID, &mux.DetachedError{SessionID: evt.SessionID})
	b.mu.Lock()
	delete(b.tabsBySession, evt.SessionID)
	b.mu.Unlock()
}

func (b *Browser) onTargetDestroyed(m *wire.Message) {
	var evt target.TargetDestroyedEvent
	if err := json.Unmarshal(m.Params, &evt); err != nil {
		b.log.WithError(err).Warn("browser: decoding Target.targetDestroyed event")
		return
	}
	b.mu.Lock()
	delete(b.targetsByID, evt.TargetID)
	for sessionID, t := range b.tabsBySession {
		if t.TargetID == evt.TargetID {
			delete(b.tabsBySession, sessionID)
			b.mu.Unlock()
			b.mux.RemoveSession(sessionID, &mux.DetachedError{SessionID: sessionID})
			return
		}
	}
	b.mu.Unlock()
}

// Call satisfies tab.Caller: every Tab issues its commands through the
// Browser's Multiplexer, scoped by its own session id.
func (b *Browser) Call(ctx context.Context, sessionID, method string, params []byte, deadline time.Time) ([]byte, error) {
	return b.mux.Call(ctx, sessionID, method, params, deadline)
}

// Navigate implements spec §4.4's navigate: reuse the most-recently-created
// tab if one exists, otherwise create one via Target.createTarget and wait
// for its attachment; either way, issue Page.navigate on it.
func (b *Browser) Navigate(ctx context.Context, url string, deadline time.Time) (*tab.Tab, error) {
	b.mu.Lock()
	t := b.mostRecent
	b.mu.Unlock()

	if t == nil {
		raw, err := b.call(ctx, "", target.MethodCreateTarget, target.CreateTargetParams{URL: url}, deadline)
		if err != nil {
			return nil, fmt.Errorf("browser: Target.createTarget: %w", err)
		}
		var result target.CreateTargetResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("browser: decoding Target.createTarget result: %w", err)
		}

		ch := make(chan *tab.Tab, 1)
		b.mu.Lock()
		b.pendingByTgt[result.TargetID] = ch
		b.mu.Unlock()

		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case t = <-ch:
		case <-timer.C:
			return nil, mux.ErrTimeout
		}
	}

	if err := t.Navigate(ctx, url, deadline); err != nil {
		return nil, err
	}
	return t, nil
}

// On registers a persistent browser-session handler.
func (b *Browser) On(method string, fn func(*wire.Message)) mux.HandlerID {
	return b.mux.Session("").On(method, fn)
}

// Off removes a handler registered with On.
func (b *Browser) Off(method string, id mux.HandlerID) {
	b.mux.Session("").Off(method, id)
}

// Close implements the graceful shutdown from spec §4.4: sends
// Browser.close, then closes the Transport, then waits for the Supervisor
// to reap, then cleans the user data dir per policy. Idempotent.
func (b *Browser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		deadline := time.Now().Add(5 * time.Second)
		_, _ = b.call(ctx, "", browserdomain.MethodClose, browserdomain.CloseParams{}, deadline)
		b.transport.Close()

		var g errgroup.Group
		g.Go(func() error {
			select {
			case <-b.proc.Exited():
				return b.proc.ExitErr()
			case <-time.After(b.cfg.TermGrace + b.cfg.KillGrace + time.Second):
				b.proc.Kill()
				return fmt.Errorf("browser: supervisor did not reap the child in time")
			}
		})
		waitErr := g.Wait()

		cleanupErr := b.proc.Cleanup()
		switch {
		case waitErr != nil:
			b.closeErr = waitErr
		case cleanupErr != nil:
			b.closeErr = cleanupErr
		}
	})
	return b.closeErr
}

// Kill implements the supplemented forceful shutdown: SIGKILL the child
// immediately (skipping Browser.close and the SIGTERM grace period), close
// the Transport, and clean the user data dir per policy. Idempotent,
// shares Close's sync.Once so calling both resolves to whichever runs
// first.
func (b *Browser) Kill() error {
	var err error
	b.closeOnce.Do(func() {
		b.proc.Kill()
		b.transport.Close()
		err = b.proc.Cleanup()
		b.closeErr = err
	})
	if err == nil {
		err = b.closeErr
	}
	return err
}
