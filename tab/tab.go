// Package tab implements the Tab from spec §4.5: a CDP session bound to one
// attached page target, exposing navigation, JS evaluation, DOM queries,
// typed event waits, and user handlers. Grounded on the teacher's
// pkg/devtools/session.go (the per-attachment state it replaces) and
// generalized from a context.Context singleton to an explicit, owned type
// per spec §9's class-attribute note.
package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/cdppipe/cdppipe/cdp/dom"
	"github.com/cdppipe/cdppipe/cdp/page"
	"github.com/cdppipe/cdppipe/cdp/runtime"
	"github.com/cdppipe/cdppipe/elem"
	"github.com/cdppipe/cdppipe/internal/mux"
	"github.com/cdppipe/cdppipe/internal/wire"
)

// Caller is the subset of *mux.Multiplexer a Tab needs: a single outbound
// command path scoped by session id. Kept as an interface so Tab can be
// unit tested against a fake without a real transport.
type Caller interface {
	Call(ctx context.Context, sessionID, method string, params []byte, deadline time.Time) ([]byte, error)
}

// Tab binds one CDP session to one attached page target. Its state machine
// is attached -> detached (terminal); detachment is tracked by the
// Session itself (via the Multiplexer), so Tab has no separate flag to
// fall out of sync with it.
type Tab struct {
	TargetID string

	caller  Caller
	session *mux.Session
	log     logrus.FieldLogger

	elemFactory func(h elem.TabHandle, nodeID int64) *elem.Elem

	mu           sync.Mutex
	url          string
	rootFrameID  string
	docNodeID    int64
	docNodeIDSet bool
	docGroup     singleflight.Group
	navGen       uint64
}

// Option customizes a Tab at construction, in the teacher's SessionOption
// idiom (pkg/devtools/session.go's functional-option constructors).
type Option = func(*Tab)

// WithElemFactory overrides how Tab constructs the Elem for each DOM node
// returned by FindElem/FindElems — the Go-native analogue of spec §9's
// Elem-subclass customization hook. Defaults to elem.New. Elems minted
// internally by package elem itself (Parent, Children) are unaffected,
// since customizing those would require threading the factory across the
// tab/elem package boundary this Tab is deliberately kept isolated from.
func WithElemFactory(factory func(h elem.TabHandle, nodeID int64) *elem.Elem) Option {
	return func(t *Tab) {
		t.elemFactory = factory
	}
}

// New constructs a Tab bound to sessionID on top of caller, as done by the
// Browser when Target.attachedToTarget names a page target.
func New(caller Caller, session *mux.Session, targetID string, log logrus.FieldLogger, opts ...Option) *Tab {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Tab{
		TargetID:    targetID,
		caller:      caller,
		session:     session,
		log:         log.WithField("target_id", targetID),
		elemFactory: elem.New,
	}
	for _, opt := range opts {
		opt(t)
	}
	session.On(page.EventFrameNavigated, t.onFrameNavigated)
	return t
}

// SessionID returns the CDP session id this tab is bound to.
func (t *Tab) SessionID() string { return t.session.ID }

// IsAttached reports whether this tab's session is still attached,
// satisfying elem.TabHandle.
func (t *Tab) IsAttached() (bool, error) {
	detached, err := t.session.IsDetached()
	return !detached, err
}

// NavGeneration returns the number of root-frame navigations this tab has
// observed so far, satisfying elem.TabHandle. elem.Click compares this
// before and after dispatching its mouse events to detect a navigation
// that destroyed the originating frame, per spec §4.6.
func (t *Tab) NavGeneration() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.navGen
}

// URL returns the tab's last known document URL.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Call issues one CDP command on this tab's session and unmarshals no
// result itself — callers decode the returned bytes into their own result
// struct. Satisfies elem.TabHandle and is the primitive every other Tab/Elem
// operation is built on, per spec §4.5's `send`.
func (t *Tab) Call(ctx context.Context, method string, params []byte, deadline time.Time) ([]byte, error) {
	return t.caller.Call(ctx, t.session.ID, method, params, deadline)
}

// Send is the spec-named alias for Call, kept for the public Tab API
// ("send(command) -> result" in spec §4.5) while internal helpers use the
// shorter Call to satisfy elem.TabHandle.
func (t *Tab) Send(ctx context.Context, method string, params interface{}, deadline time.Time) (json.RawMessage, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("tab: marshaling params for %s: %w", method, err)
	}
	return t.Call(ctx, method, b, deadline)
}

// Navigate issues Page.navigate on this tab and updates its cached URL.
func (t *Tab) Navigate(ctx context.Context, url string, deadline time.Time) error {
	_, err := t.Send(ctx, page.MethodNavigate, page.NavigateParams{URL: url}, deadline)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	return nil
}

// Eval issues Runtime.evaluate, per spec §4.5, surfacing any
// exceptionDetails as a *mux.ProtocolError rather than a success result.
func (t *Tab) Eval(ctx context.Context, expression string, returnByValue bool, deadline time.Time) (*runtime.RemoteObject, error) {
	raw, err := t.Send(ctx, runtime.MethodEvaluate, runtime.EvaluateParams{
		Expression:    expression,
		ReturnByValue: returnByValue,
		AwaitPromise:  true,
	}, deadline)
	if err != nil {
		return nil, err
	}
	var result runtime.EvaluateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tab: decoding Runtime.evaluate result: %w", err)
	}
	if result.ExceptionDetails != nil {
		return nil, &mux.ProtocolError{Message: result.ExceptionDetails.Text}
	}
	return &result.Result, nil
}

// documentNodeID returns the root document's nodeId, issuing
// DOM.getDocument at most once per attachment (cached, and shared across
// concurrent callers via singleflight) until invalidated by a frame
// navigation.
func (t *Tab) documentNodeID(ctx context.Context, deadline time.Time) (int64, error) {
	t.mu.Lock()
	if t.docNodeIDSet {
		id := t.docNodeID
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	v, err, _ := t.docGroup.Do("document", func() (interface{}, error) {
		raw, err := t.Send(ctx, dom.MethodGetDocument, dom.GetDocumentParams{Depth: 1}, deadline)
		if err != nil {
			return nil, err
		}
		var result dom.GetDocumentResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("tab: decoding DOM.getDocument result: %w", err)
		}
		t.mu.Lock()
		t.docNodeID = result.Root.NodeID
		t.docNodeIDSet = true
		t.mu.Unlock()
		return result.Root.NodeID, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// onFrameNavigated invalidates the document node id cache on every root
// frame navigation, per spec §4.5, so stale ids are never returned after a
// cross-document navigation.
func (t *Tab) onFrameNavigated(m *wire.Message) {
	var evt page.FrameNavigatedEvent
	if err := json.Unmarshal(m.Params, &evt); err != nil {
		t.log.WithError(err).Warn("tab: decoding Page.frameNavigated event")
		return
	}
	if evt.Frame.ParentID != "" {
		return // not the root frame
	}
	t.mu.Lock()
	t.rootFrameID = evt.Frame.ID
	t.url = evt.Frame.URL
	t.docNodeIDSet = false
	t.docGroup = singleflight.Group{}
	t.navGen++
	t.mu.Unlock()
}

// FindElem issues DOM.querySelector against the cached document node,
// returning nil (not an error) when nothing matches, per spec §4.5.
func (t *Tab) FindElem(ctx context.Context, selector string, deadline time.Time) (*elem.Elem, error) {
	docID, err := t.documentNodeID(ctx, deadline)
	if err != nil {
		return nil, err
	}
	raw, err := t.Send(ctx, dom.MethodQuerySelector, dom.QuerySelectorParams{NodeID: docID, Selector: selector}, deadline)
	if err != nil {
		return nil, err
	}
	var result dom.QuerySelectorResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tab: decoding DOM.querySelector result: %w", err)
	}
	if result.NodeID == 0 {
		return nil, nil
	}
	return t.elemFactory(t, result.NodeID), nil
}

// FindElems issues DOM.querySelectorAll against the cached document node.
func (t *Tab) FindElems(ctx context.Context, selector string, deadline time.Time) ([]*elem.Elem, error) {
	docID, err := t.documentNodeID(ctx, deadline)
	if err != nil {
		return nil, err
	}
	raw, err := t.Send(ctx, dom.MethodQuerySelectorAll, dom.QuerySelectorAllParams{NodeID: docID, Selector: selector}, deadline)
	if err != nil {
		return nil, err
	}
	var result dom.QuerySelectorAllResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tab: decoding DOM.querySelectorAll result: %w", err)
	}
	elems := make([]*elem.Elem, len(result.NodeIDs))
	for i, id := range result.NodeIDs {
		elems[i] = t.elemFactory(t, id)
	}
	return elems, nil
}

// pollBackoff builds the exponential backoff policy from spec §4.5:
// 50ms -> 200ms ceiling, bounded by deadline.
func pollBackoff(deadline time.Time) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.Multiplier = 1.5
	b.MaxElapsedTime = time.Until(deadline)
	return b
}

// WaitForElem polls FindElem with exponential backoff until it matches or
// the deadline passes, per spec §4.5.
func (t *Tab) WaitForElem(ctx context.Context, selector string, deadline time.Time) (*elem.Elem, error) {
	var found *elem.Elem
	op := func() error {
		e, err := t.FindElem(ctx, selector, deadline)
		if err != nil {
			return backoff.Permanent(err)
		}
		if e == nil {
			return fmt.Errorf("tab: no element matches %q yet", selector)
		}
		found = e
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(pollBackoff(deadline), ctx)); err != nil {
		var perm *backoff.PermanentError
		if ok := asPermanent(err, &perm); ok {
			return nil, perm.Err
		}
		return nil, mux.ErrTimeout
	}
	return found, nil
}

// WaitForElems polls FindElems until at least minCount elements match or
// the deadline passes.
func (t *Tab) WaitForElems(ctx context.Context, selector string, minCount int, deadline time.Time) ([]*elem.Elem, error) {
	var found []*elem.Elem
	op := func() error {
		es, err := t.FindElems(ctx, selector, deadline)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(es) < minCount {
			return fmt.Errorf("tab: only %d/%d elements match %q so far", len(es), minCount, selector)
		}
		found = es
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(pollBackoff(deadline), ctx)); err != nil {
		var perm *backoff.PermanentError
		if ok := asPermanent(err, &perm); ok {
			return nil, perm.Err
		}
		return nil, mux.ErrTimeout
	}
	return found, nil
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	p, ok := err.(*backoff.PermanentError)
	if ok {
		*target = p
	}
	return ok
}

// WaitForEvent delegates to the Multiplexer's per-session waiter, per spec
// §4.5.
func (t *Tab) WaitForEvent(method string, predicate func(*wire.Message) bool, deadline time.Time) (*wire.Message, error) {
	return t.session.WaitFor(method, predicate, deadline)
}

// On registers a persistent, session-scoped handler.
func (t *Tab) On(method string, fn func(*wire.Message)) mux.HandlerID {
	return t.session.On(method, fn)
}

// Off removes a handler registered with On.
func (t *Tab) Off(method string, id mux.HandlerID) {
	t.session.Off(method, id)
}
