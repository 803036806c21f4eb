package elem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cdppipe/cdppipe/elem"
	"github.com/cdppipe/cdppipe/internal/mux"
)

// fakeTab is a scripted elem.TabHandle: it records every issued command and
// returns canned responses keyed by method, grounded on the fakeWriter
// pattern in internal/mux/mux_test.go.
type fakeTab struct {
	mu       sync.Mutex
	attached bool
	navGen   uint64
	// navOnCmd, when set, bumps navGen once as soon as a command with this
	// method is issued, simulating a root-frame navigation mid-operation.
	navOnCmd string
	calls    []string
	params   [][]byte
	results  map[string][]byte
}

func newFakeTab() *fakeTab {
	return &fakeTab{attached: true, results: make(map[string][]byte)}
}

func (f *fakeTab) on(method string, result []byte) *fakeTab {
	f.results[method] = result
	return f
}

func (f *fakeTab) Call(ctx context.Context, method string, params []byte, deadline time.Time) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	if f.navOnCmd != "" && method == f.navOnCmd {
		f.navGen++
		f.navOnCmd = ""
	}
	return f.results[method], nil
}

func (f *fakeTab) IsAttached() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached {
		return true, nil
	}
	return false, &mux.DetachedError{}
}

func (f *fakeTab) NavGeneration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navGen
}

func TestClickComputesContentBoxCenter(t *testing.T) {
	tab := newFakeTab().
		on("DOM.getBoxModel", []byte(`{"model":{"content":[0,0,10,0,10,20,0,20]}}`))
	e := elem.New(tab, 1)

	root, err := e.Click(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Nil(t, root, "a click with no navigation should return a nil root tab")

	tab.mu.Lock()
	defer tab.mu.Unlock()
	require.Equal(t, []string{"DOM.getBoxModel", "Input.dispatchMouseEvent", "Input.dispatchMouseEvent"}, tab.calls)
	require.Contains(t, string(tab.params[1]), `"type":"mousePressed"`)
	require.Contains(t, string(tab.params[1]), `"x":5`)
	require.Contains(t, string(tab.params[1]), `"y":10`)
	require.Contains(t, string(tab.params[2]), `"type":"mouseReleased"`)
}

func TestClickReturnsRootTabWhenNavigationDestroysOriginatingFrame(t *testing.T) {
	tab := newFakeTab().on("DOM.getBoxModel", []byte(`{"model":{"content":[0,0,10,0,10,20,0,20]}}`))
	e := elem.New(tab, 1)

	// Simulate a root-frame navigation firing between the mousePressed and
	// mouseReleased dispatches, as a real navigating click would.
	tab.navOnCmd = "Input.dispatchMouseEvent"

	root, err := e.Click(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Same(t, tab, root)
}

func TestTypePreservesOrderAndEmitsCharForPrintable(t *testing.T) {
	tab := newFakeTab()
	e := elem.New(tab, 1)

	require.NoError(t, e.Type(context.Background(), "a", time.Time{}))

	tab.mu.Lock()
	defer tab.mu.Unlock()
	require.Equal(t, []string{
		"Input.dispatchKeyEvent", // keyDown
		"Input.dispatchKeyEvent", // char
		"Input.dispatchKeyEvent", // keyUp
	}, tab.calls)
	require.Contains(t, string(tab.params[0]), `"type":"keyDown"`)
	require.Contains(t, string(tab.params[1]), `"type":"char"`)
	require.Contains(t, string(tab.params[2]), `"type":"keyUp"`)
}

func TestGetAttrFindsNamedValue(t *testing.T) {
	tab := newFakeTab().on("DOM.getAttributes", []byte(`{"attributes":["class","title","id","x"]}`))
	e := elem.New(tab, 1)

	v, ok, err := e.GetAttr(context.Background(), "id", time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", v)
}

func TestGetAttrReturnsFalseWhenAbsent(t *testing.T) {
	tab := newFakeTab().on("DOM.getAttributes", []byte(`{"attributes":["class","title"]}`))
	e := elem.New(tab, 1)

	_, ok, err := e.GetAttr(context.Background(), "id", time.Time{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOperationsFailWithDetachedErrorWhenTabNotAttached(t *testing.T) {
	tab := newFakeTab()
	tab.attached = false
	e := elem.New(tab, 1)

	root, err := e.Click(context.Background(), time.Time{})
	var detachedErr *mux.DetachedError
	require.ErrorAs(t, err, &detachedErr)
	require.Nil(t, root)

	tab.mu.Lock()
	defer tab.mu.Unlock()
	require.Empty(t, tab.calls, "no CDP command should be issued once the tab has detached")
}

func TestTextResolvesObjectIDOnceThenReuses(t *testing.T) {
	tab := newFakeTab().
		on("DOM.resolveNode", []byte(`{"object":{"type":"object","objectId":"obj-1"}}`)).
		on("Runtime.callFunctionOn", []byte(`{"result":{"type":"string","value":"hello"}}`))
	e := elem.New(tab, 1)

	s, err := e.Text(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	_, err = e.Text(context.Background(), time.Time{})
	require.NoError(t, err)

	tab.mu.Lock()
	defer tab.mu.Unlock()
	require.Equal(t, 1, countCalls(tab.calls, "DOM.resolveNode"), "objectId should be cached on the Elem after the first resolution")
}

func countCalls(calls []string, method string) int {
	n := 0
	for _, c := range calls {
		if c == method {
			n++
		}
	}
	return n
}
