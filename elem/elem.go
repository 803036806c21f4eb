// Package elem implements the Elem from spec §4.6: a remote DOM node
// handle scoped to a Tab's session, exposing position, text/attribute
// reads, synthetic clicks and typing, and tree traversal.
//
// Elem holds a non-owning reference to its Tab (TabHandle below) rather
// than importing package tab directly, so that package tab — which
// constructs Elems from DOM.querySelector(All) results — can depend on
// this package without a cycle; *tab.Tab satisfies TabHandle structurally.
package elem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/cdppipe/cdppipe/cdp/dom"
	"github.com/cdppipe/cdppipe/cdp/input"
	"github.com/cdppipe/cdppipe/cdp/runtime"
	"github.com/cdppipe/cdppipe/internal/mux"
)

// TabHandle is the subset of Tab an Elem needs: issue one command on the
// owning session, report whether that session is still attached, and
// report the root-frame navigation generation so Click can detect a
// navigation that destroyed the originating frame.
type TabHandle interface {
	Call(ctx context.Context, method string, params []byte, deadline time.Time) ([]byte, error)
	IsAttached() (bool, error)
	NavGeneration() uint64
}

// Elem is a remote DOM node handle, valid only while its Tab's session is
// attached and the node still exists on the page.
type Elem struct {
	tab           TabHandle
	NodeID        int64
	BackendNodeID int64
	ObjectID      runtime.RemoteObjectID
}

// New constructs an Elem bound to nodeID on tab.
func New(tab TabHandle, nodeID int64) *Elem {
	return &Elem{tab: tab, NodeID: nodeID}
}

// checkAttached asserts the owning Tab is still attached, per spec §4.6's
// "Each Elem operation first asserts that its owning Tab is still
// attached."
func (e *Elem) checkAttached() error {
	attached, err := e.tab.IsAttached()
	if !attached {
		if err != nil {
			return err
		}
		return &mux.DetachedError{}
	}
	return nil
}

func (e *Elem) call(ctx context.Context, method string, params interface{}, deadline time.Time) (json.RawMessage, error) {
	if err := e.checkAttached(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("elem: marshaling params for %s: %w", method, err)
	}
	return e.tab.Call(ctx, method, b, deadline)
}

// boxModel issues DOM.getBoxModel for this node.
func (e *Elem) boxModel(ctx context.Context, deadline time.Time) (*dom.BoxModel, error) {
	raw, err := e.call(ctx, dom.MethodGetBoxModel, dom.GetBoxModelParams{NodeID: e.NodeID}, deadline)
	if err != nil {
		return nil, err
	}
	var result dom.GetBoxModelResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("elem: decoding DOM.getBoxModel result: %w", err)
	}
	return &result.Model, nil
}

// Click resolves the node's content-box center and dispatches a synthetic
// left-button mousePressed/mouseReleased pair, per spec §4.6. If the click
// triggers a navigation that destroys the originating frame, it returns the
// root Tab (which may now point at a new document); otherwise it returns
// nil.
func (e *Elem) Click(ctx context.Context, deadline time.Time) (TabHandle, error) {
	navGenBefore := e.tab.NavGeneration()

	model, err := e.boxModel(ctx, deadline)
	if err != nil {
		return nil, err
	}
	if len(model.Content) < 8 {
		return nil, fmt.Errorf("elem: DOM.getBoxModel returned a degenerate content quad")
	}
	var sumX, sumY float64
	for i := 0; i < 4; i++ {
		sumX += model.Content[i*2]
		sumY += model.Content[i*2+1]
	}
	x, y := sumX/4, sumY/4

	for _, evtType := range []string{input.MouseEventPressed, input.MouseEventReleased} {
		_, err := e.call(ctx, input.MethodDispatchMouseEvent, input.DispatchMouseEventParams{
			Type:       evtType,
			X:          x,
			Y:          y,
			Button:     "left",
			ClickCount: 1,
		}, deadline)
		if err != nil {
			return nil, err
		}
	}

	if e.tab.NavGeneration() != navGenBefore {
		return e.tab, nil
	}
	return nil, nil
}

// Type dispatches a keyDown/keyUp (and, for printable characters, a char
// event) per code point, preserving input order, per spec §4.6.
func (e *Elem) Type(ctx context.Context, text string, deadline time.Time) error {
	for _, r := range text {
		s := string(r)
		if _, err := e.call(ctx, input.MethodDispatchKeyEvent, input.DispatchKeyEventParams{
			Type: input.KeyEventDown,
			Text: s,
			Key:  s,
		}, deadline); err != nil {
			return err
		}
		if isPrintable(r) {
			if _, err := e.call(ctx, input.MethodDispatchKeyEvent, input.DispatchKeyEventParams{
				Type:           input.KeyEventChar,
				Text:           s,
				UnmodifiedText: s,
			}, deadline); err != nil {
				return err
			}
		}
		if _, err := e.call(ctx, input.MethodDispatchKeyEvent, input.DispatchKeyEventParams{
			Type: input.KeyEventUp,
			Text: s,
			Key:  s,
		}, deadline); err != nil {
			return err
		}
	}
	return nil
}

func isPrintable(r rune) bool {
	return r >= 0x20 && r != 0x7f && !utf16.IsSurrogate(r)
}

// Text evaluates the node's innerText via a JS function bound to its
// object id, resolving an objectId first if one isn't cached yet.
func (e *Elem) Text(ctx context.Context, deadline time.Time) (string, error) {
	objectID, err := e.resolveObjectID(ctx, deadline)
	if err != nil {
		return "", err
	}
	raw, err := e.call(ctx, runtime.MethodCallFunctionOn, runtime.CallFunctionOnParams{
		FunctionDeclaration: "function() { return this.innerText; }",
		ObjectID:            objectID,
		ReturnByValue:       true,
	}, deadline)
	if err != nil {
		return "", err
	}
	var result runtime.CallFunctionOnResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("elem: decoding Runtime.callFunctionOn result: %w", err)
	}
	if result.ExceptionDetails != nil {
		return "", &mux.ProtocolError{Message: result.ExceptionDetails.Text}
	}
	s, _ := result.Result.Value.(string)
	return s, nil
}

func (e *Elem) resolveObjectID(ctx context.Context, deadline time.Time) (runtime.RemoteObjectID, error) {
	if e.ObjectID != "" {
		return e.ObjectID, nil
	}
	raw, err := e.call(ctx, dom.MethodResolveNode, dom.ResolveNodeParams{NodeID: e.NodeID}, deadline)
	if err != nil {
		return "", err
	}
	var result dom.ResolveNodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("elem: decoding DOM.resolveNode result: %w", err)
	}
	e.ObjectID = result.Object.ObjectID
	return e.ObjectID, nil
}

// GetAttr returns the named attribute's value, or ("", false) when absent,
// per spec §4.6.
func (e *Elem) GetAttr(ctx context.Context, name string, deadline time.Time) (string, bool, error) {
	raw, err := e.call(ctx, dom.MethodGetAttributes, dom.GetAttributesParams{NodeID: e.NodeID}, deadline)
	if err != nil {
		return "", false, err
	}
	var result dom.GetAttributesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", false, fmt.Errorf("elem: decoding DOM.getAttributes result: %w", err)
	}
	for i := 0; i+1 < len(result.Attributes); i += 2 {
		if result.Attributes[i] == name {
			return result.Attributes[i+1], true, nil
		}
	}
	return "", false, nil
}

// ScrollIntoView issues DOM.scrollIntoViewIfNeeded, per spec §4.6.
func (e *Elem) ScrollIntoView(ctx context.Context, deadline time.Time) error {
	_, err := e.call(ctx, dom.MethodScrollIntoViewIfNeeded, dom.ScrollIntoViewIfNeededParams{NodeID: e.NodeID}, deadline)
	return err
}

// Parent returns the node's parent element, or nil if it has none (it is
// the document element or has been detached from the tree). CDP's node
// tree does not carry parent linkage directly, so this evaluates
// `.parentElement` on the remote object and resolves the result back to a
// nodeId via DOM.requestNode.
func (e *Elem) Parent(ctx context.Context, deadline time.Time) (*Elem, error) {
	objectID, err := e.resolveObjectID(ctx, deadline)
	if err != nil {
		return nil, err
	}
	raw, err := e.call(ctx, runtime.MethodCallFunctionOn, runtime.CallFunctionOnParams{
		FunctionDeclaration: "function() { return this.parentElement; }",
		ObjectID:            objectID,
	}, deadline)
	if err != nil {
		return nil, err
	}
	var fnResult runtime.CallFunctionOnResult
	if err := json.Unmarshal(raw, &fnResult); err != nil {
		return nil, fmt.Errorf("elem: decoding Runtime.callFunctionOn result: %w", err)
	}
	if fnResult.ExceptionDetails != nil {
		return nil, &mux.ProtocolError{Message: fnResult.ExceptionDetails.Text}
	}
	if fnResult.Result.ObjectID == "" {
		return nil, nil
	}
	raw, err = e.call(ctx, dom.MethodRequestNode, dom.RequestNodeParams{ObjectID: fnResult.Result.ObjectID}, deadline)
	if err != nil {
		return nil, err
	}
	var nodeResult dom.RequestNodeResult
	if err := json.Unmarshal(raw, &nodeResult); err != nil {
		return nil, fmt.Errorf("elem: decoding DOM.requestNode result: %w", err)
	}
	parent := New(e.tab, nodeResult.NodeID)
	parent.ObjectID = fnResult.Result.ObjectID
	return parent, nil
}

// Children returns the node's immediate children via DOM.describeNode.
func (e *Elem) Children(ctx context.Context, deadline time.Time) ([]*Elem, error) {
	node, err := e.describe(ctx, deadline)
	if err != nil {
		return nil, err
	}
	children := make([]*Elem, len(node.Children))
	for i, c := range node.Children {
		children[i] = New(e.tab, c.NodeID)
	}
	return children, nil
}

func (e *Elem) describe(ctx context.Context, deadline time.Time) (*dom.Node, error) {
	raw, err := e.call(ctx, dom.MethodDescribeNode, dom.DescribeNodeParams{NodeID: e.NodeID, Depth: 1}, deadline)
	if err != nil {
		return nil, err
	}
	var result dom.DescribeNodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("elem: decoding DOM.describeNode result: %w", err)
	}
	return &result.Node, nil
}
