// Package dom holds the trimmed subset of the CDP DOM domain this driver
// exercises, grounded field-for-field on the teacher's pkg/devtools/dom.
package dom

import "github.com/cdppipe/cdppipe/cdp/runtime"

// Node mirrors CDP DOM.Node, trimmed to the fields Tab/Elem tree
// navigation reads.
type Node struct {
	NodeID         int64   `json:"nodeId"`
	BackendNodeID  int64   `json:"backendNodeId"`
	NodeType       int64   `json:"nodeType"`
	NodeName       string  `json:"nodeName"`
	NodeValue      string  `json:"nodeValue"`
	ChildNodeCount int64   `json:"childNodeCount,omitempty"`
	Children       []Node  `json:"children,omitempty"`
	Attributes     []string `json:"attributes,omitempty"`
	FrameID        string  `json:"frameId,omitempty"`
}

// Quad is a four-point polygon in CSS pixel coordinates, as used by
// BoxModel's Content/Padding/Border/Margin fields.
type Quad []float64

// BoxModel mirrors CDP DOM.BoxModel: Elem.Click computes the geometric
// center of Content to target its synthetic mouse events.
type BoxModel struct {
	Content Quad `json:"content"`
	Padding Quad `json:"padding"`
	Border  Quad `json:"border"`
	Margin  Quad `json:"margin"`
	Width   int64 `json:"width"`
	Height  int64 `json:"height"`
}

// GetDocumentParams is the parameter shape for DOM.getDocument.
type GetDocumentParams struct {
	Depth  int64 `json:"depth,omitempty"`
	Pierce bool  `json:"pierce,omitempty"`
}

// GetDocumentResult is the result shape for DOM.getDocument.
type GetDocumentResult struct {
	Root Node `json:"root"`
}

// QuerySelectorParams is the parameter shape for DOM.querySelector.
type QuerySelectorParams struct {
	NodeID   int64  `json:"nodeId"`
	Selector string `json:"selector"`
}

// QuerySelectorResult is the result shape for DOM.querySelector. NodeID is
// 0 when no element matched.
type QuerySelectorResult struct {
	NodeID int64 `json:"nodeId"`
}

// QuerySelectorAllParams is the parameter shape for DOM.querySelectorAll.
type QuerySelectorAllParams struct {
	NodeID   int64  `json:"nodeId"`
	Selector string `json:"selector"`
}

// QuerySelectorAllResult is the result shape for DOM.querySelectorAll.
type QuerySelectorAllResult struct {
	NodeIDs []int64 `json:"nodeIds"`
}

// GetBoxModelParams is the parameter shape for DOM.getBoxModel. Exactly one
// of NodeID, BackendNodeID, or ObjectID should be set.
type GetBoxModelParams struct {
	NodeID        int64                  `json:"nodeId,omitempty"`
	BackendNodeID int64                  `json:"backendNodeId,omitempty"`
	ObjectID      runtime.RemoteObjectID `json:"objectId,omitempty"`
}

// GetBoxModelResult is the result shape for DOM.getBoxModel.
type GetBoxModelResult struct {
	Model BoxModel `json:"model"`
}

// GetAttributesParams is the parameter shape for DOM.getAttributes.
type GetAttributesParams struct {
	NodeID int64 `json:"nodeId"`
}

// GetAttributesResult is the result shape for DOM.getAttributes: an
// interleaved [name, value, name, value, ...] array, per CDP.
type GetAttributesResult struct {
	Attributes []string `json:"attributes"`
}

// DescribeNodeParams is the parameter shape for DOM.describeNode.
type DescribeNodeParams struct {
	NodeID        int64                  `json:"nodeId,omitempty"`
	BackendNodeID int64                  `json:"backendNodeId,omitempty"`
	ObjectID      runtime.RemoteObjectID `json:"objectId,omitempty"`
	Depth         int64                  `json:"depth,omitempty"`
}

// DescribeNodeResult is the result shape for DOM.describeNode.
type DescribeNodeResult struct {
	Node Node `json:"node"`
}

// ScrollIntoViewIfNeededParams is the parameter shape for
// DOM.scrollIntoViewIfNeeded.
type ScrollIntoViewIfNeededParams struct {
	NodeID        int64                  `json:"nodeId,omitempty"`
	BackendNodeID int64                  `json:"backendNodeId,omitempty"`
	ObjectID      runtime.RemoteObjectID `json:"objectId,omitempty"`
}

// ResolveNodeParams is the parameter shape for DOM.resolveNode, used to
// turn a nodeId into an objectId for Runtime.callFunctionOn-based reads
// such as Elem.Text.
type ResolveNodeParams struct {
	NodeID int64 `json:"nodeId"`
}

// ResolveNodeResult is the result shape for DOM.resolveNode.
type ResolveNodeResult struct {
	Object runtime.RemoteObject `json:"object"`
}

// RequestNodeParams is the parameter shape for DOM.requestNode, used to
// turn a remote objectId (e.g. from a Runtime.callFunctionOn traversal
// such as `.parentElement`) back into a nodeId.
type RequestNodeParams struct {
	ObjectID runtime.RemoteObjectID `json:"objectId"`
}

// RequestNodeResult is the result shape for DOM.requestNode.
type RequestNodeResult struct {
	NodeID int64 `json:"nodeId"`
}

const (
	MethodRequestNode             = "DOM.requestNode"
	MethodGetDocument             = "DOM.getDocument"
	MethodQuerySelector           = "DOM.querySelector"
	MethodQuerySelectorAll        = "DOM.querySelectorAll"
	MethodGetBoxModel             = "DOM.getBoxModel"
	MethodGetAttributes           = "DOM.getAttributes"
	MethodDescribeNode            = "DOM.describeNode"
	MethodScrollIntoViewIfNeeded  = "DOM.scrollIntoViewIfNeeded"
	MethodResolveNode             = "DOM.resolveNode"
)
