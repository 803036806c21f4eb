// Package target holds the trimmed subset of the CDP Target domain this
// driver exercises: target discovery, flat auto-attach, and target-lifecycle
// events, grounded field-for-field on the teacher's pkg/devtools/target
// (types.go's Info struct) and pkg/cdp's targetInfo/targetEvent pair, which
// this package turns into typed, documented command and event shapes instead
// of the teacher's ad hoc partial-copy structs.
package target

// Info mirrors the subset of CDP's Target.TargetInfo this driver reads.
type Info struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
	OpenerID string `json:"openerId,omitempty"`

	// BrowserContextID is experimental in upstream CDP but present on
	// every TargetInfo this driver has observed; kept for completeness
	// per spec §3's Target data model.
	BrowserContextID string `json:"browserContextId,omitempty"`
}

// SetDiscoverTargetsParams is the parameter shape for
// Target.setDiscoverTargets, issued once at Browser.Start per spec §4.4.
type SetDiscoverTargetsParams struct {
	Discover bool `json:"discover"`
}

// SetAutoAttachParams is the parameter shape for Target.setAutoAttach.
// Flatten enables the flat auto-attach mode from the glossary: child
// targets attach without nesting session ids.
type SetAutoAttachParams struct {
	AutoAttach             bool `json:"autoAttach"`
	WaitForDebuggerOnStart bool `json:"waitForDebuggerOnStart"`
	Flatten                bool `json:"flatten"`
}

// CreateTargetParams is the parameter shape for Target.createTarget, issued
// by Browser.Navigate per spec §4.4 when no tab exists yet.
type CreateTargetParams struct {
	URL string `json:"url"`
}

// CreateTargetResult is the result shape for Target.createTarget.
type CreateTargetResult struct {
	TargetID string `json:"targetId"`
}

// CloseTargetParams is the parameter shape for Target.closeTarget.
type CloseTargetParams struct {
	TargetID string `json:"targetId"`
}

// AttachedToTargetEvent mirrors Target.attachedToTarget: the Browser mints a
// Session and, for page targets, a Tab from this event, per spec §4.4.
type AttachedToTargetEvent struct {
	SessionID          string `json:"sessionId"`
	TargetInfo         Info   `json:"targetInfo"`
	WaitingForDebugger bool   `json:"waitingForDebugger"`
}

// DetachedFromTargetEvent mirrors Target.detachedFromTarget: the named
// session transitions to detached, per spec §3's Tab lifecycle.
type DetachedFromTargetEvent struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId,omitempty"`
}

// TargetDestroyedEvent mirrors Target.targetDestroyed: any Tab bound to
// this target transitions to detached, per spec §3.
type TargetDestroyedEvent struct {
	TargetID string `json:"targetId"`
}

// TargetCreatedEvent mirrors Target.targetCreated: fired for every target
// (not just ones this driver auto-attaches to, e.g. workers or other
// browser-owned pages), so the Browser can keep target bookkeeping current
// even before — or without — an attach, per spec §4.4.
type TargetCreatedEvent struct {
	TargetInfo Info `json:"targetInfo"`
}

const (
	MethodSetDiscoverTargets = "Target.setDiscoverTargets"
	MethodSetAutoAttach      = "Target.setAutoAttach"
	MethodCreateTarget       = "Target.createTarget"
	MethodCloseTarget        = "Target.closeTarget"

	EventAttachedToTarget   = "Target.attachedToTarget"
	EventDetachedFromTarget = "Target.detachedFromTarget"
	EventTargetCreated      = "Target.targetCreated"
	EventTargetDestroyed    = "Target.targetDestroyed"
)
