// Package page holds the trimmed subset of the CDP Page domain this driver
// exercises, grounded field-for-field on the teacher's pkg/devtools/page.
package page

// NavigateParams is the parameter shape for Page.navigate.
type NavigateParams struct {
	URL string `json:"url"`
}

// NavigateResult is the result shape for Page.navigate.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	ErrorText string `json:"errorText,omitempty"`
}

// EnableParams is the (empty) parameter shape for Page.enable.
type EnableParams struct{}

// SetLifecycleEventsEnabledParams is the parameter shape for
// Page.setLifecycleEventsEnabled.
type SetLifecycleEventsEnabledParams struct {
	Enabled bool `json:"enabled"`
}

// Frame mirrors the subset of CDP Page.Frame this driver reads.
type Frame struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	URL      string `json:"url"`
}

// FrameNavigatedEvent mirrors Page.frameNavigated: the document-node-id
// cache in package tab is invalidated whenever this fires for the root
// frame, per spec §4.5.
type FrameNavigatedEvent struct {
	Frame Frame `json:"frame"`
}

// LifecycleEventEvent mirrors Page.lifecycleEvent, used by callers polling
// for "load"/"networkIdle" via wait_for_event per spec §4.4's navigate doc.
type LifecycleEventEvent struct {
	FrameID   string  `json:"frameId"`
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp"`
}

const (
	MethodNavigate                   = "Page.navigate"
	MethodEnable                     = "Page.enable"
	MethodSetLifecycleEventsEnabled  = "Page.setLifecycleEventsEnabled"
	EventFrameNavigated              = "Page.frameNavigated"
	EventLifecycleEvent              = "Page.lifecycleEvent"
)
