// Package browserdomain holds the trimmed subset of the CDP Browser domain
// this driver exercises, grounded field-for-field on the teacher's
// pkg/devtools/browser. Named browserdomain (not browser) to avoid
// colliding with this repo's top-level browser package, which models the
// driver's own Browser object, not the CDP domain of the same name.
package browserdomain

// CloseParams is the (empty) parameter shape for Browser.close, issued by
// Browser.Close per spec §4.4.
type CloseParams struct{}

// GetVersionParams is the (empty) parameter shape for Browser.getVersion.
type GetVersionParams struct{}

// GetVersionResult is the result shape for Browser.getVersion.
type GetVersionResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JsVersion       string `json:"jsVersion"`
}

const (
	MethodClose      = "Browser.close"
	MethodGetVersion = "Browser.getVersion"
)
