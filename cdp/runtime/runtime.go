// Package runtime holds the trimmed subset of the CDP Runtime domain this
// driver exercises, grounded field-for-field on the teacher's
// pkg/devtools/runtime.
package runtime

// RemoteObjectID identifies a JS object handed out by Runtime.evaluate and
// consumed by DOM commands that accept an objectId.
type RemoteObjectID string

// RemoteObject mirrors CDP Runtime.RemoteObject, trimmed to the fields
// Tab.Eval and Elem operations read.
type RemoteObject struct {
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype,omitempty"`
	ClassName   string          `json:"className,omitempty"`
	Value       interface{}     `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
	ObjectID    RemoteObjectID  `json:"objectId,omitempty"`
}

// ExceptionDetails mirrors CDP Runtime.ExceptionDetails: surfaced by
// Tab.Eval as a mux.ProtocolError per spec §4.5.
type ExceptionDetails struct {
	ExceptionID  int64        `json:"exceptionId"`
	Text         string       `json:"text"`
	LineNumber   int64        `json:"lineNumber"`
	ColumnNumber int64        `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

// EvaluateParams is the parameter shape for Runtime.evaluate.
type EvaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	AwaitPromise  bool   `json:"awaitPromise,omitempty"`
	ContextID     int64  `json:"contextId,omitempty"`
}

// EvaluateResult is the result shape for Runtime.evaluate.
type EvaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// CallFunctionOnParams is the parameter shape for Runtime.callFunctionOn,
// used by Elem.Text and Elem operations that evaluate a JS function bound
// to a remote object id rather than the global context.
type CallFunctionOnParams struct {
	FunctionDeclaration string         `json:"functionDeclaration"`
	ObjectID            RemoteObjectID `json:"objectId,omitempty"`
	ReturnByValue        bool           `json:"returnByValue,omitempty"`
}

// CallFunctionOnResult is the result shape for Runtime.callFunctionOn.
type CallFunctionOnResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// ConsoleAPICalledEvent mirrors Runtime.consoleAPICalled, used by the
// end-to-end event fan-out scenario in spec §8.
type ConsoleAPICalledEvent struct {
	Type string         `json:"type"`
	Args []RemoteObject `json:"args"`
}

const (
	MethodEvaluate          = "Runtime.evaluate"
	MethodCallFunctionOn    = "Runtime.callFunctionOn"
	EventConsoleAPICalled   = "Runtime.consoleAPICalled"
)
