package types

// ParamType is the JSON type expected for a tool parameter value.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Param formats with extra validation beyond the JSON type.
const (
	FormatNone  = ""
	FormatEmail = "email"
)

// Param describes one argument of a callable tool.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Format      string    `json:"format,omitempty"`
}

// ToolSchema declares a callable tool: its unique name, a description the
// language model uses to decide when to call it, and its parameters.
type ToolSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  []Param `json:"parameters,omitempty"`
}

// ToolCallRequest is one tool invocation decided by the language model.
type ToolCallRequest struct {
	// ID is the model-assigned call identifier, echoed back on the tool
	// result message so multi-call turns stay aligned.
	ID        string         `json:"id,omitempty"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Outcome classifies a tool call result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ToolCallResult is always produced, even on failure: a tool call resolves
// to a result, it never raises to the dispatch loop.
type ToolCallResult struct {
	Tool    string  `json:"tool"`
	Outcome Outcome `json:"outcome"`

	// Message is user-facing: pre-templated, polite, and free of raw error
	// detail. Operators get the underlying error from logs instead.
	Message string `json:"message"`

	// FollowUp is set when the tool's dialogue policy requires a delayed
	// re-entry into the conversation (e.g. a booking implies a later
	// status check).
	FollowUp *FollowUpPayload `json:"follow_up,omitempty"`
}

// FollowUpPayload is the data a scheduled follow-up needs to resume.
type FollowUpPayload struct {
	Email string `json:"email"`
}
