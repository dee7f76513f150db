package counsel

// EventType identifies the kind of turn event.
type EventType string

const (
	// EventThinkingStart opens the turn's thinking phase.
	EventThinkingStart EventType = "thinking_start"
	// EventThinkingStep is a progress notice inside the thinking phase.
	EventThinkingStep EventType = "thinking_step"
	// EventRoleStart signals a specialist has begun working.
	EventRoleStart EventType = "role_start"
	// EventToolCall signals a tool is about to be invoked.
	EventToolCall EventType = "tool_call"
	// EventToolResult signals a tool call completed successfully.
	EventToolResult EventType = "tool_result"
	// EventContentDelta carries an incremental text chunk for live relay.
	EventContentDelta EventType = "content_delta"
	// EventRoleResult carries a specialist's complete answer.
	EventRoleResult EventType = "role_result"
	// EventDiscussion carries one supplementary opinion in discussion mode.
	EventDiscussion EventType = "discussion"
	// EventError is the single terminal error event of a failed turn.
	EventError EventType = "error"
	// EventDone terminates a successful turn.
	EventDone EventType = "done"
)

// StepType classifies a thinking_step event.
type StepType string

const (
	StepPlanning     StepType = "planning"
	StepRoleDispatch StepType = "role_dispatch"
	StepRoleComplete StepType = "role_complete"
	StepSynthesizing StepType = "synthesizing"
	StepError        StepType = "error"
)

// Event is one entry of the turn event stream. Exactly one Event flows per
// logical step; the populated fields depend on Type and the zero fields are
// omitted from the JSON encoding, so each event serializes to the wire shape
// its type defines.
type Event struct {
	Type EventType `json:"type"`

	// thinking_step
	StepType StepType `json:"step_type,omitempty"`

	// thinking_step, tool_result, role_result, discussion
	Content string `json:"content,omitempty"`

	// role-scoped events
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	Icon string `json:"icon,omitempty"`

	// role_start / role_result during synthesis
	IsSummary bool `json:"is_summary,omitempty"`

	// tool_call / tool_result. ToolArgs carries the raw argument text as the
	// model produced it, which is not guaranteed to be valid JSON.
	ToolName string `json:"tool_name,omitempty"`
	ToolArgs string `json:"tool_args,omitempty"`

	// content_delta
	Delta     string `json:"delta,omitempty"`
	AfterTool bool   `json:"after_tool,omitempty"`

	// discussion
	From  string `json:"from,omitempty"`
	Round int    `json:"round,omitempty"`

	// error
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
